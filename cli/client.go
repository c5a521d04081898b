package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/xiaot623/gogo/gateway/internal/protocol"
)

// Client represents a WebSocket client.
type Client struct {
	conn *websocket.Conn
	mu   sync.Mutex
	done chan struct{}
}

// NewClient connects to addr. apiKey, when set, is passed as the api_key query parameter.
func NewClient(addr, apiKey string) (*Client, error) {
	u, err := url.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("parse address: %w", err)
	}
	if apiKey != "" {
		q := u.Query()
		q.Set("api_key", apiKey)
		u.RawQuery = q.Encode()
	}

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	return &Client{
		conn: conn,
		done: make(chan struct{}),
	}, nil
}

// Close closes the client connection.
func (c *Client) Close() error {
	close(c.done)
	c.mu.Lock()
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.mu.Unlock()
	return c.conn.Close()
}

// Send writes one client message.
func (c *Client) Send(msg any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(msg)
}

// ReadMessages prints server messages to w until the connection closes.
// onSession is called with the id of every session the server reports.
func (c *Client) ReadMessages(w io.Writer, onSession func(id string)) error {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				return nil
			default:
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
		render(w, data, onSession)
	}
}

func render(w io.Writer, data []byte, onSession func(id string)) {
	var base protocol.BaseMessage
	if err := json.Unmarshal(data, &base); err != nil {
		fmt.Fprintf(w, "\n[?] %s\n", data)
		return
	}

	switch base.Type {
	case protocol.TypeTaskStatus:
		var m protocol.TaskStatusMessage
		json.Unmarshal(data, &m)
		fmt.Fprintf(w, "  … %s: %s\n", m.Status, m.Details)
	case protocol.TypeSkillsSelected:
		var m protocol.SkillsSelectedMessage
		json.Unmarshal(data, &m)
		fmt.Fprintf(w, "  persona=%s category=%s skills=%d bytes=%d\n", m.Persona, m.Category, len(m.Skills), m.TotalBytes)
		for _, s := range m.Skills {
			fmt.Fprintf(w, "    - %s (%.2f)\n", s.ID, s.Score)
		}
	case protocol.TypeMessageAppended:
		var m protocol.MessageAppendedMessage
		json.Unmarshal(data, &m)
		fmt.Fprintf(w, "\n[%s]\n%s\n\n", m.Message.Role, m.Message.Content)
	case protocol.TypeSessionList:
		var m protocol.SessionListMessage
		json.Unmarshal(data, &m)
		for _, s := range m.Sessions {
			fmt.Fprintf(w, "  %s  %-30s %s (%s)\n", s.ID, s.Title, s.RepoName, s.Status)
		}
		if len(m.Sessions) == 1 && onSession != nil {
			onSession(m.Sessions[0].ID)
		}
	case protocol.TypeSessionLoaded:
		var m protocol.SessionLoadedMessage
		json.Unmarshal(data, &m)
		fmt.Fprintf(w, "session %s: %s\n", m.Session.ID, m.Session.Title)
		for _, msg := range m.Messages {
			fmt.Fprintf(w, "  [%s] %s\n", msg.Role, msg.Content)
		}
		if onSession != nil {
			onSession(m.Session.ID)
		}
	case protocol.TypeError:
		var m protocol.ErrorMessage
		json.Unmarshal(data, &m)
		fmt.Fprintf(w, "\n[error] %s\n", m.Message)
	default:
		fmt.Fprintf(w, "\n[%s] %s\n", base.Type, data)
	}
}
