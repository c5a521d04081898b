package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/gogo/gateway/internal/protocol"
)

func TestParseInput(t *testing.T) {
	msg, quit, err := parseInput("  /debug it broke ", "s1")
	require.NoError(t, err)
	assert.False(t, quit)
	assert.Equal(t, &protocol.UserMessage{
		BaseMessage: protocol.BaseMessage{Type: protocol.TypeUserMessage},
		SessionID:   "s1",
		Content:     "/debug it broke",
	}, msg)

	msg, _, err = parseInput(":new Fix DNS | atnplex/homelab | main", "s1")
	require.NoError(t, err)
	cs := msg.(*protocol.CreateSessionMessage)
	assert.Equal(t, "Fix DNS", cs.Title)
	assert.Equal(t, "atnplex/homelab", cs.Repo)
	require.NotNil(t, cs.Branch)
	assert.Equal(t, "main", *cs.Branch)

	msg, _, err = parseInput(":load abc", "s1")
	require.NoError(t, err)
	assert.Equal(t, "abc", msg.(*protocol.LoadSessionMessage).SessionID)

	_, quit, _ = parseInput(":quit", "s1")
	assert.True(t, quit)

	msg, _, err = parseInput("   ", "s1")
	assert.NoError(t, err)
	assert.Nil(t, msg)

	_, _, err = parseInput(":new only-title", "s1")
	assert.Error(t, err)
	_, _, err = parseInput(":bogus", "s1")
	assert.Error(t, err)
}

func TestRenderTracksSession(t *testing.T) {
	var buf bytes.Buffer
	var got string
	render(&buf, []byte(`{"type":"session_loaded","session":{"id":"abc","title":"T","repo_name":"r","branch_name":null,"status":"pending","created_at":1},"messages":[{"id":"m1","role":"user","content":"hi","created_at":1}]}`),
		func(id string) { got = id })

	assert.Equal(t, "abc", got)
	assert.Contains(t, buf.String(), "[user] hi")

	buf.Reset()
	render(&buf, []byte(`{"type":"error","message":"widget mode: workflow \"plan\" not permitted"}`), nil)
	assert.Contains(t, buf.String(), "[error] widget mode")
}
