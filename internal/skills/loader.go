package skills

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog/log"
)

const statsFile = "skills-stats.json"

type indexEntry struct {
	ID   string `json:"id"`
	Path string `json:"path"`
}

type indexDoc struct {
	Skills []indexEntry `json:"skills"`
}

type cacheKey struct {
	path    string
	modTime time.Time
}

// Loader resolves skill ids through the on-disk index and reads their content.
type Loader struct {
	indexPath string
	baseDir   string
	cache     *lru.Cache[cacheKey, string]
}

// DefaultIndexPath returns ~/.agent/skills-index.json.
func DefaultIndexPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".agent", "skills-index.json")
	}
	return filepath.Join(home, ".agent", "skills-index.json")
}

// NewLoader creates a loader. baseDir, when set, confines every skill path.
// cacheSize <= 0 disables the content cache.
func NewLoader(indexPath, baseDir string, cacheSize int) (*Loader, error) {
	l := &Loader{indexPath: indexPath, baseDir: baseDir}
	if cacheSize > 0 {
		c, err := lru.New[cacheKey, string](cacheSize)
		if err != nil {
			return nil, fmt.Errorf("failed to create content cache: %w", err)
		}
		l.cache = c
	}
	return l, nil
}

// LoadContent returns the content of every id. A single unknown id or unreadable
// path fails the whole batch.
func (l *Loader) LoadContent(ctx context.Context, ids []string) (map[string]string, error) {
	index, err := l.readIndex()
	if err != nil {
		return nil, err
	}

	paths := make(map[string]string, len(index.Skills))
	for _, s := range index.Skills {
		paths[s.ID] = s.Path
	}

	contents := make(map[string]string, len(ids))
	total := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		path, ok := paths[id]
		if !ok {
			return nil, &RouterError{Kind: KindNotFound, Op: "load", Err: fmt.Errorf("skill not found: %s", id)}
		}
		content, err := l.read(path)
		if err != nil {
			return nil, &RouterError{Kind: KindNotFound, Op: "load", Err: fmt.Errorf("failed to read skill %s: %w", id, err)}
		}
		contents[id] = content
		total += len(content)
	}

	log.Debug().Int("skills", len(contents)).Int("bytes", total).Msg("skill content loaded")
	return contents, nil
}

// Stats returns the indexer statistics stored next to the index file.
func (l *Loader) Stats(ctx context.Context) (map[string]any, error) {
	path := filepath.Join(filepath.Dir(l.indexPath), statsFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &RouterError{Kind: KindNotFound, Op: "stats", Err: err}
	}
	var stats map[string]any
	if err := json.Unmarshal(data, &stats); err != nil {
		return nil, &RouterError{Kind: KindMalformed, Op: "stats", Err: err}
	}
	return stats, nil
}

func (l *Loader) readIndex() (*indexDoc, error) {
	data, err := os.ReadFile(l.indexPath)
	if err != nil {
		return nil, &RouterError{Kind: KindNotFound, Op: "load", Err: fmt.Errorf("skills index %s: %w", l.indexPath, err)}
	}
	var doc indexDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &RouterError{Kind: KindMalformed, Op: "load", Err: fmt.Errorf("failed to parse index: %w", err)}
	}
	return &doc, nil
}

func (l *Loader) read(path string) (string, error) {
	resolved, err := ValidatePath(path, l.baseDir)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return "", err
	}

	key := cacheKey{path: resolved, modTime: info.ModTime()}
	if l.cache != nil {
		if content, ok := l.cache.Get(key); ok {
			return content, nil
		}
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return "", err
	}
	content := string(data)
	if l.cache != nil {
		l.cache.Add(key, content)
	}
	return content, nil
}

// ValidatePath rejects traversal and NUL bytes and, when baseDir is set,
// requires the resolved path to stay inside it.
func ValidatePath(path, baseDir string) (string, error) {
	if path == "" {
		return "", errors.New("path cannot be empty")
	}
	if strings.ContainsRune(path, 0) {
		return "", errors.New("path contains null bytes")
	}
	if strings.Contains(path, "..") {
		return "", errors.New("path traversal detected (contains '..')")
	}
	if baseDir == "" {
		return path, nil
	}

	base, err := filepath.EvalSymlinks(baseDir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve base path: %w", err)
	}
	base, err = filepath.Abs(base)
	if err != nil {
		return "", fmt.Errorf("failed to resolve base path: %w", err)
	}

	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}
	resolved, err = filepath.Abs(resolved)
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}

	rel, err := filepath.Rel(base, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes allowed directory: %s is not within %s", resolved, base)
	}
	return resolved, nil
}
