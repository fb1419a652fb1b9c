package provider

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"runcoach/internal/fitfile"
	"runcoach/internal/store"
)

type cachedFit struct {
	modTime  time.Time
	activity store.Activity
	err      error
}

// Fit reads activities from FIT files under <dir>/<userID>/. Decoded files are
// cached by path and modification time.
type Fit struct {
	dir    string
	logger *slog.Logger

	mu    sync.Mutex
	cache map[string]cachedFit
}

// NewFit creates a FIT directory provider
func NewFit(dir string, logger *slog.Logger) *Fit {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fit{dir: dir, logger: logger, cache: make(map[string]cachedFit)}
}

// GetActivities implements Provider. A missing user directory means the user
// has not linked a source.
func (p *Fit) GetActivities(ctx context.Context, userID int64, q Query) ([]store.Activity, error) {
	userDir := filepath.Join(p.dir, strconv.FormatInt(userID, 10))
	entries, err := os.ReadDir(userDir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotLinked
	}
	if err != nil {
		return nil, fmt.Errorf("reading fit directory: %w", err)
	}

	var acts []store.Activity
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".fit") {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		a, err := p.load(filepath.Join(userDir, e.Name()), info.ModTime(), userID)
		if err != nil {
			continue
		}
		acts = append(acts, a)
	}
	return apply(acts, q), nil
}

func (p *Fit) load(path string, modTime time.Time, userID int64) (store.Activity, error) {
	p.mu.Lock()
	c, ok := p.cache[path]
	p.mu.Unlock()
	if ok && c.modTime.Equal(modTime) {
		return c.activity, c.err
	}

	a, err := fitfile.ParseFile(path, userID)
	if err != nil {
		p.logger.Warn("skipping unreadable fit file", "path", path, "error", err)
	}
	p.mu.Lock()
	p.cache[path] = cachedFit{modTime: modTime, activity: a, err: err}
	p.mu.Unlock()
	return a, err
}
