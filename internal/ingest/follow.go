package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Follow reads the events already in path, then waits for appended lines
// and passes them to fn until ctx is cancelled. A trailing line without a
// newline is held back until it is completed. Follow returns nil on
// cancellation.
func Follow(ctx context.Context, path string, fn Handler, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open event file: %w", err)
	}
	defer f.Close()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()
	if err := watcher.Add(path); err != nil {
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}
	logger.Debug("following event file", zap.String("path", path))

	t := &tail{r: f, fn: fn}
	if err := t.drain(); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			logger.Debug("stopped following", zap.String("path", path), zap.Int("lines", t.lines))
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			switch {
			case ev.Op&fsnotify.Write != 0:
				if err := t.drain(); err != nil {
					return err
				}
			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				logger.Warn("event file went away", zap.String("path", path), zap.Stringer("op", ev.Op))
				return nil
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watch %s: %w", path, err)
		}
	}
}

// tail reads complete lines from a growing file.
type tail struct {
	r       io.Reader
	fn      Handler
	partial []byte
	lines   int
}

func (t *tail) drain() error {
	data, err := io.ReadAll(t.r)
	if err != nil {
		return err
	}
	buf := append(t.partial, data...)
	for {
		i := bytes.IndexByte(buf, '\n')
		if i < 0 {
			break
		}
		line := string(buf[:i])
		buf = buf[i+1:]
		t.lines++

		ev, ok, err := ParseLine(line)
		if err != nil {
			return fmt.Errorf("line %d: %w", t.lines, err)
		}
		if ok {
			if err := t.fn(ev); err != nil {
				return err
			}
		}
	}
	t.partial = append([]byte(nil), buf...)
	return nil
}
