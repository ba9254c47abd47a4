package netstatus

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Status file contents
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// FileWatcher reads network state from a status file maintained by an OS network hook.
// A missing file or unknown content counts as online.
type FileWatcher struct {
	broadcaster
	watcher *fsnotify.Watcher
	logger  *slog.Logger
	path    string
}

var _ Signal = (*FileWatcher)(nil)

// NewFileWatcher creates a watcher for path and reads its current state.
// The parent directory is watched so the file may be replaced atomically.
func NewFileWatcher(path string, logger *slog.Logger) (*FileWatcher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve status file path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}

	fw := &FileWatcher{
		watcher: watcher,
		logger:  logger,
		path:    abs,
	}
	online, err := readStatus(abs)
	if err != nil {
		_ = watcher.Close()
		return nil, err
	}
	fw.online = online
	return fw, nil
}

// Run processes file events until ctx is done, then closes the watcher
func (fw *FileWatcher) Run(ctx context.Context) error {
	defer func() {
		if err := fw.watcher.Close(); err != nil {
			fw.logger.Warn("Failed to close status watcher", "error", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != fw.path {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			fw.refresh()

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return nil
			}
			fw.logger.Warn("Status watcher error", "error", err)
		}
	}
}

func (fw *FileWatcher) refresh() {
	online, err := readStatus(fw.path)
	if err != nil {
		fw.logger.Warn("Failed to read status file", "path", fw.path, "error", err)
		return
	}
	if fw.set(online) {
		fw.logger.Info("Network status changed", "online", online, "source", fw.path)
	}
}

func readStatus(path string) (bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read status file: %w", err)
	}
	return ParseStatus(string(data)), nil
}

// ParseStatus parses status file content; anything but "offline" is online
func ParseStatus(content string) bool {
	return !strings.EqualFold(strings.TrimSpace(content), StatusOffline)
}
