// Package file serves blobs from a local directory. It backs local and dev
// environments and can notify on dataset changes.
package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/pathology-bites/slidedex/internal/domain"
	"github.com/pathology-bites/slidedex/internal/storage"
)

// Driver is the metrics/config name of this source.
const Driver = "file"

// Source reads <dir>/<bucket>/<key>, falling back to <dir>/<key>.
type Source struct {
	dir    string
	logger *zap.Logger
}

var (
	_ storage.BlobSource = (*Source)(nil)
	_ storage.Checker    = (*Source)(nil)
)

// NewSource creates a file source rooted at dir.
func NewSource(dir string, logger *zap.Logger) *Source {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Source{dir: filepath.Clean(dir), logger: logger}
}

// Fetch reads the whole file.
func (s *Source) Fetch(_ context.Context, loc domain.Location) ([]byte, error) {
	path, err := s.resolve(loc)
	if err != nil {
		return nil, storage.Unavailable(loc, err)
	}

	data, err := os.ReadFile(path) //nolint:gosec // path is confined to s.dir by resolve
	if err != nil {
		return nil, storage.Unavailable(loc, err)
	}
	if len(data) == 0 {
		return nil, storage.Unavailable(loc, errors.New("empty body"))
	}
	return data, nil
}

// Check verifies that the root directory exists.
func (s *Source) Check(_ context.Context) error {
	st, err := os.Stat(s.dir)
	if err != nil {
		return fmt.Errorf("stat %s: %w", s.dir, err)
	}
	if !st.IsDir() {
		return fmt.Errorf("%s is not a directory", s.dir)
	}
	return nil
}

// Watch calls onChange with the blob location whenever loc's file is written,
// created, renamed, or removed. It blocks until ctx is done.
func (s *Source) Watch(ctx context.Context, loc domain.Location, onChange func(domain.Location)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("new watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	targets := map[string]struct{}{}
	for _, p := range s.candidates(loc) {
		targets[p] = struct{}{}
		dir := filepath.Dir(p)
		if _, statErr := os.Stat(dir); statErr != nil {
			continue
		}
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if _, hit := targets[filepath.Clean(event.Name)]; !hit {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			s.logger.Info("Dataset file changed",
				zap.String("path", event.Name),
				zap.String("op", event.Op.String()),
			)
			onChange(loc)
		case werr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("File watcher error", zap.Error(werr))
		}
	}
}

func (s *Source) candidates(loc domain.Location) []string {
	return []string{
		filepath.Join(s.dir, loc.Bucket, loc.Key),
		filepath.Join(s.dir, loc.Key),
	}
}

func (s *Source) resolve(loc domain.Location) (string, error) {
	var lastErr error
	for _, p := range s.candidates(loc) {
		if !s.within(p) {
			return "", fmt.Errorf("key %q escapes storage directory", loc.Key)
		}
		_, err := os.Stat(p)
		if err == nil {
			return p, nil
		}
		lastErr = err
	}
	return "", lastErr
}

func (s *Source) within(p string) bool {
	rel, err := filepath.Rel(s.dir, p)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
