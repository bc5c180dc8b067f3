package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog/log"

	"outreach-mailer/internal/helper"
	"outreach-mailer/internal/models"
)

const lockRetryDelay = 20 * time.Millisecond

// FileStore keeps each document in <dir>/<name>.txt. Writers in this process
// are serialized per file with a mutex, and across processes with an
// advisory lock on <name>.txt.lock. Files are replaced by rename so readers
// never see a partial write.
type FileStore struct {
	dir   string
	mu    sync.Mutex
	files map[string]*fileEntry
}

type fileEntry struct {
	mu   sync.Mutex
	lock *flock.Flock
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := helper.CreateFolder(dir); err != nil {
		return nil, models.NewIOError(dir, err)
	}
	return &FileStore{dir: dir, files: map[string]*fileEntry{}}, nil
}

func (s *FileStore) path(name string) string {
	return filepath.Join(s.dir, name+".txt")
}

func (s *FileStore) entry(name string) *fileEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.files[name]
	if !ok {
		e = &fileEntry{lock: flock.New(s.path(name) + ".lock")}
		s.files[name] = e
	}
	return e
}

// acquire takes both locks for name. The returned func releases them.
func (s *FileStore) acquire(ctx context.Context, name string) (func(), error) {
	e := s.entry(name)
	e.mu.Lock()
	ok, err := e.lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil || !ok {
		e.mu.Unlock()
		if err == nil {
			err = errors.New("lock not acquired")
		}
		return nil, models.NewIOError(name, fmt.Errorf("lock: %w", err))
	}
	return func() {
		if err := e.lock.Unlock(); err != nil {
			log.Warn().Err(err).Str("name", name).Msg("Error releasing file lock")
		}
		e.mu.Unlock()
	}, nil
}

func (s *FileStore) Read(ctx context.Context, name string) (string, error) {
	if err := ValidName(name); err != nil {
		return "", err
	}
	release, err := s.acquire(ctx, name)
	if err != nil {
		return "", err
	}
	defer release()

	data, err := os.ReadFile(s.path(name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", models.ErrNotFound, name)
		}
		return "", models.NewIOError(name, err)
	}
	return string(data), nil
}

func (s *FileStore) Write(ctx context.Context, name, text string) error {
	if err := ValidName(name); err != nil {
		return err
	}
	release, err := s.acquire(ctx, name)
	if err != nil {
		return err
	}
	defer release()

	tmp, err := os.CreateTemp(s.dir, name+".*.tmp")
	if err != nil {
		return models.NewIOError(name, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.WriteString(text); err != nil {
		tmp.Close()
		return models.NewIOError(name, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return models.NewIOError(name, err)
	}
	if err := tmp.Close(); err != nil {
		return models.NewIOError(name, err)
	}
	if err := os.Rename(tmpName, s.path(name)); err != nil {
		return models.NewIOError(name, err)
	}
	log.Debug().Str("name", name).Int("chars", len(text)).Msg("Stored document")
	return nil
}

func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	for _, e := range s.files {
		errs = append(errs, e.lock.Close())
	}
	return errors.Join(errs...)
}
