package auth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

const lockPollInterval = 50 * time.Millisecond

var (
	errLockBusy        = errors.New("file lock is held by another process")
	errLockUnsupported = errors.New("file locking is not supported")
)

// fileLock is an exclusive advisory lock on a sibling lock file. When the
// platform or filesystem cannot lock, it is a no-op and Exclusive reports false.
type fileLock struct {
	path      string
	file      *os.File
	exclusive bool
	once      sync.Once
}

// acquireFileLock polls a non-blocking exclusive lock on path until it is
// granted or ctx is done. The lock file is created when missing and never removed.
func acquireFileLock(ctx context.Context, path string) (*fileLock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	ticker := time.NewTicker(lockPollInterval)
	defer ticker.Stop()
	for {
		errLock := tryLockFile(file)
		switch {
		case errLock == nil:
			return &fileLock{path: path, file: file, exclusive: true}, nil
		case errors.Is(errLock, errLockUnsupported):
			_ = file.Close()
			log.WithField("lock", path).Warn("cross-process locking unavailable; refresh is not serialized")
			return &fileLock{path: path}, nil
		case !errors.Is(errLock, errLockBusy):
			_ = file.Close()
			return nil, fmt.Errorf("lock %s: %w", path, errLock)
		}

		select {
		case <-ctx.Done():
			_ = file.Close()
			return nil, fmt.Errorf("lock %s: %w", path, ctx.Err())
		case <-ticker.C:
		}
	}
}

// Exclusive reports whether the lock actually excludes other processes.
func (l *fileLock) Exclusive() bool {
	return l != nil && l.exclusive
}

// Release unlocks and closes the lock file. It is safe to call more than once.
func (l *fileLock) Release() error {
	if l == nil {
		return nil
	}
	var err error
	l.once.Do(func() {
		if l.file == nil {
			return
		}
		if l.exclusive {
			err = unlockFile(l.file)
		}
		if errClose := l.file.Close(); err == nil {
			err = errClose
		}
	})
	return err
}
