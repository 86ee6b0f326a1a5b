// Package lockfile guards a target directory against concurrent runs.
//
// The lock is a small JSON file created with O_EXCL in the target. While held,
// a heartbeat refreshes its timestamp; a lock whose timestamp is older than the
// stale timeout belongs to a crashed run and may be taken over. Takeover writes
// the new content through a temporary file and a rename, then reads it back to
// find out which contender won.
package lockfile

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"gitlab.com/tozd/go/errors"

	"github.com/paulschiretz/pgl-mirror/pkg/plog"
	"github.com/paulschiretz/pgl-mirror/pkg/util"
)

// LockFileName is the name of the lock file created in the target directory.
const LockFileName = ".~pgl-mirror.lock"

// LockContent is the data stored in the lock file.
type LockContent struct {
	PID        int64     `json:"pid"`
	Hostname   string    `json:"hostname"`
	AppID      string    `json:"appID"`
	Nonce      string    `json:"nonce"`
	LastUpdate time.Time `json:"lastUpdate"`
}

// ErrLockActive is returned when another process holds the lock.
type ErrLockActive struct {
	PID       int64
	Hostname  string
	AppID     string
	TimeSince time.Duration
}

func (e *ErrLockActive) Error() string {
	return fmt.Sprintf("lock is active, held by PID %d on host '%s' (App: %s), last updated %s ago",
		e.PID, e.Hostname, e.AppID, e.TimeSince.Truncate(time.Second))
}

var (
	// ErrLostRace is returned when another process won a stale lock takeover.
	ErrLostRace = errors.Base("lost race during stale lock takeover")
	// ErrCorruptLockFile means the lock file is empty or not valid JSON.
	ErrCorruptLockFile = errors.Base("lock file is corrupt or empty")
)

// Variables so tests can shorten them.
var (
	heartbeatInterval = time.Minute
	staleTimeout      = 3 * heartbeatInterval
)

// Lock is a held lock. Release it when the run is over.
type Lock struct {
	path    string
	content LockContent
	cancel  context.CancelFunc
	done    chan struct{}

	mu   sync.Mutex
	held bool
}

// Acquire takes the lock in dirPath. It returns *ErrLockActive if another process
// holds a fresh lock. ctx only bounds the acquisition, not the lock's lifetime.
func Acquire(ctx context.Context, dirPath, appID string) (*Lock, error) {
	path := filepath.Join(dirPath, LockFileName)
	const maxAttempts = 3

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		lock, err := tryCreate(path, appID)
		if err == nil {
			return lock.start(), nil
		}
		if !os.IsExist(err) {
			return nil, errors.Errorf("failed to access lock file: %w", err)
		}

		content, err := readLockContent(path)
		switch {
		case errors.Is(err, ErrCorruptLockFile):
			plog.Warn("Found corrupt lock file, treating as stale", "path", path, "error", err)
		case os.IsNotExist(err):
			// Released between our create and read.
			continue
		case err != nil:
			return nil, errors.Errorf("failed to read lock file: %w", err)
		default:
			elapsed := time.Since(content.LastUpdate)
			if elapsed < staleTimeout {
				return nil, &ErrLockActive{
					PID:       content.PID,
					Hostname:  content.Hostname,
					AppID:     content.AppID,
					TimeSince: elapsed,
				}
			}
			plog.Warn("Found stale lock, attempting takeover", "pid", content.PID, "host", content.Hostname, "age", elapsed.Truncate(time.Second))
		}

		lock, err = takeover(path, appID)
		if err == nil {
			return lock.start(), nil
		}
		if errors.Is(err, ErrLostRace) {
			plog.Debug("Lock takeover race lost, retrying acquisition")
		} else {
			plog.Warn("Failed to take over lock, retrying", "error", err)
		}
		time.Sleep(100 * time.Millisecond)
	}
	return nil, errors.Errorf("failed to acquire lock after %d attempts (contention)", maxAttempts)
}

// Release stops the heartbeat and removes the lock file. It is safe to call twice.
func (l *Lock) Release() {
	l.mu.Lock()
	if !l.held {
		l.mu.Unlock()
		return
	}
	l.held = false
	l.mu.Unlock()

	// The heartbeat takes mu, so wait for it without holding the lock.
	l.cancel()
	<-l.done
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		plog.Warn("Failed to remove lock file", "path", l.path, "error", err)
	}
}

// Content returns the data written by this process.
func (l *Lock) Content() LockContent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.content
}

func newContent(appID string) (LockContent, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return LockContent{}, errors.Errorf("failed to get hostname: %w", err)
	}
	return LockContent{
		PID:        int64(os.Getpid()),
		Hostname:   hostname,
		AppID:      appID,
		Nonce:      uuid.NewString(),
		LastUpdate: time.Now().UTC(),
	}, nil
}

// tryCreate creates the lock file with O_EXCL.
func tryCreate(path, appID string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, util.UserWritableFilePerms)
	if err != nil {
		return nil, err
	}
	content, err := newContent(appID)
	if err == nil {
		err = json.NewEncoder(f).Encode(content)
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return nil, errors.Errorf("failed to write lock file: %w", err)
	}
	return &Lock{path: path, content: content}, nil
}

// takeover replaces a stale or corrupt lock and verifies the result by reading it back.
func takeover(path, appID string) (*Lock, error) {
	content, err := newContent(appID)
	if err != nil {
		return nil, err
	}
	if err := writeAtomic(path, content); err != nil {
		return nil, err
	}
	got, err := readLockContent(path)
	if err != nil {
		return nil, errors.Errorf("failed to read back lock file after takeover: %w", err)
	}
	if got.Nonce != content.Nonce {
		return nil, ErrLostRace
	}
	plog.Debug("Took over stale lock", "path", path)
	return &Lock{path: path, content: content}, nil
}

func (l *Lock) start() *Lock {
	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	l.done = make(chan struct{})
	l.held = true
	go l.heartbeat(ctx)
	return l
}

func (l *Lock) heartbeat(ctx context.Context) {
	defer close(l.done)
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.mu.Lock()
			l.content.LastUpdate = time.Now().UTC()
			content := l.content
			l.mu.Unlock()
			if err := writeAtomic(l.path, content); err != nil {
				plog.Warn("Heartbeat failed to update lock file", "error", err)
			}
		}
	}
}

// writeAtomic writes content next to path and renames it into place, so the lock
// file is never observed empty.
func writeAtomic(path string, content LockContent) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return errors.Errorf("failed to create temp lock file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := json.NewEncoder(tmp).Encode(content); err != nil {
		tmp.Close()
		return errors.Errorf("failed to write lock content: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return errors.Errorf("failed to close temp lock file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return errors.Errorf("failed to rename temp file to lock file: %w", err)
	}
	return nil
}

func readLockContent(path string) (LockContent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return LockContent{}, err
	}
	if len(data) == 0 {
		return LockContent{}, errors.Errorf("%w: file is empty", ErrCorruptLockFile)
	}
	var content LockContent
	if err := json.Unmarshal(data, &content); err != nil {
		return LockContent{}, errors.Errorf("%w: %s", ErrCorruptLockFile, err.Error())
	}
	return content, nil
}
