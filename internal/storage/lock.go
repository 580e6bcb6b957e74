package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
)

// ErrWorkflowInProgress is returned when another live process holds the
// workflow session lock for the project.
var ErrWorkflowInProgress = errors.New("workflow already in progress")

// SessionLock is the content of the workflow lock file. At most one process
// may hold it per project.
type SessionLock struct {
	SessionID string    `json:"session_id"`
	Holder    string    `json:"holder"`
	PID       int       `json:"pid"`
	Hostname  string    `json:"hostname"`
	StartedAt time.Time `json:"started_at"`

	path string
}

// Path returns the lock file path.
func (l *SessionLock) Path() string { return l.path }

// unreadableLockGrace is how long a lock file that cannot be parsed is
// still treated as held. Locks are linked into place fully written, so
// only a crashed writer from an older release or a hand edit leaves one.
const unreadableLockGrace = 10 * time.Second

// AcquireLock claims the session lock at lockPath. A lock held by a live
// process yields an error wrapping ErrWorkflowInProgress. A stale lock, left
// behind by a process that no longer exists on this host, is replaced.
//
// The lock content is written to a temporary file and hard-linked into
// place, so other processes never observe a partially written lock.
func AcquireLock(lockPath, holder string) (*SessionLock, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return nil, fmt.Errorf("failed to get hostname: %w", err)
	}
	lock := &SessionLock{
		SessionID: uuid.New().String(),
		Holder:    holder,
		PID:       os.Getpid(),
		Hostname:  hostname,
		StartedAt: time.Now(),
		path:      lockPath,
	}
	data, err := json.MarshalIndent(lock, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal lock: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(lockPath), "."+filepath.Base(lockPath)+".*.tmp")
	if err != nil {
		return nil, fmt.Errorf("failed to create lock: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)
	_, werr := tmp.Write(data)
	if werr == nil {
		werr = tmp.Sync()
	}
	if cerr := tmp.Close(); werr != nil || cerr != nil {
		return nil, fmt.Errorf("failed to write lock: %v", errors.Join(werr, cerr))
	}

	for attempt := 0; attempt < 2; attempt++ {
		err := os.Link(tmpPath, lockPath)
		if err == nil {
			return lock, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("failed to create lock: %w", err)
		}

		existing, rerr := ReadLock(lockPath)
		switch {
		case os.IsNotExist(rerr):
			// released between the link and the read
			continue
		case rerr != nil:
			info, serr := os.Stat(lockPath)
			if serr != nil || time.Since(info.ModTime()) < unreadableLockGrace {
				return nil, fmt.Errorf("%w (unreadable lock at %s)", ErrWorkflowInProgress, lockPath)
			}
		case isProcessAlive(existing.PID, existing.Hostname):
			return nil, fmt.Errorf("%w (%s, PID %d on %s, started %s)", ErrWorkflowInProgress,
				existing.Holder, existing.PID, existing.Hostname, existing.StartedAt.Format(time.RFC3339))
		default:
			// Only remove the stale lock we inspected, not one that
			// replaced it in the meantime.
			if current, err := ReadLock(lockPath); err == nil && current.SessionID != existing.SessionID {
				return nil, fmt.Errorf("%w (%s, PID %d on %s)", ErrWorkflowInProgress,
					current.Holder, current.PID, current.Hostname)
			}
		}
		if err := os.Remove(lockPath); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to remove stale lock: %w", err)
		}
	}
	return nil, fmt.Errorf("%w: lock at %s was re-acquired concurrently", ErrWorkflowInProgress, lockPath)
}

// ReadLock reads an existing lock file.
func ReadLock(lockPath string) (*SessionLock, error) {
	data, err := os.ReadFile(lockPath)
	if err != nil {
		return nil, err
	}
	var l SessionLock
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("malformed lock file: %w", err)
	}
	l.path = lockPath
	return &l, nil
}

// Release removes the lock file if this session still owns it.
func (l *SessionLock) Release() error {
	if l == nil || l.path == "" {
		return nil
	}
	current, err := ReadLock(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read lock: %w", err)
	}
	if current.SessionID != l.SessionID {
		return nil
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove lock: %w", err)
	}
	return nil
}

// isProcessAlive checks if a process with the given PID exists on the given hostname.
func isProcessAlive(pid int, hostname string) bool {
	currentHost, err := os.Hostname()
	if err != nil {
		// Can't check hostname, assume remote/alive
		return true
	}
	if !strings.EqualFold(hostname, currentHost) {
		// Remote host - can't check, assume alive
		return true
	}
	if pid <= 0 {
		return false
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = process.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	// EPERM: the process exists but belongs to someone else
	return errors.Is(err, syscall.EPERM)
}
