// Package lockfile provides the per-roadmap file lease that keeps two sync
// runs for the same roadmap from interleaving.
package lockfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"github.com/jacobcy/VibeCopilot-sub000/internal/debug"
)

const (
	// DefaultTimeout is how long Acquire waits for a held lease.
	DefaultTimeout = 2 * time.Second

	pollInterval = 50 * time.Millisecond
	locksDirName = "locks"
)

// ErrSyncInProgress is returned when another run holds the roadmap's lease.
var ErrSyncInProgress = errors.New("sync already in progress for this roadmap")

// LockInfo describes the holder of a lease. It is written next to the lock
// file so a blocked run can report who holds it.
type LockInfo struct {
	PID       int       `json:"pid"`
	RoadmapID string    `json:"roadmap_id"`
	Direction string    `json:"direction,omitempty"`
	StartedAt time.Time `json:"started_at"`
}

// Lease is a held per-roadmap lock.
type Lease struct {
	flock    *flock.Flock
	infoPath string
}

// LockPath returns <dataDir>/locks/<roadmap>.lock.
func LockPath(dataDir, roadmapID string) string {
	return filepath.Join(dataDir, locksDirName, sanitize(roadmapID)+".lock")
}

func infoPathFor(lockPath string) string {
	return strings.TrimSuffix(lockPath, ".lock") + ".json"
}

func sanitize(id string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, id)
}

// Acquire takes the lease for roadmapID under dataDir, waiting up to timeout.
// A zero timeout tries once. When the lease stays held the error wraps
// ErrSyncInProgress and names the holder when known.
func Acquire(ctx context.Context, dataDir, roadmapID, direction string, timeout time.Duration) (*Lease, error) {
	if roadmapID == "" {
		return nil, fmt.Errorf("lease requires a roadmap id")
	}
	path := LockPath(dataDir, roadmapID)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}

	fl := flock.New(path)
	locked, err := tryLock(ctx, fl, timeout)
	if err != nil {
		return nil, err
	}
	if !locked {
		return nil, heldError(path)
	}

	lease := &Lease{flock: fl, infoPath: infoPathFor(path)}
	info := LockInfo{PID: os.Getpid(), RoadmapID: roadmapID, Direction: direction, StartedAt: time.Now().UTC()}
	if data, err := json.Marshal(info); err == nil {
		if err := os.WriteFile(lease.infoPath, data, 0o600); err != nil {
			debug.Logf("could not write lease info %s: %v", lease.infoPath, err)
		}
	}
	debug.Logf("acquired sync lease: %s", path)
	return lease, nil
}

func tryLock(ctx context.Context, fl *flock.Flock, timeout time.Duration) (bool, error) {
	if timeout <= 0 {
		locked, err := fl.TryLock()
		if err != nil {
			return false, fmt.Errorf("acquire sync lease: %w", err)
		}
		return locked, nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	locked, err := fl.TryLockContext(waitCtx, pollInterval)
	if err == nil {
		return locked, nil
	}
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return false, nil
	}
	return false, fmt.Errorf("acquire sync lease: %w", err)
}

func heldError(path string) error {
	info, err := readInfo(infoPathFor(path))
	if err != nil || info == nil {
		return ErrSyncInProgress
	}
	return fmt.Errorf("%w (pid %d, %s since %s)", ErrSyncInProgress,
		info.PID, info.Direction, info.StartedAt.Format(time.RFC3339))
}

// Holder returns the recorded holder of roadmapID's lease, or nil when the
// lease is free.
func Holder(dataDir, roadmapID string) (*LockInfo, error) {
	path := LockPath(dataDir, roadmapID)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}
	other := flock.New(path)
	locked, err := other.TryLock()
	if err != nil {
		return nil, err
	}
	if locked {
		_ = other.Unlock()
		return nil, nil
	}
	return readInfo(infoPathFor(path))
}

func readInfo(path string) (*LockInfo, error) {
	data, err := os.ReadFile(path) // #nosec G304 - path is derived from the data dir
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var info LockInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("decode lease info: %w", err)
	}
	return &info, nil
}

// Path returns the lock file path.
func (l *Lease) Path() string { return l.flock.Path() }

// Release drops the lease. Safe to call more than once.
func (l *Lease) Release() error {
	if l == nil || l.flock == nil {
		return nil
	}
	if l.flock.Locked() {
		_ = os.Remove(l.infoPath)
	}
	debug.Logf("releasing sync lease: %s", l.flock.Path())
	return l.flock.Unlock()
}
