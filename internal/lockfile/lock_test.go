package lockfile

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofrs/flock"
)

func TestAcquireAndRelease(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	lease, err := Acquire(ctx, dir, "rm-1", "push", 0)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if lease.Path() != filepath.Join(dir, "locks", "rm-1.lock") {
		t.Errorf("Path() = %s", lease.Path())
	}

	holder, err := Holder(dir, "rm-1")
	if err != nil {
		t.Fatalf("Holder() error = %v", err)
	}
	if holder == nil || holder.PID != os.Getpid() || holder.Direction != "push" {
		t.Errorf("Holder() = %+v", holder)
	}

	if err := lease.Release(); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if err := lease.Release(); err != nil {
		t.Errorf("second Release() error = %v", err)
	}

	holder, err = Holder(dir, "rm-1")
	if err != nil || holder != nil {
		t.Errorf("Holder() after release = %+v, %v", holder, err)
	}

	again, err := Acquire(ctx, dir, "rm-1", "pull", 0)
	if err != nil {
		t.Fatalf("re-Acquire() error = %v", err)
	}
	_ = again.Release()
}

func TestAcquireFailsFastWhenHeld(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	lease, err := Acquire(ctx, dir, "rm-1", "push", 0)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	defer func() { _ = lease.Release() }()

	start := time.Now()
	_, err = Acquire(ctx, dir, "rm-1", "pull", 0)
	if !errors.Is(err, ErrSyncInProgress) {
		t.Fatalf("second Acquire() error = %v, want ErrSyncInProgress", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("expected fast failure, took %v", elapsed)
	}
}

func TestAcquireWaitsUpToTimeout(t *testing.T) {
	dir := t.TempDir()
	holder := flock.New(LockPath(dir, "rm-1"))
	if err := os.MkdirAll(filepath.Dir(holder.Path()), 0o750); err != nil {
		t.Fatal(err)
	}
	locked, err := holder.TryLock()
	if err != nil || !locked {
		t.Fatalf("holder lock failed: %v", err)
	}
	defer func() { _ = holder.Unlock() }()

	start := time.Now()
	_, err = Acquire(context.Background(), dir, "rm-1", "push", 120*time.Millisecond)
	elapsed := time.Since(start)
	if !errors.Is(err, ErrSyncInProgress) {
		t.Fatalf("Acquire() error = %v, want ErrSyncInProgress", err)
	}
	if elapsed < 100*time.Millisecond || elapsed > time.Second {
		t.Errorf("expected wait near the timeout, got %v", elapsed)
	}
}

func TestLeasesAreIndependentPerRoadmap(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	a, err := Acquire(ctx, dir, "rm-a", "push", 0)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = a.Release() }()

	b, err := Acquire(ctx, dir, "rm-b", "push", 0)
	if err != nil {
		t.Fatalf("Acquire(rm-b) error = %v", err)
	}
	_ = b.Release()
}

func TestAcquireRequiresRoadmap(t *testing.T) {
	if _, err := Acquire(context.Background(), t.TempDir(), "", "push", 0); err == nil {
		t.Error("expected error for empty roadmap id")
	}
}

func TestLockPathSanitizes(t *testing.T) {
	got := LockPath("/data", "team/q3:plan")
	want := filepath.Join("/data", "locks", "team_q3_plan.lock")
	if got != want {
		t.Errorf("LockPath() = %s, want %s", got, want)
	}
}
