package telemetry

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/jacobcy/VibeCopilot-sub000/internal/storage/memory"
	"github.com/jacobcy/VibeCopilot-sub000/internal/types"
)

func TestInitDisabledInstallsNoop(t *testing.T) {
	if err := Init(context.Background(), Options{}); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if Enabled() {
		t.Fatal("Enabled() = true after disabled Init")
	}
	store := memory.New()
	if got := WrapStore(store); got != store {
		t.Error("WrapStore() wrapped a store while telemetry is disabled")
	}

	inst := NewSyncInstruments()
	ctx, span, start := inst.StartRun(context.Background(), "push", "rm-1")
	inst.Item(ctx, "push", "epic", "created")
	inst.Error(ctx, "push", "story", "transient")
	inst.EndRun(ctx, span, start, "push", errors.New("x"))
}

func TestInitEnabledWrapsStore(t *testing.T) {
	var out bytes.Buffer
	ctx := context.Background()
	if err := Init(ctx, Options{ServiceName: "vibe-test", Enabled: true, Output: &out}); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	t.Cleanup(func() {
		Shutdown(context.Background())
		_ = Init(context.Background(), Options{})
	})

	store := WrapStore(memory.New())
	if _, ok := store.(*InstrumentedStore); !ok {
		t.Fatalf("WrapStore() = %T, want *InstrumentedStore", store)
	}
	m, err := store.CreateOrUpdateMapping(ctx, &types.EntityMapping{
		LocalEntityID:   "t1",
		LocalEntityType: types.EntityTask,
		BackendType:     types.BackendGitHub,
		RemoteEntityID:  "I_1",
	})
	if err != nil || m == nil {
		t.Fatalf("CreateOrUpdateMapping() = %v, %v", m, err)
	}

	Shutdown(ctx)
	if out.Len() == 0 {
		t.Error("expected spans to be written on shutdown")
	}
}

func TestFirstNonEmpty(t *testing.T) {
	if got := firstNonEmpty("", "a", "b"); got != "a" {
		t.Errorf("firstNonEmpty() = %q", got)
	}
	if got := firstNonEmpty(); got != "" {
		t.Errorf("firstNonEmpty() = %q", got)
	}
}
