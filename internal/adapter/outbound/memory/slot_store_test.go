package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/certdesk/admin-console/internal/domain/session"
)

var _ session.SlotStore = (*SlotStore)(nil)

func TestSlotStore_StoreAndLoad(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewSlotStore()

	if err := store.Store(ctx, map[string]string{session.TokenSlot: "tok", session.UserSlot: "{}"}); err != nil {
		t.Fatalf("Store() error: %v", err)
	}

	got, err := store.Load(ctx, session.TokenSlot, session.UserSlot, "missing")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if got[session.TokenSlot] != "tok" || got[session.UserSlot] != "{}" {
		t.Errorf("Load() = %v", got)
	}
	if _, ok := got["missing"]; ok {
		t.Error("missing slot should be absent")
	}
}

func TestSlotStore_RemoveIsIdempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewSlotStore()
	_ = store.Store(ctx, map[string]string{session.TokenSlot: "tok"})

	for i := 0; i < 2; i++ {
		if err := store.Remove(ctx, session.TokenSlot, session.UserSlot); err != nil {
			t.Fatalf("Remove() #%d error: %v", i+1, err)
		}
	}
	if store.Len() != 0 {
		t.Errorf("Len() = %d, want 0", store.Len())
	}
}

func TestSlotStore_ClosedReturnsError(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewSlotStore()
	if err := store.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	if _, err := store.Load(ctx, session.TokenSlot); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("Load() error = %v, want ErrStoreClosed", err)
	}
	if err := store.Store(ctx, map[string]string{"k": "v"}); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("Store() error = %v, want ErrStoreClosed", err)
	}
	if err := store.Remove(ctx, "k"); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("Remove() error = %v, want ErrStoreClosed", err)
	}
}

func TestSlotStore_ConcurrentAccess(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewSlotStore()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = store.Store(ctx, map[string]string{session.TokenSlot: "t", session.UserSlot: "u"})
		}()
		go func() {
			defer wg.Done()
			_, _ = store.Load(ctx, session.TokenSlot, session.UserSlot)
		}()
	}
	wg.Wait()

	if store.Len() != 2 {
		t.Errorf("Len() = %d, want 2", store.Len())
	}
}
