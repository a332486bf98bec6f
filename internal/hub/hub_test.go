package hub

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/DoyleJ11/pose-reveal-kiosk/internal/kiosk"
	"github.com/DoyleJ11/pose-reveal-kiosk/internal/sequence"
)

func TestHub_Create_Get_SamePointer(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := NewHub(ctx, kiosk.Config{CatalogSize: 9})

	k1, err := h.Create("ZED123")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	k2 := h.Get("ZED123")

	if k1 == nil || k2 == nil || k1 != k2 {
		t.Fatalf("expected same kiosk pointer")
	}
	if k1.Code() != "ZED123" {
		t.Fatalf("want code ZED123, got %q", k1.Code())
	}

	again, err := h.Create("ZED123")
	if !errors.Is(err, ErrKioskExists) || again != nil {
		t.Fatalf("create on a taken code: want ErrKioskExists, got %v, %v", again, err)
	}
}

func TestHub_Get_Missing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := NewHub(ctx, kiosk.Config{CatalogSize: 9})

	if k := h.Get("NOPE"); k != nil {
		t.Fatalf("expected nil for unknown code")
	}
}

func TestHub_Create_CatalogTooSmall(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := NewHub(ctx, kiosk.Config{CatalogSize: 2})

	_, err := h.Create("A")
	if !errors.Is(err, sequence.ErrNotEnoughPoses) {
		t.Fatalf("want ErrNotEnoughPoses, got %v", err)
	}
}

func TestHub_Remove_StopsKiosk(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := NewHub(ctx, kiosk.Config{CatalogSize: 9})

	k, _ := h.Create("A")
	_, _ = h.Create("B")
	h.Inbox() <- RemoveKiosk{Code: "A"}

	select {
	case <-k.Done():
	case <-time.After(time.Second):
		t.Fatalf("removed kiosk still running")
	}

	codes, err := h.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !slices.Equal(codes, []string{"B"}) {
		t.Fatalf("want [B], got %v", codes)
	}
}

func TestHub_Ensure_CreatesOnce(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := NewHub(ctx, kiosk.Config{CatalogSize: 9})

	k1, err := h.Ensure("MAIN")
	if err != nil || k1 == nil {
		t.Fatalf("ensure: %v", err)
	}
	k2, err := h.Ensure("MAIN")
	if err != nil || k2 != k1 {
		t.Fatalf("second ensure should return the same kiosk, got %p vs %p (%v)", k2, k1, err)
	}
	if got := h.Get("MAIN"); got != k1 {
		t.Fatalf("get after ensure: want %p, got %p", k1, got)
	}
}

func TestHub_List_Sorted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := NewHub(ctx, kiosk.Config{CatalogSize: 9})

	for _, code := range []string{"C", "A", "B"} {
		if _, err := h.Create(code); err != nil {
			t.Fatalf("create %s: %v", code, err)
		}
	}
	codes, err := h.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !slices.Equal(codes, []string{"A", "B", "C"}) {
		t.Fatalf("want [A B C], got %v", codes)
	}
}

// after the parent context is cancelled no call may block
func TestHub_CallsReturnAfterShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := NewHub(ctx, kiosk.Config{CatalogSize: 9})

	k, err := h.Create("MAIN")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	cancel()

	select {
	case <-k.Done():
	case <-time.After(time.Second):
		t.Fatalf("kiosk still running after hub shutdown")
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if got := h.Get("MAIN"); got != nil {
			t.Errorf("get after shutdown: want nil, got %p", got)
		}
		if _, err := h.Create("OTHER"); !errors.Is(err, ErrHubClosed) {
			t.Errorf("create after shutdown: want ErrHubClosed, got %v", err)
		}
		if _, err := h.Ensure("MAIN"); !errors.Is(err, ErrHubClosed) {
			t.Errorf("ensure after shutdown: want ErrHubClosed, got %v", err)
		}
		if _, err := h.List(); !errors.Is(err, ErrHubClosed) {
			t.Errorf("list after shutdown: want ErrHubClosed, got %v", err)
		}
		h.Shutdown()
		if k.Send(kiosk.Detection{}) {
			t.Errorf("send to a stopped kiosk reported success")
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("hub call blocked after shutdown")
	}
}

func TestHub_Shutdown_StopsKiosks(t *testing.T) {
	h := NewHub(context.Background(), kiosk.Config{CatalogSize: 9})
	k, err := h.Create("MAIN")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	h.Shutdown()
	select {
	case <-k.Done():
	case <-time.After(time.Second):
		t.Fatalf("kiosk still running after Shutdown")
	}
	if got := h.Get("MAIN"); got != nil {
		t.Fatalf("get after Shutdown: want nil, got %p", got)
	}
}
