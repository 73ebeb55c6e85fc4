package assignment

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/md-rashed-zaman/clinicdesk/services/scheduling-service/internal/apperr"
	"github.com/md-rashed-zaman/clinicdesk/services/scheduling-service/internal/clock"
	"github.com/md-rashed-zaman/clinicdesk/services/scheduling-service/internal/outbox"
	"github.com/md-rashed-zaman/clinicdesk/services/scheduling-service/internal/storage/memory"
)

func newTestService() (*Service, *memory.Store) {
	store := memory.New()
	clk := clock.NewFake(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
	return New(store, clk, slog.New(slog.NewTextHandler(io.Discard, nil)), time.Second), store
}

func activeCount(t *testing.T, svc *Service, subjectID string) int {
	t.Helper()
	list, err := svc.List(context.Background(), subjectID)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	n := 0
	for _, a := range list {
		if a.Active {
			n++
		}
	}
	return n
}

func TestAssignReplacesActive(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()

	first, err := svc.Assign(ctx, "S1", "plan-a")
	if err != nil {
		t.Fatalf("Assign failed: %v", err)
	}
	second, err := svc.Assign(ctx, "S1", "plan-b")
	if err != nil {
		t.Fatalf("Assign failed: %v", err)
	}

	old, err := svc.Get(ctx, first.ID)
	if err != nil || old.Active || old.DeactivatedAt == nil {
		t.Fatalf("first assignment should be inactive: %+v (%v)", old, err)
	}
	cur, ok, err := svc.Active(ctx, "S1")
	if err != nil || !ok || cur.ID != second.ID || cur.ResourceID != "plan-b" {
		t.Fatalf("unexpected active assignment %+v ok=%v err=%v", cur, ok, err)
	}

	var activated, deactivated int
	for _, evt := range store.Events() {
		switch evt.EventType {
		case outbox.TypeAssignmentActivated:
			activated++
		case outbox.TypeAssignmentDeactivated:
			deactivated++
		}
	}
	if activated != 2 || deactivated != 1 {
		t.Fatalf("unexpected events activated=%d deactivated=%d", activated, deactivated)
	}
}

func TestUnassignIsIdempotent(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()
	a, _ := svc.Assign(ctx, "S1", "plan-a")

	got, err := svc.Unassign(ctx, a.ID)
	if err != nil || got.Active {
		t.Fatalf("Unassign failed: %+v (%v)", got, err)
	}
	events := len(store.Events())
	again, err := svc.Unassign(ctx, a.ID)
	if err != nil || again.Active {
		t.Fatalf("second Unassign must succeed: %+v (%v)", again, err)
	}
	if len(store.Events()) != events {
		t.Fatal("second Unassign must not emit events")
	}
	if _, ok, _ := svc.Active(ctx, "S1"); ok {
		t.Fatal("subject should have no active assignment")
	}
	if _, err := svc.Unassign(ctx, "missing"); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not_found, got %v", err)
	}
}

func TestAssignValidation(t *testing.T) {
	svc, _ := newTestService()
	if _, err := svc.Assign(context.Background(), " ", "plan"); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := svc.List(context.Background(), ""); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestConcurrentAssignKeepsOneActive(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	subjects := []string{"S1", "S2"}

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			subject := subjects[i%len(subjects)]
			a, err := svc.Assign(ctx, subject, fmt.Sprintf("plan-%d", i))
			if err != nil {
				t.Errorf("Assign failed: %v", err)
				return
			}
			if rand.Intn(3) == 0 {
				if _, err := svc.Unassign(ctx, a.ID); err != nil {
					t.Errorf("Unassign failed: %v", err)
				}
			}
		}(i)
	}
	wg.Wait()

	for _, s := range subjects {
		if n := activeCount(t, svc, s); n > 1 {
			t.Fatalf("subject %s has %d active assignments", s, n)
		}
	}
}
