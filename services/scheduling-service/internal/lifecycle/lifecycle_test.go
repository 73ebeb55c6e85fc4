package lifecycle

import (
	"testing"

	"github.com/md-rashed-zaman/clinicdesk/services/scheduling-service/internal/apperr"
	"github.com/md-rashed-zaman/clinicdesk/services/scheduling-service/internal/model"
)

var allEvents = []Event{EventConfirm, EventMarkAbsent, EventSweepAbsent, EventCancel, EventReschedule}

func TestPendingTransitions(t *testing.T) {
	want := map[Event]model.Status{
		EventConfirm:     model.StatusCompleted,
		EventMarkAbsent:  model.StatusAbsent,
		EventSweepAbsent: model.StatusAbsent,
		EventCancel:      model.StatusCancelled,
		EventReschedule:  model.StatusCancelled,
	}
	for ev, to := range want {
		got, changed, err := Next(model.StatusPending, ev)
		if err != nil || !changed || got != to {
			t.Fatalf("%s: got %s changed=%v err=%v", ev, got, changed, err)
		}
	}
}

func TestTerminalStatesRejectEverything(t *testing.T) {
	for _, from := range []model.Status{model.StatusCompleted, model.StatusAbsent, model.StatusCancelled} {
		for _, ev := range allEvents {
			got, changed, err := Next(from, ev)
			if from == model.StatusCancelled && ev == EventCancel {
				if err != nil || changed || got != model.StatusCancelled {
					t.Fatalf("re-cancel must be a no-op success: got %s changed=%v err=%v", got, changed, err)
				}
				continue
			}
			if !apperr.Is(err, apperr.KindInvalidTransition) {
				t.Fatalf("%s + %s: expected invalid_transition, got %v", from, ev, err)
			}
			if changed || got != from {
				t.Fatalf("%s + %s: state must not move, got %s", from, ev, got)
			}
		}
	}
}

func TestUnknownInputs(t *testing.T) {
	if _, _, err := Next(model.StatusPending, Event("teleport")); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, _, err := Next(model.Status("archived"), EventCancel); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
