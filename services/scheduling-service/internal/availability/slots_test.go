package availability

import (
	"reflect"
	"testing"
	"time"

	"github.com/md-rashed-zaman/clinicdesk/services/scheduling-service/internal/model"
)

func mondayTemplate() model.Template {
	return model.Template{
		OwnerID:     "P1",
		Timezone:    "UTC",
		SlotMinutes: 30,
		Ranges: map[time.Weekday][]model.Range{
			time.Monday: {{Start: 9 * 60, End: 11 * 60}},
		},
	}
}

func mins(hhmm ...string) []model.Minute {
	out := make([]model.Minute, 0, len(hhmm))
	for _, s := range hhmm {
		m, err := model.ParseMinute(s)
		if err != nil {
			panic(err)
		}
		out = append(out, m)
	}
	return out
}

// 2026-03-02 is a Monday.
var nextMonday = model.Date{Year: 2026, Month: time.March, Day: 2}

func TestResolve_Basic(t *testing.T) {
	now := time.Date(2026, 2, 26, 12, 0, 0, 0, time.UTC)

	got := Resolve(mondayTemplate(), nextMonday, nil, now)
	if want := mins("09:00", "09:30", "10:00", "10:30"); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}

	got = Resolve(mondayTemplate(), nextMonday, mins("09:30"), now)
	if want := mins("09:00", "10:00", "10:30"); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestResolve_NoRangesForWeekday(t *testing.T) {
	now := time.Date(2026, 2, 26, 12, 0, 0, 0, time.UTC)
	tuesday := nextMonday.AddDays(1)
	if got := Resolve(mondayTemplate(), tuesday, nil, now); len(got) != 0 {
		t.Fatalf("expected no slots, got %v", got)
	}
}

func TestResolve_PastDateIsEmpty(t *testing.T) {
	now := time.Date(2026, 3, 3, 8, 0, 0, 0, time.UTC)
	if got := Resolve(mondayTemplate(), nextMonday, nil, now); len(got) != 0 {
		t.Fatalf("expected no back-dated slots, got %v", got)
	}
}

func TestResolve_TodaySkipsStartedSlots(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	got := Resolve(mondayTemplate(), nextMonday, nil, now)
	if want := mins("10:00", "10:30"); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestResolve_UsesOwnerZone(t *testing.T) {
	tpl := mondayTemplate()
	tpl.Timezone = "America/New_York"
	if _, err := tpl.Location(); err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	// 2026-03-02 13:45 UTC is 08:45 in New York: Monday, nothing started yet.
	now := time.Date(2026, 3, 2, 13, 45, 0, 0, time.UTC)
	got := Resolve(tpl, nextMonday, nil, now)
	if want := mins("09:00", "09:30", "10:00", "10:30"); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	// 2026-03-03 02:00 UTC is still Monday evening in New York, so Monday is today, not past.
	now = time.Date(2026, 3, 3, 2, 0, 0, 0, time.UTC)
	if got := Resolve(tpl, nextMonday, nil, now); len(got) != 0 {
		t.Fatalf("all Monday slots have started, got %v", got)
	}
	if got := Resolve(tpl, nextMonday.AddDays(7), nil, now); len(got) != 4 {
		t.Fatalf("expected next week's slots, got %v", got)
	}
}

func TestResolve_PartialTrailingSlotDropped(t *testing.T) {
	tpl := mondayTemplate()
	tpl.Ranges[time.Monday] = []model.Range{{Start: 9 * 60, End: 10*60 + 45}, {Start: 14 * 60, End: 15 * 60}}
	now := time.Date(2026, 2, 26, 12, 0, 0, 0, time.UTC)
	got := Resolve(tpl, nextMonday, nil, now)
	if want := mins("09:00", "09:30", "10:00", "14:00", "14:30"); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestResolve_InvalidZoneIsEmpty(t *testing.T) {
	tpl := mondayTemplate()
	tpl.Timezone = ""
	if got := Resolve(tpl, nextMonday, nil, time.Now()); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
}

func TestContains(t *testing.T) {
	slots := mins("09:00", "10:00", "10:30")
	if !Contains(slots, 600) || Contains(slots, 570) || Contains(nil, 540) {
		t.Fatal("Contains is wrong")
	}
}
