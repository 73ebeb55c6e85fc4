package model

import (
	"testing"
	"time"
)

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2026-03-02")
	if err != nil {
		t.Fatalf("ParseDate failed: %v", err)
	}
	if d.String() != "2026-03-02" || d.Weekday() != time.Monday {
		t.Fatalf("unexpected date %s (%s)", d, d.Weekday())
	}
	for _, bad := range []string{"", "2026-02-30", "02/03/2026", "2026-3-2"} {
		if _, err := ParseDate(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestDateArithmetic(t *testing.T) {
	d := Date{Year: 2026, Month: time.December, Day: 31}
	if got := d.AddDays(1).String(); got != "2027-01-01" {
		t.Fatalf("unexpected next day %s", got)
	}
	if !d.Before(d.AddDays(1)) || d.Before(d) || !d.AddDays(1).After(d) {
		t.Fatal("ordering is wrong")
	}
}

func TestTodayUsesLocation(t *testing.T) {
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	now := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	if got := Today(now, time.UTC).String(); got != "2026-03-01" {
		t.Fatalf("utc today %s", got)
	}
	if got := Today(now, tokyo).String(); got != "2026-03-02" {
		t.Fatalf("tokyo today %s", got)
	}
}

func TestParseMinute(t *testing.T) {
	m, err := ParseMinute("09:30")
	if err != nil || m != 570 || m.String() != "09:30" {
		t.Fatalf("unexpected minute %d (%v)", m, err)
	}
	if m, err := ParseMinute("24:00"); err != nil || m != MinutesPerDay || m.Valid() {
		t.Fatalf("24:00 should parse to end of day, got %d (%v)", m, err)
	}
	if _, err := ParseMinute("24:30"); err == nil {
		t.Fatal("expected error for 24:30")
	}
}

func TestTemplateValidate(t *testing.T) {
	valid := Template{
		OwnerID:     "P1",
		Timezone:    "UTC",
		SlotMinutes: 30,
		Ranges:      map[time.Weekday][]Range{time.Monday: {{Start: 540, End: 660}, {Start: 780, End: 1440}}},
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid template, got %v", err)
	}

	cases := map[string]func(*Template){
		"bad zone":     func(t *Template) { t.Timezone = "Mars/Olympus" },
		"tiny slot":    func(t *Template) { t.SlotMinutes = 1 },
		"empty range":  func(t *Template) { t.Ranges[time.Monday] = []Range{{Start: 600, End: 600}} },
		"overlap":      func(t *Template) { t.Ranges[time.Monday] = []Range{{Start: 540, End: 660}, {Start: 600, End: 700}} },
		"missing zone": func(t *Template) { t.Timezone = "" },
	}
	for name, mutate := range cases {
		tpl := valid
		tpl.Ranges = map[time.Weekday][]Range{time.Monday: append([]Range(nil), valid.Ranges[time.Monday]...)}
		mutate(&tpl)
		if err := tpl.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestActorCanManage(t *testing.T) {
	if !(Actor{ID: "P1", Role: RoleProfessional}).CanManage("P1") {
		t.Fatal("owner should manage own calendar")
	}
	if (Actor{ID: "P2", Role: RoleProfessional}).CanManage("P1") {
		t.Fatal("other professional must not manage P1")
	}
	if !(Actor{ID: "A", Role: RoleAdmin}).CanManage("P1") {
		t.Fatal("admin should manage any calendar")
	}
	if (Actor{}).CanManage("") {
		t.Fatal("anonymous actor must not match empty owner")
	}
}
