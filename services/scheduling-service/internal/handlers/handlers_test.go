package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/md-rashed-zaman/clinicdesk/libs/auth"
	"github.com/md-rashed-zaman/clinicdesk/libs/httpx"
	"github.com/md-rashed-zaman/clinicdesk/services/scheduling-service/internal/assignment"
	"github.com/md-rashed-zaman/clinicdesk/services/scheduling-service/internal/clock"
	"github.com/md-rashed-zaman/clinicdesk/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/clinicdesk/services/scheduling-service/internal/scheduling"
	"github.com/md-rashed-zaman/clinicdesk/services/scheduling-service/internal/storage/memory"
	"github.com/md-rashed-zaman/clinicdesk/services/scheduling-service/internal/sweep"
)

const secret = "test-secret"

type stubSweeper struct {
	rep sweep.Report
	err error
}

func (s *stubSweeper) Run(context.Context) (sweep.Report, error) { return s.rep, s.err }

type harness struct {
	mux     *http.ServeMux
	svc     *scheduling.Service
	sweeper *stubSweeper
}

func newHarness(t *testing.T, limiter httpx.Limiter) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.New()
	// Monday 2026-03-02, 08:00 UTC.
	clk := clock.NewFake(time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC))
	svc := scheduling.New(store, clk, logger, scheduling.Config{})
	sw := &stubSweeper{}

	admin := model.Actor{ID: "admin-1", Role: model.RoleAdmin}
	_, err := svc.PutTemplate(context.Background(), admin, model.Template{
		OwnerID:     "P1",
		Timezone:    "UTC",
		SlotMinutes: 30,
		Ranges:      model.WeeklyRanges{time.Monday: {{Start: 9 * 60, End: 11 * 60}}},
	})
	if err != nil {
		t.Fatalf("PutTemplate failed: %v", err)
	}

	mux := http.NewServeMux()
	Routes(mux, Deps{
		Scheduling:    svc,
		Assignments:   assignment.New(store, clk, logger, time.Second),
		Sweeper:       sw,
		Verifier:      auth.NewVerifier(secret, nil),
		PublicLimiter: limiter,
		Logger:        logger,
	})
	return &harness{mux: mux, svc: svc, sweeper: sw}
}

func bearer(t *testing.T, sub string, role model.Role) string {
	t.Helper()
	tok, err := auth.SignHS256(auth.Claims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}, secret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return "Bearer " + tok
}

func (h *harness) do(t *testing.T, method, path, authz string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	rec := httptest.NewRecorder()
	h.mux.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func expect(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("expected %d, got %d: %s", status, rec.Code, rec.Body.String())
	}
	if code != "" {
		if got := decodeBody[errorBody](t, rec); got.Code != code {
			t.Fatalf("expected code %q, got %+v", code, got)
		}
	}
}

func book(t *testing.T, h *harness, tm string) appointmentView {
	t.Helper()
	rec := h.do(t, http.MethodPost, "/api/v1/public/appointments", "", map[string]string{
		"owner_id": "P1", "subject_contact": "ana@example.com", "date": "2026-03-02", "time": tm,
	})
	expect(t, rec, http.StatusCreated, "")
	return decodeBody[appointmentView](t, rec)
}

func TestAvailabilityAndBooking(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(t, http.MethodGet, "/api/v1/public/availability?owner_id=P1&date=2026-03-02", "", nil)
	expect(t, rec, http.StatusOK, "")
	avail := decodeBody[struct {
		Slots []string `json:"slots"`
	}](t, rec)
	if len(avail.Slots) != 4 || avail.Slots[0] != "09:00" || avail.Slots[3] != "10:30" {
		t.Fatalf("unexpected slots %v", avail.Slots)
	}

	appt := book(t, h, "09:30")
	if appt.Status != model.StatusPending || len(appt.CancellationToken) != 43 {
		t.Fatalf("unexpected booking %+v", appt)
	}

	rec = h.do(t, http.MethodPost, "/api/v1/public/appointments", "", map[string]string{
		"owner_id": "P1", "subject_id": "S2", "date": "2026-03-02", "time": "09:30",
	})
	expect(t, rec, http.StatusConflict, "conflict")

	rec = h.do(t, http.MethodGet, "/api/v1/public/availability?owner_id=P1&date=2026-03-02", "", nil)
	avail = decodeBody[struct {
		Slots []string `json:"slots"`
	}](t, rec)
	for _, s := range avail.Slots {
		if s == "09:30" {
			t.Fatal("booked slot still offered")
		}
	}
}

func TestRequestValidation(t *testing.T) {
	h := newHarness(t, nil)
	cases := map[string]struct {
		method, path string
		body         any
	}{
		"malformed date":  {http.MethodGet, "/api/v1/public/availability?owner_id=P1&date=2026-13-40", nil},
		"missing owner":   {http.MethodGet, "/api/v1/public/availability?date=2026-03-02", nil},
		"missing subject": {http.MethodPost, "/api/v1/public/appointments", map[string]string{"owner_id": "P1", "date": "2026-03-02", "time": "09:00"}},
		"bad time":        {http.MethodPost, "/api/v1/public/appointments", map[string]string{"owner_id": "P1", "subject_id": "S", "date": "2026-03-02", "time": "9am"}},
		"unknown field":   {http.MethodPost, "/api/v1/public/appointments", map[string]string{"owner_id": "P1", "subject_id": "S", "date": "2026-03-02", "time": "09:00", "room": "4"}},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			expect(t, h.do(t, c.method, c.path, "", c.body), http.StatusBadRequest, "validation")
		})
	}
}

func TestCancelWithToken(t *testing.T) {
	h := newHarness(t, nil)
	appt := book(t, h, "10:00")

	rec := h.do(t, http.MethodPost, "/api/v1/public/appointments/cancel", "", map[string]string{
		"appointment_id": appt.ID, "token": "not-the-token",
	})
	expect(t, rec, http.StatusForbidden, "forbidden")
	wrongToken := rec.Body.String()

	rec = h.do(t, http.MethodPost, "/api/v1/public/appointments/cancel", "", map[string]string{
		"appointment_id": "7d1f3c52-1111-4e0b-9c7a-000000000000", "token": "not-the-token",
	})
	expect(t, rec, http.StatusForbidden, "forbidden")
	if rec.Body.String() != wrongToken {
		t.Fatalf("unknown id must be indistinguishable from a wrong token: %s vs %s", rec.Body.String(), wrongToken)
	}

	for i := 0; i < 2; i++ {
		rec = h.do(t, http.MethodPost, "/api/v1/public/appointments/cancel", "", map[string]string{
			"appointment_id": appt.ID, "token": appt.CancellationToken, "reason": "travelling",
		})
		expect(t, rec, http.StatusOK, "")
		if got := decodeBody[map[string]string](t, rec); got["status"] != "cancelled" {
			t.Fatalf("attempt %d: unexpected response %v", i, got)
		}
	}
}

func TestAuthenticatedLifecycle(t *testing.T) {
	h := newHarness(t, nil)
	appt := book(t, h, "09:00")
	path := "/api/v1/appointments/" + appt.ID
	owner := bearer(t, "P1", model.RoleProfessional)

	expect(t, h.do(t, http.MethodGet, path, "", nil), http.StatusUnauthorized, "unauthenticated")
	expect(t, h.do(t, http.MethodGet, path, "Bearer garbage", nil), http.StatusUnauthorized, "unauthenticated")
	expect(t, h.do(t, http.MethodGet, path, bearer(t, "P1", "patient"), nil), http.StatusForbidden, "forbidden")
	expect(t, h.do(t, http.MethodGet, path, bearer(t, "P2", model.RoleProfessional), nil), http.StatusNotFound, "not_found")
	expect(t, h.do(t, http.MethodGet, path, owner, nil), http.StatusOK, "")

	rec := h.do(t, http.MethodGet, "/api/v1/appointments?date=2026-03-02", owner, nil)
	expect(t, rec, http.StatusOK, "")
	if got := decodeBody[map[string][]appointmentView](t, rec)["appointments"]; len(got) != 1 || got[0].CancellationToken != "" {
		t.Fatalf("unexpected agenda %+v", got)
	}

	rec = h.do(t, http.MethodPost, path+"/confirm", owner, map[string]string{"outcome": "seen"})
	expect(t, rec, http.StatusOK, "")
	if got := decodeBody[appointmentView](t, rec); got.Status != model.StatusCompleted || got.Outcome != "seen" {
		t.Fatalf("unexpected confirm result %+v", got)
	}

	expect(t, h.do(t, http.MethodPost, path+"/cancel", owner, nil), http.StatusConflict, "invalid_transition")
	expect(t, h.do(t, http.MethodPost, path+"/absent", owner, nil), http.StatusConflict, "invalid_transition")
}

func TestRescheduleEndpoint(t *testing.T) {
	h := newHarness(t, nil)
	appt := book(t, h, "09:00")
	owner := bearer(t, "P1", model.RoleProfessional)

	rec := h.do(t, http.MethodPost, "/api/v1/appointments/"+appt.ID+"/reschedule", owner, map[string]string{
		"date": "2026-03-02", "time": "10:30", "reason": "clinic running late",
	})
	expect(t, rec, http.StatusOK, "")
	moved := decodeBody[appointmentView](t, rec)
	if moved.RescheduledFrom != appt.ID || moved.Time != 10*60+30 || moved.CancellationToken == "" {
		t.Fatalf("unexpected reschedule result %+v", moved)
	}

	rec = h.do(t, http.MethodGet, "/api/v1/appointments/"+appt.ID, owner, nil)
	if old := decodeBody[appointmentView](t, rec); old.Status != model.StatusCancelled || old.RescheduledTo != moved.ID {
		t.Fatalf("unexpected old record %+v", old)
	}

	rec = h.do(t, http.MethodPost, "/api/v1/appointments/"+moved.ID+"/reschedule", owner, map[string]string{
		"date": "2026-03-02", "time": "13:00",
	})
	expect(t, rec, http.StatusConflict, "conflict")
}

func TestTemplateEndpoints(t *testing.T) {
	h := newHarness(t, nil)
	p2 := bearer(t, "P2", model.RoleProfessional)

	body := map[string]any{
		"timezone":     "UTC",
		"slot_minutes": 20,
		"ranges":       map[string]any{"tuesday": []map[string]string{{"start": "14:00", "end": "16:00"}}},
	}
	expect(t, h.do(t, http.MethodPut, "/api/v1/templates/P2", p2, body), http.StatusOK, "")
	rec := h.do(t, http.MethodGet, "/api/v1/templates/P2", p2, nil)
	expect(t, rec, http.StatusOK, "")
	if got := decodeBody[templateView](t, rec); got.SlotMinutes != 20 || len(got.Ranges[time.Tuesday]) != 1 {
		t.Fatalf("unexpected template %+v", got)
	}

	expect(t, h.do(t, http.MethodPut, "/api/v1/templates/P1", p2, body), http.StatusForbidden, "forbidden")
	body["timezone"] = "Mars/Olympus"
	expect(t, h.do(t, http.MethodPut, "/api/v1/templates/P2", p2, body), http.StatusBadRequest, "validation")
	body["timezone"], body["slot_minutes"] = "UTC", 2
	expect(t, h.do(t, http.MethodPut, "/api/v1/templates/P2", p2, body), http.StatusBadRequest, "validation")
}

func TestAssignmentEndpoints(t *testing.T) {
	h := newHarness(t, nil)
	pro := bearer(t, "P1", model.RoleProfessional)
	base := "/api/v1/subjects/S1/assignments"

	expect(t, h.do(t, http.MethodGet, base+"/active", pro, nil), http.StatusNotFound, "not_found")

	rec := h.do(t, http.MethodPost, base, pro, map[string]string{"resource_id": "plan-a"})
	expect(t, rec, http.StatusCreated, "")
	first := decodeBody[assignmentView](t, rec)
	rec = h.do(t, http.MethodPost, base, pro, map[string]string{"resource_id": "plan-b"})
	expect(t, rec, http.StatusCreated, "")
	second := decodeBody[assignmentView](t, rec)

	rec = h.do(t, http.MethodGet, base+"/active", pro, nil)
	if got := decodeBody[assignmentView](t, rec); got.ID != second.ID {
		t.Fatalf("expected %s active, got %+v", second.ID, got)
	}
	rec = h.do(t, http.MethodGet, "/api/v1/assignments/"+first.ID, pro, nil)
	if got := decodeBody[assignmentView](t, rec); got.Active || got.DeactivatedAt == nil {
		t.Fatalf("first assignment should be inactive: %+v", got)
	}

	for i := 0; i < 2; i++ {
		rec = h.do(t, http.MethodPost, "/api/v1/assignments/"+second.ID+"/unassign", pro, nil)
		expect(t, rec, http.StatusOK, "")
	}
	rec = h.do(t, http.MethodGet, base, pro, nil)
	for _, a := range decodeBody[map[string][]assignmentView](t, rec)["assignments"] {
		if a.Active {
			t.Fatalf("no assignment should be active: %+v", a)
		}
	}
	expect(t, h.do(t, http.MethodPost, base, pro, map[string]string{}), http.StatusBadRequest, "validation")
}

func TestSweepEndpoint(t *testing.T) {
	h := newHarness(t, nil)
	path := "/api/v1/admin/sweep"

	expect(t, h.do(t, http.MethodPost, path, bearer(t, "P1", model.RoleProfessional), nil), http.StatusForbidden, "forbidden")

	admin := bearer(t, "admin-1", model.RoleAdmin)
	h.sweeper.rep = sweep.Report{Processed: 3, Failed: []sweep.Failure{}}
	rec := h.do(t, http.MethodPost, path, admin, nil)
	expect(t, rec, http.StatusOK, "")
	if got := decodeBody[sweep.Report](t, rec); got.Processed != 3 {
		t.Fatalf("unexpected report %+v", got)
	}

	h.sweeper.err = sweep.ErrAlreadyRunning
	expect(t, h.do(t, http.MethodPost, path, admin, nil), http.StatusConflict, "conflict")
}

func TestPublicEndpointsAreRateLimited(t *testing.T) {
	h := newHarness(t, httpx.NewRateLimiter(1, time.Minute))
	body := map[string]string{"appointment_id": "x", "token": "y"}

	rec := h.do(t, http.MethodPost, "/api/v1/public/appointments/cancel", "", body)
	if rec.Code == http.StatusTooManyRequests {
		t.Fatal("first request should pass the limiter")
	}
	rec = h.do(t, http.MethodPost, "/api/v1/public/appointments/cancel", "", body)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
}
