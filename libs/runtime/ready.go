package runtime

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// ReadyCheck is a named dependency check for /readyz.
type ReadyCheck struct {
	Name  string
	Check func(context.Context) error
}

// Readiness maps each dependency name to "ok" or its error text.
type Readiness map[string]string

func (r Readiness) Failing() map[string]string {
	out := map[string]string{}
	for name, state := range r {
		if state != "ok" {
			out[name] = state
		}
	}
	return out
}

// RunChecks runs all checks concurrently, each under a two second deadline.
func RunChecks(ctx context.Context, checks ...ReadyCheck) Readiness {
	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		out = Readiness{}
	)
	for _, c := range checks {
		if c.Check == nil {
			continue
		}
		wg.Add(1)
		go func(c ReadyCheck) {
			defer wg.Done()
			checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			defer cancel()
			state := "ok"
			if err := c.Check(checkCtx); err != nil {
				state = err.Error()
			}
			mu.Lock()
			out[c.Name] = state
			mu.Unlock()
		}(c)
	}
	wg.Wait()
	return out
}

// NewBaseMuxWithReady serves /healthz (process up) and /readyz (dependencies
// reachable, reported as JSON).
func NewBaseMuxWithReady(checks ...ReadyCheck) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		report := RunChecks(r.Context(), checks...)
		body := struct {
			Status string    `json:"status"`
			Checks Readiness `json:"checks"`
		}{Status: "ready", Checks: report}
		code := http.StatusOK
		if len(report.Failing()) > 0 {
			body.Status, code = "unavailable", http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(body)
	})
	return mux
}
