package httpx

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"sync"
)

type ctxKey int

const (
	ctxKeyRequest ctxKey = iota
)

const RequestIDHeader = "X-Request-Id"

// requestInfo is shared by every middleware layer of one request, so inner
// layers (auth) can annotate what outer layers (access log) report.
type requestInfo struct {
	id      string
	mu      sync.Mutex
	actorID string
}

func RequestIDFromContext(ctx context.Context) string {
	if info, ok := ctx.Value(ctxKeyRequest).(*requestInfo); ok {
		return info.id
	}
	return ""
}

// SetActor records the authenticated actor for the access log. No-op outside WithRequestID.
func SetActor(ctx context.Context, actorID string) {
	if info, ok := ctx.Value(ctxKeyRequest).(*requestInfo); ok {
		info.mu.Lock()
		info.actorID = actorID
		info.mu.Unlock()
	}
}

func actorFromContext(ctx context.Context) string {
	if info, ok := ctx.Value(ctxKeyRequest).(*requestInfo); ok {
		info.mu.Lock()
		defer info.mu.Unlock()
		return info.actorID
	}
	return ""
}

func WithRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" || len(id) > 128 {
			id = NewRequestID()
		}
		w.Header().Set(RequestIDHeader, id)
		ctx := context.WithValue(r.Context(), ctxKeyRequest, &requestInfo{id: id})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func NewRequestID() string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}
