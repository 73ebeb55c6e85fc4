package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/md-rashed-zaman/clinicdesk/libs/auth"
	"github.com/md-rashed-zaman/clinicdesk/libs/httpx"
	"github.com/md-rashed-zaman/clinicdesk/services/scheduling-service/internal/model"
)

// TokenVerifier is satisfied by *auth.Verifier.
type TokenVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

type actorKey struct{}

func actorFrom(ctx context.Context) (model.Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(model.Actor)
	return a, ok
}

// authenticate resolves the bearer token into an actor. Only professional
// and admin roles may call the authenticated API; the system role is never
// granted to a token.
func authenticate(v TokenVerifier, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		token = strings.TrimSpace(token)
		if !ok || token == "" {
			writeJSON(w, http.StatusUnauthorized, errorBody{Code: "unauthenticated", Message: "missing or invalid Authorization header"})
			return
		}
		claims, err := v.Verify(token)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, errorBody{Code: "unauthenticated", Message: "invalid token"})
			return
		}
		role := model.Role(claims.Role)
		if role != model.RoleProfessional && role != model.RoleAdmin {
			writeJSON(w, http.StatusForbidden, errorBody{Code: "forbidden", Message: "role not permitted"})
			return
		}
		httpx.SetActor(r.Context(), claims.Subject)
		ctx := context.WithValue(r.Context(), actorKey{}, model.Actor{ID: claims.Subject, Role: role})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
