package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/lumapos/authcore"
)

// RequireAuth extracts a bearer token from the Authorization header,
// validates it through the engine, and attaches the resulting identity to the
// request context. Every validation failure collapses into the same 401 body;
// a session store outage without bypass answers 503 instead so clients can
// tell transient infrastructure loss from a revoked session.
func RequireAuth(engine *authcore.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
				return
			}

			identity, err := engine.ValidateSession(r.Context(), token)
			if err != nil {
				if errors.Is(err, authcore.ErrSessionStoreUnavailable) {
					writeError(w, http.StatusServiceUnavailable, "store_unavailable", "session store unavailable")
					return
				}
				writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
				return
			}

			next.ServeHTTP(w, r.WithContext(authcore.WithIdentity(r.Context(), identity)))
		})
	}
}

// RequirePermission authorizes the context identity against a fixed
// resource/action pair and stores the granted scope for the handler. The
// denial body names the capability that was refused, never the rule behind
// the refusal.
func RequirePermission(engine *authcore.Engine, resourceKey, actionKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := authcore.IdentityFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
				return
			}

			scope, err := engine.Authorize(r.Context(), identity, resourceKey, actionKey)
			if err != nil {
				writeDenial(w, resourceKey, actionKey)
				return
			}

			next.ServeHTTP(w, r.WithContext(withScope(r.Context(), scope)))
		})
	}
}

// RequireBranch refuses identities with no branch assignment. Branchless
// users holding adminRole keep read access (GET, HEAD, OPTIONS) because
// cross-branch reporting is their job, but any mutating method is refused
// until a branch is assigned.
func RequireBranch(adminRole string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := authcore.IdentityFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
				return
			}

			if identity.BranchID == nil {
				if identity.Role != adminRole || !readOnlyMethod(r.Method) {
					writeError(w, http.StatusForbidden, "branch_required", "no branch assigned")
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

func readOnlyMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   code,
		"message": message,
	})
}

func writeDenial(w http.ResponseWriter, resourceKey, actionKey string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":    "permission_denied",
		"resource": resourceKey,
		"action":   actionKey,
		"scope":    "none",
	})
}
