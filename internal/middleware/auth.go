package middleware

import (
	"net/http"

	qerrors "github.com/QWED-AI/qwed-verification/internal/errors"
	"github.com/QWED-AI/qwed-verification/internal/httputil"
	"github.com/QWED-AI/qwed-verification/internal/tenant"
)

// rawAPIKey pulls the caller's credential off the request. x-api-key is the
// primary mechanism; a standard Authorization: Bearer header is accepted as
// an equivalent so clients that already speak bearer-token auth don't need
// a special case.
func rawAPIKey(r *http.Request) (string, error) {
	if key := r.Header.Get("x-api-key"); key != "" {
		return key, nil
	}
	if auth := r.Header.Get("Authorization"); auth != "" {
		return tenant.ExtractBearer(auth)
	}
	return "", qerrors.Unauthorized("missing x-api-key header")
}

// Auth resolves the caller's API key to a tenant.Context via resolver and
// attaches it to the request context. A suspended organization is rejected
// here even though the resolver already validated the key itself, since
// suspension is a property of the organization, not the credential.
func Auth(resolver tenant.Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rawKey, err := rawAPIKey(r)
			if err != nil {
				writeAuthError(w, r, err)
				return
			}

			tc, err := resolver.ResolveAPIKey(r.Context(), rawKey)
			if err != nil {
				writeAuthError(w, r, err)
				return
			}
			if tc.Org.Suspended {
				httputil.WriteServiceError(w, r, qerrors.Forbidden("organization suspended"))
				return
			}

			ctx := tenant.WithContext(r.Context(), tc)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeAuthError(w http.ResponseWriter, r *http.Request, err error) {
	if svcErr, ok := err.(*qerrors.ServiceError); ok {
		httputil.WriteServiceError(w, r, svcErr)
		return
	}
	httputil.WriteServiceError(w, r, qerrors.InvalidKey(err))
}
