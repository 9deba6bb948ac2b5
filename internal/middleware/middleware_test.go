package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	qerrors "github.com/QWED-AI/qwed-verification/internal/errors"
	"github.com/QWED-AI/qwed-verification/internal/logging"
	"github.com/QWED-AI/qwed-verification/internal/tenant"
)

func testLogger() *logging.Logger {
	return logging.New("middleware-test", "error", "text")
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRecoveryCatchesPanic(t *testing.T) {
	handler := Recovery(testLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestCORSAllowsWildcardAndPreflight(t *testing.T) {
	handler := CORS(CORSConfig{AllowedOrigins: []string{"*"}})(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://example.com")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, "https://example.com", rr.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "https://example.com")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNoContent, rr.Code)
}

func TestCORSRejectsUnlistedOrigin(t *testing.T) {
	handler := CORS(CORSConfig{AllowedOrigins: []string{".example.com"}})(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://evil.test")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestBodyLimitRejectsOversizedContentLength(t *testing.T) {
	handler := BodyLimit(10)(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.ContentLength = 1000
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
}

func TestSecurityHeadersSetsDefaults(t *testing.T) {
	handler := SecurityHeaders(nil)(okHandler())

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
}

func TestInFlightLimitRejectsOverCapacity(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{}, 1)
	blocking := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		entered <- struct{}{}
		<-release
		w.WriteHeader(http.StatusOK)
	})
	handler := InFlightLimit(1)(blocking)

	go func() {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	}()
	<-entered

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	close(release)
}

func TestInFlightLimitDisabledWhenZero(t *testing.T) {
	handler := InFlightLimit(0)(okHandler())
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestTimeoutFiresOnSlowHandler(t *testing.T) {
	slow := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	handler := Timeout(20 * time.Millisecond)(slow)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusGatewayTimeout, rr.Code)
}

func TestRequestLoggingAssignsTraceID(t *testing.T) {
	var seenTraceID string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenTraceID = logging.GetTraceID(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	handler := RequestLogging(testLogger())(inner)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.NotEmpty(t, seenTraceID)
	assert.Equal(t, seenTraceID, rr.Header().Get("X-Trace-ID"))
}

type stubResolver struct {
	ctx tenant.Context
	err error
}

func (s stubResolver) ResolveAPIKey(_ context.Context, rawKey string) (tenant.Context, error) {
	if s.err != nil {
		return tenant.Context{}, s.err
	}
	return s.ctx, nil
}

func TestAuthResolvesAPIKeyHeader(t *testing.T) {
	want := tenant.Context{Org: tenant.Organization{ID: "org-1"}, KeyID: "key-1"}
	var gotCtx tenant.Context
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCtx, _ = tenant.FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	handler := Auth(stubResolver{ctx: want})(inner)

	req := httptest.NewRequest(http.MethodPost, "/v1/verify/math", nil)
	req.Header.Set("x-api-key", "qwed_live_abcdef")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, want, gotCtx)
}

func TestAuthAcceptsBearerFallback(t *testing.T) {
	want := tenant.Context{Org: tenant.Organization{ID: "org-1"}}
	handler := Auth(stubResolver{ctx: want})(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/v1/verify/math", nil)
	req.Header.Set("Authorization", "Bearer qwed_live_abcdef")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestAuthRejectsMissingCredential(t *testing.T) {
	handler := Auth(stubResolver{})(okHandler())

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/verify/math", nil))

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestAuthRejectsSuspendedOrganization(t *testing.T) {
	suspended := tenant.Context{Org: tenant.Organization{ID: "org-1", Suspended: true}}
	handler := Auth(stubResolver{ctx: suspended})(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/v1/verify/math", nil)
	req.Header.Set("x-api-key", "qwed_live_abcdef")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestAuthRejectsResolverError(t *testing.T) {
	handler := Auth(stubResolver{err: qerrors.InvalidKey(assertError{})})(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/v1/verify/math", nil)
	req.Header.Set("x-api-key", "bad-key")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

type assertError struct{}

func (assertError) Error() string { return "invalid key" }
