// Package edge is the single public entry point for the client portal. It
// proxies to the booking and scheduler services and rejects unauthenticated
// calls to protected routes before they leave the edge.
package edge

import (
	"context"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/md-rashed-zaman/counselbook/libs/auth"
	"github.com/md-rashed-zaman/counselbook/libs/httpx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type Upstreams struct {
	Booking   *url.URL
	Scheduler *url.URL
}

type claimsKey struct{}

// ClaimsFromContext returns the verified token claims set by RequireAuth.
func ClaimsFromContext(ctx context.Context) (*auth.Claims, bool) {
	c, ok := ctx.Value(claimsKey{}).(*auth.Claims)
	return c, ok
}

func Register(mux *http.ServeMux, up Upstreams, verifier auth.Verifier) {
	transport := otelhttp.NewTransport(http.DefaultTransport)
	booking := newProxy(up.Booking, transport)
	scheduler := newProxy(up.Scheduler, transport)

	registerProxy(mux, "/api/v1/public", booking)
	registerProxy(mux, "/api/v1/appointments", RequireAuth(booking, verifier))
	registerProxy(mux, "/api/v1/internal/sweeps", RequireAuth(RequireRole(scheduler, auth.StaffRoles...), verifier))
}

func newProxy(target *url.URL, transport http.RoundTripper) *httputil.ReverseProxy {
	p := httputil.NewSingleHostReverseProxy(target)
	p.Transport = transport
	p.ErrorHandler = func(w http.ResponseWriter, _ *http.Request, _ error) {
		httpx.WriteError(w, http.StatusBadGateway, "upstream unavailable", "")
	}
	return p
}

func registerProxy(mux *http.ServeMux, prefix string, handler http.Handler) {
	if !strings.HasSuffix(prefix, "/") {
		mux.Handle(prefix, handler)
		mux.Handle(prefix+"/", handler)
		return
	}
	mux.Handle(prefix, handler)
}

// RequireAuth verifies the bearer token and forwards the request with the
// Authorization header intact so upstreams can scope by subject.
func RequireAuth(next http.Handler, verifier auth.Verifier) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		claims, err := verifier.FromRequest(r)
		if err != nil {
			httpx.WriteError(w, http.StatusUnauthorized, "missing or invalid bearer token", "")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey{}, claims)))
	})
}

func RequireRole(next http.Handler, roles ...string) http.Handler {
	allowed := map[string]struct{}{}
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFromContext(r.Context())
		if !ok {
			httpx.WriteError(w, http.StatusUnauthorized, "missing or invalid bearer token", "")
			return
		}
		if _, ok := allowed[claims.Role]; !ok {
			httpx.WriteError(w, http.StatusForbidden, "forbidden", "")
			return
		}
		next.ServeHTTP(w, r)
	})
}
