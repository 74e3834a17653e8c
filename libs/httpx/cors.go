package httpx

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// CORSPolicy configures cross-origin access for the client portal SPA.
type CORSPolicy struct {
	// AllowedOrigins lists exact origins; "*" allows any. Empty disables CORS.
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	MaxAge           time.Duration
}

type corsHeaders struct {
	methods string
	headers string
	expose  string
	maxAge  string
}

// WithCORS answers preflights from allowed origins with 204 and decorates
// their other responses. Requests from other origins pass through untouched.
func WithCORS(cfg CORSPolicy) Middleware {
	origins := map[string]struct{}{}
	wildcard := false
	for _, o := range cfg.AllowedOrigins {
		o = strings.ToLower(strings.TrimSpace(o))
		switch o {
		case "":
		case "*":
			wildcard = true
		default:
			origins[o] = struct{}{}
		}
	}
	if !wildcard && len(origins) == 0 {
		return func(next http.Handler) http.Handler { return next }
	}

	h := corsHeaders{
		methods: joinTrimmed(cfg.AllowedMethods),
		headers: joinTrimmed(cfg.AllowedHeaders),
		expose:  joinTrimmed(cfg.ExposedHeaders),
	}
	if secs := int(cfg.MaxAge / time.Second); secs > 0 {
		h.maxAge = strconv.Itoa(secs)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}
			_, listed := origins[strings.ToLower(origin)]
			if !listed && !wildcard {
				next.ServeHTTP(w, r)
				return
			}

			out := w.Header()
			out.Add("Vary", "Origin")
			// Credentials cannot be combined with a literal "*".
			if listed || cfg.AllowCredentials {
				out.Set("Access-Control-Allow-Origin", origin)
			} else {
				out.Set("Access-Control-Allow-Origin", "*")
			}
			if cfg.AllowCredentials {
				out.Set("Access-Control-Allow-Credentials", "true")
			}
			if h.expose != "" {
				out.Set("Access-Control-Expose-Headers", h.expose)
			}

			if r.Method != http.MethodOptions || r.Header.Get("Access-Control-Request-Method") == "" {
				next.ServeHTTP(w, r)
				return
			}
			out.Add("Vary", "Access-Control-Request-Method")
			out.Add("Vary", "Access-Control-Request-Headers")
			if h.methods != "" {
				out.Set("Access-Control-Allow-Methods", h.methods)
			}
			if h.headers != "" {
				out.Set("Access-Control-Allow-Headers", h.headers)
			}
			if h.maxAge != "" {
				out.Set("Access-Control-Max-Age", h.maxAge)
			}
			w.WriteHeader(http.StatusNoContent)
		})
	}
}

func joinTrimmed(values []string) string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return strings.Join(out, ", ")
}
