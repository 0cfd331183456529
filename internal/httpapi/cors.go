package httpapi

import (
	"net/http"
	"strings"

	"share_runner/internal/config"
)

const (
	corsAllowHeaders = "Content-Type, Authorization"
	corsAllowMethods = "GET, POST, OPTIONS"
	corsMaxAge       = "600"
)

type corsPolicy struct {
	any         bool
	origins     map[string]struct{}
	credentials bool
}

func newCorsPolicy(cfg config.CorsConfig) corsPolicy {
	p := corsPolicy{origins: make(map[string]struct{}), credentials: cfg.AllowCredentials}
	for _, o := range cfg.AllowOrigins {
		o = strings.TrimSpace(o)
		if o == "*" {
			p.any = true
			continue
		}
		if o != "" {
			p.origins[strings.ToLower(o)] = struct{}{}
		}
	}
	return p
}

// allowOrigin 返回要回写的 Access-Control-Allow-Origin；带凭据时 "*" 无效，改为回显请求的 Origin。
func (p corsPolicy) allowOrigin(origin string) string {
	if origin == "" {
		return ""
	}
	if _, ok := p.origins[strings.ToLower(origin)]; ok {
		return origin
	}
	if p.any {
		if p.credentials {
			return origin
		}
		return "*"
	}
	return ""
}

// corsMiddleware 不在白名单里的跨域预检直接 403，普通请求照常处理但不带 CORS 头。
func corsMiddleware(cfg config.CorsConfig, next http.Handler) http.Handler {
	policy := newCorsPolicy(cfg)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		allowed := policy.allowOrigin(origin)
		if origin != "" {
			w.Header().Add("Vary", "Origin")
		}
		if allowed != "" {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", allowed)
			if policy.credentials {
				h.Set("Access-Control-Allow-Credentials", "true")
			}
			h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
			h.Set("Access-Control-Allow-Methods", corsAllowMethods)
			h.Set("Access-Control-Max-Age", corsMaxAge)
		}

		if r.Method == http.MethodOptions {
			if origin != "" && allowed == "" {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
