package api

import (
	"crypto/subtle"
	"net/http"

	"opsync/internal/config"
)

// HTTPAuth enforces api-key auth and per-client rate limiting on the
// admin surface.
type HTTPAuth struct {
	cfg     config.APIConfig
	limiter *rateLimiter
}

func NewHTTPAuth(cfg config.APIConfig) *HTTPAuth {
	return &HTTPAuth{
		cfg:     cfg,
		limiter: newRateLimiter(&cfg),
	}
}

func (a *HTTPAuth) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientName := r.RemoteAddr

		if a.cfg.Auth.Enabled {
			key := r.Header.Get(a.cfg.Auth.HeaderAPIKey)
			match := ""
			for _, ck := range a.cfg.Auth.APIKeys {
				if subtle.ConstantTimeCompare([]byte(key), []byte(ck.Key)) == 1 {
					match = ck.Name
					break
				}
			}
			if match == "" {
				writeError(w, http.StatusUnauthorized, "invalid api key")
				return
			}
			clientName = match
		}

		if !a.limiter.getLimiter(clientName).Allow() {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}
