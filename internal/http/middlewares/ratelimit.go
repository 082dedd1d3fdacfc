package middlewares

import (
	"net/http"
	"strconv"

	"github.com/dropDatabas3/controltower/internal/directory"
	"github.com/dropDatabas3/controltower/internal/http/httperrors"
	"github.com/dropDatabas3/controltower/internal/observability/logger"
	"github.com/dropDatabas3/controltower/internal/rate"
)

// WithTenantQuota aplica la cuota de API del plan del tenant. Resuelve el
// tenant vía el directorio (hit O(1), misma entrada que usará el servicio)
// y limita por tenant id. Si el limiter falla, el request pasa: la cuota es
// protección, no disponibilidad.
func WithTenantQuota(dir *directory.Directory, limiter rate.Limiter) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cred := GetCredential(r.Context())
			if cred == "" || limiter == nil {
				next.ServeHTTP(w, r)
				return
			}

			_, tenant, err := dir.Lookup(r.Context(), cred)
			if err != nil {
				// Credencial inválida: que lo resuelva el handler con su
				// error propio.
				next.ServeHTTP(w, r)
				return
			}

			res, err := limiter.Allow(r.Context(), tenant.ID, tenant.APIQuota)
			if err != nil {
				logger.From(r.Context()).Warn("rate limiter unavailable", logger.Err(err))
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(tenant.APIQuota))
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))
			if !res.Allowed {
				w.Header().Set("Retry-After", strconv.Itoa(int(res.RetryAfter.Seconds())))
				httperrors.WriteError(w, httperrors.ErrRateLimited)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
