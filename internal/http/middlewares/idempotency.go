package middlewares

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/dropDatabas3/controltower/internal/http/httperrors"
	"github.com/dropDatabas3/controltower/internal/idempotency"
	"github.com/dropDatabas3/controltower/internal/metrics"
	"github.com/dropDatabas3/controltower/internal/observability/logger"
)

const maxBodyBytes = 64 << 10 // 64KB

// bodyRecorder captura la respuesta completa para poder cachearla.
type bodyRecorder struct {
	http.ResponseWriter
	status      int
	body        bytes.Buffer
	wroteHeader bool
}

func (b *bodyRecorder) WriteHeader(code int) {
	if b.wroteHeader {
		return
	}
	b.status = code
	b.wroteHeader = true
	b.ResponseWriter.WriteHeader(code)
}

func (b *bodyRecorder) Write(p []byte) (int, error) {
	if !b.wroteHeader {
		b.status = http.StatusOK
		b.wroteHeader = true
	}
	b.body.Write(p)
	return b.ResponseWriter.Write(p)
}

// WithIdempotency deduplica requests de mutación: el mismo request dentro
// de la ventana devuelve la respuesta original marcada idempotent:true en
// vez de ejecutar dos veces. Solo respuestas 2xx quedan cacheadas.
func WithIdempotency(guard *idempotency.Guard) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
			if err != nil {
				httperrors.WriteError(w, httperrors.ErrBadRequest.WithCause(err))
				return
			}
			if len(body) > maxBodyBytes {
				httperrors.WriteError(w, httperrors.ErrPayloadTooLarge)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			fp := guard.Fingerprint(r.Method, r.URL.Path, body)

			if rec, ok, err := guard.Replay(r.Context(), fp); err == nil && ok {
				metrics.IdempotentReplays.Inc()
				logger.From(r.Context()).Info("idempotent replay",
					logger.Fingerprint(fp[:12]))
				w.Header().Set("Content-Type", "application/json; charset=utf-8")
				w.Header().Set("X-Idempotent-Replay", "true")
				w.WriteHeader(rec.StatusCode)
				_, _ = w.Write(markIdempotent(rec.Response))
				return
			} else if err != nil {
				// El guard caído no voltea la API; el request se ejecuta.
				logger.From(r.Context()).Warn("idempotency lookup failed", logger.Err(err))
			}

			rec := &bodyRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)

			if err := guard.Remember(r.Context(), fp, r.URL.Path, r.Method, rec.status, rec.body.Bytes()); err != nil {
				logger.From(r.Context()).Warn("idempotency store failed", logger.Err(err))
			}
		})
	}
}

// markIdempotent agrega idempotent:true al JSON cacheado. Si el body no es
// un objeto JSON se devuelve tal cual.
func markIdempotent(body []byte) []byte {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(body, &m); err != nil {
		return body
	}
	m["idempotent"] = json.RawMessage("true")
	out, err := json.Marshal(m)
	if err != nil {
		return body
	}
	return out
}
