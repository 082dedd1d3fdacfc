package middlewares

import (
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/dropDatabas3/controltower/internal/http/httperrors"
)

// WithAgentCredential extrae la credencial bearer del agente (ak_live_ /
// ak_test_) y la deja en el contexto. No resuelve identidad: eso lo hace el
// directorio dentro del servicio, en una sola lectura.
func WithAgentCredential() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cred := bearerToken(r)
			if cred == "" {
				httperrors.WriteError(w, httperrors.ErrUnauthorized.WithDetail("missing bearer credential"))
				return
			}
			next.ServeHTTP(w, r.WithContext(setCredential(r.Context(), cred)))
		})
	}
}

// RequireAdminKey protege los endpoints administrativos. La key viaja en
// X-Admin-Key y se compara contra el hash bcrypt de la config: la key en
// claro no vive en el servidor.
func RequireAdminKey(apiKeyHash string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKeyHash == "" {
				httperrors.WriteError(w, httperrors.ErrForbidden.WithDetail("admin API disabled"))
				return
			}
			key := strings.TrimSpace(r.Header.Get("X-Admin-Key"))
			if key == "" {
				httperrors.WriteError(w, httperrors.ErrUnauthorized.WithDetail("missing admin key"))
				return
			}
			if err := bcrypt.CompareHashAndPassword([]byte(apiKeyHash), []byte(key)); err != nil {
				httperrors.WriteError(w, httperrors.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if h == "" {
		return ""
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
