// Package idempotency implementa el guard de requests duplicados: el mismo
// request dentro de la ventana devuelve la respuesta original en vez de
// ejecutar dos veces. Clave = sha256(método|path|body|bucket temporal).
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dropDatabas3/controltower/internal/cache"
	"github.com/dropDatabas3/controltower/internal/domain/repository"
)

// Guard decide si un request es un replay y guarda respuestas exitosas
// para reproducirlas.
type Guard struct {
	repo repository.IdempotencyRepository

	// cache es una capa write-through opcional delante del repo. Los
	// registros son inmutables (first-writer-wins), así que cachear es
	// seguro.
	cache cache.Client

	// window: cuánto vive una respuesta cacheada. bucket: granularidad
	// temporal del fingerprint; requests idénticos en buckets distintos
	// son operaciones distintas.
	window time.Duration
	bucket time.Duration

	now func() time.Time
}

func NewGuard(repo repository.IdempotencyRepository, window, bucket time.Duration) *Guard {
	return &Guard{
		repo:   repo,
		window: window,
		bucket: bucket,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// UseCache agrega la capa de cache delante del repo.
func (g *Guard) UseCache(c cache.Client) { g.cache = c }

// Fingerprint calcula la huella de un request. El bucket temporal va dentro
// del hash: reintentar el mismo request un rato después es una operación
// nueva, no un replay.
func (g *Guard) Fingerprint(method, path string, body []byte) string {
	bucket := g.now().Unix() / int64(g.bucket.Seconds())
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|", method, path)
	h.Write(body)
	fmt.Fprintf(h, "|%d", bucket)
	return hex.EncodeToString(h.Sum(nil))
}

// Replay busca una respuesta cacheada para la huella. Registros fuera de la
// ventana se ignoran (el janitor los borra después).
func (g *Guard) Replay(ctx context.Context, fingerprint string) (*repository.IdempotencyRecord, bool, error) {
	if g.cache != nil {
		if raw, err := g.cache.Get(ctx, "idem:"+fingerprint); err == nil {
			var rec repository.IdempotencyRecord
			if json.Unmarshal(raw, &rec) == nil && g.now().Sub(rec.CreatedAt) <= g.window {
				return &rec, true, nil
			}
		}
	}
	rec, err := g.repo.GetIdempotency(ctx, fingerprint)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	if g.now().Sub(rec.CreatedAt) > g.window {
		return nil, false, nil
	}
	g.cacheSet(ctx, fingerprint, rec)
	return rec, true, nil
}

// Remember guarda la respuesta de un request ejecutado. Solo respuestas
// 2xx: un error no debe quedar congelado como respuesta canónica.
func (g *Guard) Remember(ctx context.Context, fingerprint, endpoint, method string, status int, response []byte) error {
	if status < 200 || status >= 300 {
		return nil
	}
	body := make([]byte, len(response))
	copy(body, response)
	rec := &repository.IdempotencyRecord{
		Fingerprint: fingerprint,
		Endpoint:    endpoint,
		Method:      method,
		StatusCode:  status,
		Response:    body,
		CreatedAt:   g.now(),
	}
	if err := g.repo.PutIdempotency(ctx, rec); err != nil {
		return err
	}
	g.cacheSet(ctx, fingerprint, rec)
	return nil
}

// cacheSet escribe el registro en la capa de cache. Best-effort: un fallo
// del cache no afecta la operación.
func (g *Guard) cacheSet(ctx context.Context, fingerprint string, rec *repository.IdempotencyRecord) {
	if g.cache == nil {
		return
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return
	}
	_ = g.cache.Set(ctx, "idem:"+fingerprint, raw, g.window)
}

// Sweep borra registros más viejos que la retención dada. Lo llama el
// janitor horario.
func (g *Guard) Sweep(ctx context.Context, retention time.Duration) (int, error) {
	return g.repo.DeleteIdempotencyBefore(ctx, g.now().Add(-retention))
}
