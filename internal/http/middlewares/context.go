package middlewares

import "context"

type ctxKey int

const (
	ctxKeyRequestID ctxKey = iota
	ctxKeyCredential
)

func setRequestID(ctx context.Context, rid string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestID, rid)
}

// GetRequestID retorna el request id del contexto, o "" si no hay.
func GetRequestID(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyRequestID).(string); ok {
		return v
	}
	return ""
}

func setCredential(ctx context.Context, cred string) context.Context {
	return context.WithValue(ctx, ctxKeyCredential, cred)
}

// GetCredential retorna la credencial bearer del agente, o "" si el request
// no trajo una.
func GetCredential(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyCredential).(string); ok {
		return v
	}
	return ""
}
