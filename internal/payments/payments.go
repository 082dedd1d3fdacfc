// Package payments abstrae la ejecución del cargo real contra el proveedor
// de pagos. El control plane decide; el ejecutor mueve la plata.
package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Charge es el resultado de un cargo ejecutado.
type Charge struct {
	ID          string
	AmountCents int64
	FeeCents    int64
	ExecutedAt  time.Time
}

// Executor ejecuta cargos. La implementación real envuelve el SDK del
// proveedor; DemoExecutor simula cargos para sandbox y tests.
type Executor interface {
	// Execute cobra amountCents (+feeCents de plataforma) contra el método
	// de pago del agente. Debe ser idempotente por authorizationID.
	Execute(ctx context.Context, authorizationID, paymentMethod string, amountCents, feeCents int64) (*Charge, error)
}

// DemoExecutor simula un proveedor de pagos: siempre acepta, genera un
// charge id sintético. Es el ejecutor del plan sandbox.
type DemoExecutor struct{}

func NewDemoExecutor() *DemoExecutor { return &DemoExecutor{} }

func (d *DemoExecutor) Execute(ctx context.Context, authorizationID, paymentMethod string, amountCents, feeCents int64) (*Charge, error) {
	if paymentMethod == "" {
		return nil, fmt.Errorf("payments: missing payment method")
	}
	return &Charge{
		ID:          "ch_demo_" + uuid.NewString(),
		AmountCents: amountCents,
		FeeCents:    feeCents,
		ExecutedAt:  time.Now().UTC(),
	}, nil
}
