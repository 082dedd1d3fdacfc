// Package notify avisa por email cuando una autorización queda esperando
// aprobación manual. Sin SMTP configurado las notificaciones se apagan y
// todo lo demás sigue funcionando.
package notify

import (
	"fmt"

	"github.com/dropDatabas3/controltower/internal/domain/repository"
	"github.com/dropDatabas3/controltower/internal/observability/logger"
)

// Sender envía un email. Implementada por SMTPSender; los tests usan un fake.
type Sender interface {
	Send(to, subject, htmlBody, textBody string) error
}

// Notifier arma y despacha los avisos de aprobación pendiente.
type Notifier struct {
	sender Sender
	to     string
}

// New crea un Notifier. Con sender nil o destinatario vacío queda
// deshabilitado (Enabled() == false) y los avisos son no-ops.
func New(sender Sender, to string) *Notifier {
	return &Notifier{sender: sender, to: to}
}

func (n *Notifier) Enabled() bool {
	return n != nil && n.sender != nil && n.to != ""
}

// ApprovalRequested avisa que una autorización quedó flagged esperando
// aprobación. Best-effort: se llama desde la cola, nunca bloquea un request.
func (n *Notifier) ApprovalRequested(a *repository.Authorization, agentName string) error {
	if !n.Enabled() {
		return nil
	}

	subject := fmt.Sprintf("Approval required: %s wants to spend $%.2f", agentName, float64(a.AmountCents)/100)
	text := fmt.Sprintf(
		"Agent %s (id %s) requested a purchase pending approval.\n\n"+
			"  Amount:     $%.2f\n"+
			"  Category:   %s\n"+
			"  Merchant:   %s\n"+
			"  Intent:     %s\n\n"+
			"Authorization id: %s\n",
		agentName, a.AgentID, float64(a.AmountCents)/100,
		orDash(a.Category), orDash(a.Merchant), orDash(a.Intent), a.ID,
	)
	html := fmt.Sprintf(
		"<p>Agent <b>%s</b> requested a purchase pending approval.</p>"+
			"<ul><li>Amount: <b>$%.2f</b></li><li>Category: %s</li>"+
			"<li>Merchant: %s</li><li>Intent: %s</li></ul>"+
			"<p>Authorization id: <code>%s</code></p>",
		agentName, float64(a.AmountCents)/100,
		orDash(a.Category), orDash(a.Merchant), orDash(a.Intent), a.ID,
	)

	if err := n.sender.Send(n.to, subject, html, text); err != nil {
		logger.L().Error("approval notification failed",
			logger.Component("notify"),
			logger.AuthorizationID(a.ID),
			logger.Err(err))
		return err
	}
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
