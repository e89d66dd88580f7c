package utils

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/wneessen/go-mail"

	"billetterie_back_end/internal/config"
	"billetterie_back_end/internal/models"
)

// Mailer prévient l'équipe finance des décisions de remboursement.
type Mailer struct {
	cfg config.SMTPConfig
	log logrus.FieldLogger
}

func NewMailer(cfg config.SMTPConfig, log logrus.FieldLogger) *Mailer {
	return &Mailer{cfg: cfg, log: log}
}

// RefundDecided n'envoie que les états qui intéressent la finance.
func (m *Mailer) RefundDecided(ctx context.Context, r models.RefundRequest) error {
	if len(m.cfg.NotifyTo) == 0 {
		return nil
	}
	switch r.Status {
	case models.RefundApproved, models.RefundRejected, models.RefundFailed, models.RefundCompleted:
	default:
		return nil
	}

	msg := mail.NewMsg()
	if err := msg.From(m.cfg.From); err != nil {
		return err
	}
	if err := msg.To(m.cfg.NotifyTo...); err != nil {
		return err
	}
	msg.Subject(RefundDecisionSubject(r))
	msg.SetBodyString(mail.TypeTextHTML, RefundDecisionHTML(r))

	client, err := mail.NewClient(m.cfg.Host,
		mail.WithPort(m.cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthLogin),
		mail.WithUsername(m.cfg.Username),
		mail.WithPassword(m.cfg.Password),
		mail.WithTLSPolicy(mail.TLSMandatory),
	)
	if err != nil {
		return err
	}

	m.log.WithField("refund_id", r.ID).Info("📤 Envoi de l'e-mail de décision")
	return client.DialAndSendWithContext(ctx, msg)
}

func RefundDecisionSubject(r models.RefundRequest) string {
	labels := map[models.RefundStatus]string{
		models.RefundApproved:  "approuvé",
		models.RefundRejected:  "rejeté",
		models.RefundCompleted: "réglé",
		models.RefundFailed:    "en échec",
	}
	return fmt.Sprintf("[Remboursement %s] commande %s", labels[r.Status], r.OrderID)
}

// FormatAmount affiche un montant en unités mineures (8500 EUR → 85.00 EUR).
func FormatAmount(amount int64, currency string) string {
	sign := ""
	if amount < 0 {
		sign, amount = "-", -amount
	}
	return fmt.Sprintf("%s%d.%02d %s", sign, amount/100, amount%100, strings.ToUpper(currency))
}

func RefundDecisionHTML(r models.RefundRequest) string {
	var approvers strings.Builder
	for _, a := range r.Approvers {
		approvers.WriteString(fmt.Sprintf(`<li>%s (%s)</li>`,
			html.EscapeString(a.ApproverName), a.Timestamp.Format("02/01/2006 15:04")))
	}
	if approvers.Len() == 0 {
		approvers.WriteString("<li>aucune</li>")
	}

	detail := ""
	switch r.Status {
	case models.RefundRejected:
		detail = fmt.Sprintf(`<p><strong>Motif du rejet :</strong> %s</p>`, html.EscapeString(r.RejectionReason))
	case models.RefundFailed:
		detail = fmt.Sprintf(`<p><strong>Erreur passerelle :</strong> %s</p>`, html.EscapeString(r.FailureReason))
	}

	return fmt.Sprintf(`
<!DOCTYPE html>
<html lang="fr">
<head><meta charset="UTF-8"><title>Décision de remboursement</title></head>
<body style="font-family: Arial, sans-serif; background-color: #f9f9f9; padding: 20px;">
	<div style="max-width: 600px; margin: auto; background-color: white; padding: 20px; border-radius: 10px;">
		<h2 style="color: #333;">Remboursement %s</h2>
		<p><strong>Commande :</strong> %s<br>
		<strong>Événement :</strong> %s<br>
		<strong>Montant :</strong> %s<br>
		<strong>Approbation :</strong> %s</p>
		<p><strong>Signatures :</strong></p>
		<ul>%s</ul>
		%s
	</div>
</body>
</html>`,
		html.EscapeString(string(r.Status)),
		html.EscapeString(r.OrderID),
		html.EscapeString(r.EventID),
		FormatAmount(r.Amount, r.Currency),
		r.ApprovalType,
		approvers.String(),
		detail,
	)
}
