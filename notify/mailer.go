// Package notify sends the emails the API triggers.
package notify

import (
	"context"
	"fmt"
	"net/url"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/linesmerrill/benefits-access-api/config"
	"github.com/linesmerrill/benefits-access-api/logging"
	"github.com/linesmerrill/benefits-access-api/models"
	templates "github.com/linesmerrill/benefits-access-api/templates/html"
)

// Sender is the part of the sendgrid client the Mailer needs
type Sender interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// Mailer delivers invitation emails through sendgrid
type Mailer struct {
	Client      Sender
	FromAddress string
	FromName    string
	RedeemURL   string
}

// NewMailer returns a Mailer, or nil when no sendgrid key is configured
func NewMailer(conf *config.Config) *Mailer {
	if conf.SendgridAPIKey == "" {
		logging.Named("notify").Warnw("SENDGRID_API_KEY not set, invitation emails are disabled")
		return nil
	}
	redeemURL := ""
	if conf.PublicWebBaseURL != "" {
		redeemURL = conf.PublicWebBaseURL + "/redeem"
	}
	return &Mailer{
		Client:      sendgrid.NewSendClient(conf.SendgridAPIKey),
		FromAddress: conf.MailFromAddress,
		FromName:    conf.MailFromName,
		RedeemURL:   redeemURL,
	}
}

// SendInvitation emails the code to the address it is bound to
func (m *Mailer) SendInvitation(ctx context.Context, code models.AccessCode, companyName string) error {
	if code.Email == "" {
		return nil
	}

	link := ""
	if m.RedeemURL != "" {
		link = m.RedeemURL + "?code=" + url.QueryEscape(code.Code)
	}

	from := mail.NewEmail(m.FromName, m.FromAddress)
	to := mail.NewEmail("", code.Email)
	subject := "Your access code"
	if companyName != "" {
		subject = fmt.Sprintf("Your access code for %s", companyName)
	}
	plainTextContent := fmt.Sprintf("Your access code is %s. It can be used once and expires on %s.",
		code.Code, code.ExpiresAt.UTC().Format("January 2, 2006 15:04 MST"))
	htmlContent := templates.RenderInvitationEmail(companyName, code.Code, string(code.Role), code.ExpiresAt, link)
	message := mail.NewSingleEmail(from, subject, to, plainTextContent, htmlContent)

	response, err := m.Client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("failed to send invitation email: %w", err)
	}
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return fmt.Errorf("invitation email rejected with status %d: %s", response.StatusCode, response.Body)
	}

	logging.Named("notify").Infow("invitation email sent",
		"codeId", code.ID,
		"statusCode", response.StatusCode)
	return nil
}
