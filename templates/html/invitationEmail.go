package templates

import (
	"fmt"
	"html"
	"time"
)

// RenderInvitationEmail generates branded HTML inviting someone to redeem an access code.
// Every argument is HTML-escaped before it is placed in the page.
func RenderInvitationEmail(companyName, code, role string, expiresAt time.Time, redeemURL string) string {
	subject := "You're invited"
	if companyName != "" {
		subject = fmt.Sprintf("%s invited you", companyName)
	}

	body := fmt.Sprintf(`<p>You have been invited to join as <strong>%s</strong>.</p>
      <p>Your access code:</p>
      <p class="code">%s</p>
      <p>The code can be used once and expires on %s.</p>`,
		html.EscapeString(role),
		html.EscapeString(code),
		html.EscapeString(expiresAt.UTC().Format("January 2, 2006 15:04 MST")))
	if redeemURL != "" {
		body += fmt.Sprintf(`
      <p><a class="button" href="%s">Redeem your code</a></p>`, html.EscapeString(redeemURL))
	}

	return renderLayout(subject, body)
}

// renderLayout wraps trusted inner HTML in the shared email chrome
func renderLayout(subject, innerHTML string) string {
	safeSubject := html.EscapeString(subject)

	return fmt.Sprintf(`<!DOCTYPE html PUBLIC "-//W3C//DTD XHTML 1.0 Strict//EN" "http://www.w3.org/TR/xhtml1/DTD/xhtml1-strict.dtd">
<html xmlns="http://www.w3.org/1999/xhtml">
<head>
  <meta http-equiv="Content-Type" content="text/html; charset=utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1, minimum-scale=1, maximum-scale=1">
  <title>%s</title>
  <style type="text/css">
    body { font-family: 'Segoe UI', Tahoma, Geneva, Verdana, sans-serif; margin: 0; padding: 0; background-color: #f4f6fb; }
    .container { max-width: 600px; margin: 0 auto; background-color: #ffffff; }
    .header { background: linear-gradient(135deg, #2f80ed 0%%, #56ccf2 100%%); padding: 40px 30px; text-align: center; }
    .header h1 { color: #fff; margin: 0; font-size: 24px; font-weight: 700; }
    .content { padding: 40px 30px; color: #1f2937; line-height: 1.6; font-size: 15px; }
    .code { font-family: 'Courier New', monospace; font-size: 28px; letter-spacing: 4px; font-weight: 700; text-align: center; }
    .button { display: inline-block; padding: 12px 24px; background-color: #2f80ed; color: #fff; border-radius: 6px; text-decoration: none; }
    .footer { padding: 30px; text-align: center; color: #6b7280; font-size: 12px; border-top: 1px solid #e5e7eb; }
  </style>
</head>
<body>
  <div class="container">
    <div class="header">
      <h1>%s</h1>
    </div>
    <div class="content">
      %s
    </div>
    <div class="footer">
      <p>You received this email because your organization issued you an access code.</p>
    </div>
  </div>
</body>
</html>`, safeSubject, safeSubject, innerHTML)
}
