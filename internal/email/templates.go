package email

import (
	"fmt"
	"html"
)

// Template names.
const (
	TemplatePasswordReset = "password_reset"
	TemplateWelcome       = "welcome"
)

// PasswordResetData contains data for password reset emails.
type PasswordResetData struct {
	Link      string
	ExpiresIn string // e.g. "15 minutes"
}

// WelcomeData contains data for welcome emails.
type WelcomeData struct {
	Name    string
	BaseURL string
}

const layout = `<!DOCTYPE html>
<html lang="en">
<head><meta charset="UTF-8"><title>%s</title></head>
<body style="font-family: -apple-system, 'Segoe UI', Roboto, Arial, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px;">
  <div style="background: #2f3e46; padding: 24px; border-radius: 8px 8px 0 0;">
    <h1 style="color: white; margin: 0; font-size: 22px;">notefold</h1>
  </div>
  <div style="padding: 24px; border: 1px solid #e0e0e0; border-top: none; border-radius: 0 0 8px 8px;">
%s
    <p style="color: #999; font-size: 12px;">This is an automated message from notefold. Please do not reply.</p>
  </div>
</body>
</html>`

func button(href, label string) string {
	return fmt.Sprintf(`    <p style="text-align: center; margin: 28px 0;"><a href="%s" style="background: #52796f; color: white; padding: 12px 28px; text-decoration: none; border-radius: 6px;">%s</a></p>`,
		html.EscapeString(href), html.EscapeString(label))
}

// render picks the template from the data type and returns subject and HTML body.
func render(data any) (subject, body string) {
	switch d := data.(type) {
	case PasswordResetData:
		subject = "Reset your notefold password"
		body = fmt.Sprintf(layout, subject, fmt.Sprintf(`    <h2>Reset your password</h2>
    <p>Someone asked to reset the password for this account. The link expires in <strong>%s</strong>.</p>
%s
    <p style="color: #666; font-size: 14px;">If this wasn't you, ignore this email. Your password stays the same.</p>`,
			html.EscapeString(d.ExpiresIn), button(d.Link, "Choose a new password")))
	case WelcomeData:
		name := d.Name
		if name == "" {
			name = "there"
		}
		subject = "Welcome to notefold"
		body = fmt.Sprintf(layout, subject, fmt.Sprintf(`    <h2>Welcome, %s!</h2>
    <p>Your notes are stored in a database encrypted with a key only this account can unlock.</p>
%s`, html.EscapeString(name), button(d.BaseURL, "Open notefold")))
	default:
		subject = "Message from notefold"
		body = fmt.Sprintf(layout, subject, "    <p>"+html.EscapeString(fmt.Sprintf("%+v", data))+"</p>")
	}
	return subject, body
}
