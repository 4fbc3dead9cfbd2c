package email

import (
	"bytes"
	htmltemplate "html/template"
	"strconv"
	"strings"
	texttemplate "text/template"
	"time"
)

const (
	VerificationSubject = "Verify your email address - SplitShifts"
	ResetSubject        = "Password Reset Request - SplitShifts"
)

type templateData struct {
	FirstName string
	Link      string
	ExpiresIn string
}

var (
	verificationHTML = htmltemplate.Must(htmltemplate.New("verification").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #1f2937;">
  <h2>Welcome to SplitShifts{{if .FirstName}}, {{.FirstName}}{{end}}!</h2>
  <p>Please confirm your email address by clicking the button below.</p>
  <p><a href="{{.Link}}" style="background:#2563eb;color:#fff;padding:10px 18px;border-radius:6px;text-decoration:none;">Verify email</a></p>
  <p>This link expires in {{.ExpiresIn}}. If you did not create an account, you can ignore this email.</p>
</body>
</html>`))

	verificationText = texttemplate.Must(texttemplate.New("verification").Parse(
		`Welcome to SplitShifts{{if .FirstName}}, {{.FirstName}}{{end}}!

Confirm your email address by opening this link:
{{.Link}}

This link expires in {{.ExpiresIn}}. If you did not create an account, you can ignore this email.
`))

	resetHTML = htmltemplate.Must(htmltemplate.New("reset").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #1f2937;">
  <h2>Password reset</h2>
  <p>{{if .FirstName}}Hi {{.FirstName}}, w{{else}}W{{end}}e received a request to reset your SplitShifts password.</p>
  <p><a href="{{.Link}}" style="background:#2563eb;color:#fff;padding:10px 18px;border-radius:6px;text-decoration:none;">Reset password</a></p>
  <p>This link expires in {{.ExpiresIn}}. If you did not request a reset, you can ignore this email.</p>
</body>
</html>`))

	resetText = texttemplate.Must(texttemplate.New("reset").Parse(
		`{{if .FirstName}}Hi {{.FirstName}}, w{{else}}W{{end}}e received a request to reset your SplitShifts password.

Reset it here:
{{.Link}}

This link expires in {{.ExpiresIn}}. If you did not request a reset, you can ignore this email.
`))
)

// VerificationMessage arma el correo de verificación de email.
func VerificationMessage(to, firstName, link string, ttl time.Duration) (Message, error) {
	return render(to, VerificationSubject, verificationHTML, verificationText, templateData{
		FirstName: strings.TrimSpace(firstName),
		Link:      link,
		ExpiresIn: humanizeTTL(ttl),
	})
}

// ResetMessage arma el correo de restablecimiento de contraseña.
func ResetMessage(to, firstName, link string, ttl time.Duration) (Message, error) {
	return render(to, ResetSubject, resetHTML, resetText, templateData{
		FirstName: strings.TrimSpace(firstName),
		Link:      link,
		ExpiresIn: humanizeTTL(ttl),
	})
}

func render(to, subject string, html *htmltemplate.Template, text *texttemplate.Template, data templateData) (Message, error) {
	var htmlBuf, textBuf bytes.Buffer
	if err := html.Execute(&htmlBuf, data); err != nil {
		return Message{}, err
	}
	if err := text.Execute(&textBuf, data); err != nil {
		return Message{}, err
	}
	return Message{
		To:      to,
		Subject: subject,
		HTML:    htmlBuf.String(),
		Text:    textBuf.String(),
	}, nil
}

func humanizeTTL(ttl time.Duration) string {
	switch {
	case ttl >= time.Hour && ttl%time.Hour == 0:
		hours := int(ttl / time.Hour)
		if hours == 1 {
			return "1 hour"
		}
		return strconv.Itoa(hours) + " hours"
	case ttl >= time.Minute:
		return strconv.Itoa(int(ttl/time.Minute)) + " minutes"
	default:
		return ttl.String()
	}
}
