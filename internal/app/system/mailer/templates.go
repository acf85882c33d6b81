// internal/app/system/mailer/templates.go
package mailer

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/dalemusser/shopdesk/internal/app/system/htmlsanitize"
)

// InvitationEmailData holds data for the shop invitation email.
type InvitationEmailData struct {
	SiteName    string
	ShopName    string
	Role        string
	InviterName string
	Message     string // already sanitized
	AcceptLink  string
	ExpiresIn   string // e.g., "7 days"
}

// MessageHTML renders the plain-text message with line breaks kept.
func (d InvitationEmailData) MessageHTML() template.HTML {
	return template.HTML(htmlsanitize.PlainTextToHTML(d.Message))
}

// BuildInvitationEmail creates an invitation email with both HTML and text bodies.
func BuildInvitationEmail(data InvitationEmailData) Email {
	return Email{
		To:       "", // Set by caller
		Subject:  fmt.Sprintf("You have been invited to join %s on %s", data.ShopName, data.SiteName),
		TextBody: buildInvitationText(data),
		HTMLBody: buildInvitationHTML(data),
	}
}

func buildInvitationText(data InvitationEmailData) string {
	var buf bytes.Buffer
	inviter := data.InviterName
	if inviter == "" {
		inviter = "A team member"
	}
	buf.WriteString(fmt.Sprintf("%s invited you to join %s as %s.\n\n", inviter, data.ShopName, data.Role))
	if data.Message != "" {
		buf.WriteString(data.Message + "\n\n")
	}
	buf.WriteString("Open this link to accept or decline:\n")
	buf.WriteString(data.AcceptLink + "\n\n")
	buf.WriteString(fmt.Sprintf("This invitation expires in %s.\n", data.ExpiresIn))
	return buf.String()
}

var invitationTmpl = template.Must(template.New("invitation").Parse(invitationHTMLTemplate))

func buildInvitationHTML(data InvitationEmailData) string {
	var buf bytes.Buffer
	_ = invitationTmpl.Execute(&buf, data)
	return buf.String()
}

const invitationHTMLTemplate = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <title>Invitation</title>
</head>
<body style="margin: 0; padding: 0; font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, 'Helvetica Neue', Arial, sans-serif; background-color: #f3f4f6;">
  <table role="presentation" width="100%" cellspacing="0" cellpadding="0" style="background-color: #f3f4f6;">
    <tr>
      <td align="center" style="padding: 40px 20px;">
        <table role="presentation" width="100%" cellspacing="0" cellpadding="0" style="max-width: 480px; background-color: #ffffff; border-radius: 8px;">
          <tr>
            <td style="padding: 32px 32px 24px; text-align: center; border-bottom: 1px solid #e5e7eb;">
              <h1 style="margin: 0; font-size: 24px; font-weight: 600; color: #0f766e;">{{.SiteName}}</h1>
            </td>
          </tr>
          <tr>
            <td style="padding: 32px;">
              <p style="margin: 0 0 16px; font-size: 16px; color: #374151; line-height: 1.5;">
                {{if .InviterName}}{{.InviterName}}{{else}}A team member{{end}} invited you to join
                <strong>{{.ShopName}}</strong> as <strong>{{.Role}}</strong>.
              </p>
              {{if .Message}}
              <blockquote style="margin: 0 0 24px; padding: 12px 16px; border-left: 3px solid #d1d5db; color: #4b5563;">{{.MessageHTML}}</blockquote>
              {{end}}
              <table role="presentation" width="100%" cellspacing="0" cellpadding="0">
                <tr>
                  <td align="center">
                    <a href="{{.AcceptLink}}" style="display: inline-block; padding: 14px 32px; background-color: #0f766e; color: #ffffff; text-decoration: none; font-size: 16px; font-weight: 500; border-radius: 6px;">
                      View Invitation
                    </a>
                  </td>
                </tr>
              </table>
              <p style="margin: 24px 0 0; font-size: 13px; color: #9ca3af; text-align: center;">
                This invitation expires in {{.ExpiresIn}}.
              </p>
            </td>
          </tr>
        </table>
      </td>
    </tr>
  </table>
</body>
</html>`
