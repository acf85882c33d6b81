package invitation

import (
	"context"
	"fmt"
	"time"

	"github.com/dalemusser/shopdesk/internal/app/system/mailer"
)

// Sender delivers a composed email. *mailer.Mailer satisfies it.
type Sender interface {
	Send(ctx context.Context, e mailer.Email) error
}

// MailNotifier sends invitation notices by email.
type MailNotifier struct {
	sender   Sender
	siteName string
	now      func() time.Time
}

// NewMailNotifier creates a Notifier that emails through sender.
func NewMailNotifier(sender Sender, siteName string) *MailNotifier {
	if siteName == "" {
		siteName = "ShopDesk"
	}
	return &MailNotifier{sender: sender, siteName: siteName, now: time.Now}
}

// SendInvite composes and sends the invitation email.
func (n *MailNotifier) SendInvite(ctx context.Context, notice Notice) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e := mailer.BuildInvitationEmail(mailer.InvitationEmailData{
		SiteName:    n.siteName,
		ShopName:    notice.ShopName,
		Role:        notice.Role,
		InviterName: notice.InviterName,
		Message:     notice.Message,
		AcceptLink:  notice.Link,
		ExpiresIn:   humanizeUntil(notice.ExpiresAt.Sub(n.now())),
	})
	e.To = notice.To
	return n.sender.Send(ctx, e)
}

// humanizeUntil renders d in whole days, or hours when under a day.
func humanizeUntil(d time.Duration) string {
	switch {
	case d >= 48*time.Hour:
		return fmt.Sprintf("%d days", int((d+time.Hour)/(24*time.Hour)))
	case d >= 24*time.Hour:
		return "1 day"
	case d >= 2*time.Hour:
		return fmt.Sprintf("%d hours", int(d/time.Hour))
	default:
		return "1 hour"
	}
}
