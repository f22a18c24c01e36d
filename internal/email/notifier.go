package email

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"net/url"
	"strings"
	"time"

	"github.com/samber/oops"

	"github.com/mark-chris/storefront-auth/internal/auth"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// NotifierConfig configures a Notifier
type NotifierConfig struct {
	// SiteURL is the public origin that hosts the verify and reset pages.
	SiteURL         string
	StoreName       string
	VerificationTTL time.Duration
	ResetTTL        time.Duration
}

// Notifier renders account emails and hands them to a Sender.
// It implements auth.Notifier.
type Notifier struct {
	sender Sender
	cfg    NotifierConfig
}

// NewNotifier creates a Notifier
func NewNotifier(sender Sender, cfg NotifierConfig) *Notifier {
	cfg.SiteURL = strings.TrimRight(cfg.SiteURL, "/")
	if cfg.StoreName == "" {
		cfg.StoreName = "Storefront"
	}
	if cfg.VerificationTTL <= 0 {
		cfg.VerificationTTL = auth.DefaultVerificationTTL
	}
	if cfg.ResetTTL <= 0 {
		cfg.ResetTTL = auth.DefaultResetTTL
	}
	return &Notifier{sender: sender, cfg: cfg}
}

type messageData struct {
	StoreName string
	// Name is stored HTML-escaped already
	Name      template.HTML
	Link      string
	ExpiresIn string
}

// SendVerification emails the verification link for rawToken
func (n *Notifier) SendVerification(ctx context.Context, user *auth.User, rawToken string) error {
	link := n.link("/verify-email.html", rawToken)
	body, err := render("verify_email.html", messageData{
		StoreName: n.cfg.StoreName,
		Name:      template.HTML(user.Name),
		Link:      link,
		ExpiresIn: humanDuration(n.cfg.VerificationTTL),
	})
	if err != nil {
		return err
	}
	return n.sender.Send(ctx, user.Email, "Verify your "+n.cfg.StoreName+" account", body)
}

// SendPasswordReset emails the password reset link for rawToken
func (n *Notifier) SendPasswordReset(ctx context.Context, user *auth.User, rawToken string) error {
	link := n.link("/reset-password.html", rawToken)
	body, err := render("reset_password.html", messageData{
		StoreName: n.cfg.StoreName,
		Name:      template.HTML(user.Name),
		Link:      link,
		ExpiresIn: humanDuration(n.cfg.ResetTTL),
	})
	if err != nil {
		return err
	}
	return n.sender.Send(ctx, user.Email, "Password Reset Request - "+n.cfg.StoreName, body)
}

func (n *Notifier) link(path, rawToken string) string {
	return n.cfg.SiteURL + path + "?token=" + url.QueryEscape(rawToken)
}

func render(name string, data messageData) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", oops.Code("EMAIL_RENDER_FAILED").With("template", name).Wrap(err)
	}
	return buf.String(), nil
}

// humanDuration renders link lifetimes like "24 hours" or "30 minutes"
func humanDuration(d time.Duration) string {
	switch {
	case d > 24*time.Hour && d%(24*time.Hour) == 0:
		return countUnit(int(d/(24*time.Hour)), "day")
	case d%time.Hour == 0:
		return countUnit(int(d/time.Hour), "hour")
	default:
		return countUnit(int(d/time.Minute), "minute")
	}
}

func countUnit(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
