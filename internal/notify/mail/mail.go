// Package mail is the SMTP notification channel.
package mail

import (
	"context"
	"fmt"
	"os"
	"strings"

	gomail "github.com/wneessen/go-mail"

	"leavebot/internal/config"
	"leavebot/internal/notify"
	"leavebot/pkg/logx"
)

// Channel sends notifications over SMTP (Gmail app-password style auth).
type Channel struct {
	cfg config.EmailConfig
	log logx.Logger
}

func New(cfg config.EmailConfig, log logx.Logger) *Channel {
	return &Channel{cfg: cfg, log: log}
}

func (c *Channel) Name() string { return "mail" }

func (c *Channel) Notify(ctx context.Context, ev notify.Event) error {
	subject, body := notify.Render(ev)

	msg := gomail.NewMsg()
	if c.cfg.SenderName != "" {
		if err := msg.FromFormat(c.cfg.SenderName, c.cfg.Account); err != nil {
			return fmt.Errorf("sender address: %w", err)
		}
	} else {
		if err := msg.From(c.cfg.Account); err != nil {
			return fmt.Errorf("sender address: %w", err)
		}
	}
	if err := msg.To(c.cfg.Recipient); err != nil {
		return fmt.Errorf("recipient address: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextPlain, body)

	// Screenshots ride along on failure notifications.
	if ev.Screenshot != "" {
		if _, err := os.Stat(ev.Screenshot); err == nil {
			msg.AttachFile(ev.Screenshot)
		} else {
			c.log.Warn("screenshot missing; sending without attachment",
				logx.String("path", ev.Screenshot))
		}
	}

	password, err := LoadAppPassword(c.cfg.KeyFileOrDefault())
	if err != nil {
		return err
	}
	// Gmail app passwords are 16 chars; anything else usually means the
	// account password was pasted in by mistake.
	if len(password) != 16 {
		c.log.Warn("smtp password is not 16 characters; is this an app password?",
			logx.Int("length", len(password)))
	}

	client, err := gomail.NewClient(c.cfg.SMTPHostOrDefault(),
		gomail.WithPort(c.cfg.SMTPPortOrDefault()),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(c.cfg.Account),
		gomail.WithPassword(password),
		gomail.WithTLSPolicy(gomail.TLSMandatory),
	)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}

// LoadAppPassword reads a one-line KEY=value file holding the SMTP app
// password. Spaces inside the value are stripped (Gmail displays app
// passwords in spaced groups of four).
func LoadAppPassword(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("mail key file: %w", err)
	}
	content := strings.TrimSpace(string(b))
	if !strings.Contains(content, "=") {
		return "", fmt.Errorf("mail key file %s: want KEY=app_password", path)
	}
	_, value, _ := strings.Cut(content, "=")
	password := strings.ReplaceAll(strings.TrimSpace(value), " ", "")
	if password == "" {
		return "", fmt.Errorf("mail key file %s: empty password", path)
	}
	return password, nil
}
