// Package telegram is the optional send-only Telegram notification channel.
package telegram

import (
	"context"
	"fmt"
	"os"
	"time"
	"unicode/utf8"

	tele "gopkg.in/telebot.v4"

	"leavebot/internal/config"
	"leavebot/internal/notify"
	"leavebot/pkg/logx"
)

type Channel struct {
	bot  *tele.Bot
	chat *tele.Chat
	log  logx.Logger
}

// New connects the bot. Send-only: no poller is started.
func New(cfg config.TelegramConfig, log logx.Logger) (*Channel, error) {
	bot, err := tele.NewBot(tele.Settings{Token: cfg.Token})
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return &Channel{
		bot:  bot,
		chat: &tele.Chat{ID: cfg.ChatID},
		log:  log,
	}, nil
}

func (c *Channel) Name() string { return "telegram" }

func (c *Channel) Notify(ctx context.Context, ev notify.Event) error {
	subject, body := notify.Render(ev)
	text := subject + "\n\n" + body

	// Telegram caps messages at 4096 chars.
	text = truncate(text, 4000)

	done := make(chan error, 1)
	go func() {
		if ev.Screenshot != "" {
			if _, err := os.Stat(ev.Screenshot); err == nil {
				photo := &tele.Photo{File: tele.FromDisk(ev.Screenshot), Caption: subject}
				if _, err := c.bot.Send(c.chat, photo); err != nil {
					c.log.Warn("telegram photo send failed", logx.Err(err))
				}
			}
		}
		_, err := c.bot.Send(c.chat, text)
		done <- err
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		if err != nil {
			return fmt.Errorf("telegram send: %w", err)
		}
		return nil
	}
}

// truncate cuts text to at most max bytes without splitting a rune
// (the message bodies are mostly multi-byte CJK).
func truncate(text string, max int) string {
	if len(text) <= max {
		return text
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}

// Ping verifies the bot can reach the API (used by `leavebot check`).
func (c *Channel) Ping(ctx context.Context) error {
	done := make(chan error, 1)
	go func() {
		_, err := c.bot.ChatByID(c.chat.ID)
		done <- err
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	case <-time.After(10 * time.Second):
		return fmt.Errorf("telegram ping timed out")
	}
}
