// Package notify delivers outbound chat messages.
package notify

import (
	"context"
	"fmt"

	tele "gopkg.in/telebot.v3"
)

// Notifier sends a Markdown message to a chat. Background jobs depend on
// this interface only.
type Notifier interface {
	Send(ctx context.Context, chatID int64, text string) error
}

// messenger is the part of *tele.Bot the sender uses.
type messenger interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// Sender is a Notifier backed by a telebot bot. Callers escape user-supplied
// values with format.EscapeMarkdown before composing text.
type Sender struct {
	bot messenger
}

// NewSender creates a Sender.
func NewSender(bot messenger) *Sender {
	return &Sender{bot: bot}
}

// Send posts text with legacy Markdown and link previews disabled.
func (s *Sender) Send(ctx context.Context, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.bot.Send(tele.ChatID(chatID), text, &tele.SendOptions{
		ParseMode:             tele.ModeMarkdown,
		DisableWebPagePreview: true,
	})
	if err != nil {
		return fmt.Errorf("failed to send to chat %d: %w", chatID, err)
	}
	return nil
}
