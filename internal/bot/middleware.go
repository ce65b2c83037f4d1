package bot

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"polypulse/internal/handler"
	"polypulse/internal/model"
)

// ensureTimeout bounds the user lookup done for every update.
const ensureTimeout = 10 * time.Second

// UserEnsurer loads or creates the user behind an update.
type UserEnsurer interface {
	EnsureUser(ctx context.Context, telegramID int64, username string) (*model.User, bool, error)
}

// UserMiddleware resolves the sender to a stored user, creating a trial
// account on first contact, and stores it on the context.
func UserMiddleware(accounts UserEnsurer) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			sender := c.Sender()
			if sender == nil || sender.IsBot {
				return nil
			}

			username := sender.Username
			if username == "" {
				username = sender.FirstName
			}

			ctx, cancel := context.WithTimeout(context.Background(), ensureTimeout)
			defer cancel()

			user, created, err := accounts.EnsureUser(ctx, sender.ID, username)
			if err != nil {
				log.Error().Err(err).Int64("telegram_id", sender.ID).Msg("Failed to ensure user")
				return c.Reply(handler.GenericError)
			}
			if created {
				log.Info().Int64("telegram_id", sender.ID).Int64("user_id", user.ID).Msg("New user")
			}
			handler.SetUser(c, user, created)
			return next(c)
		}
	}
}

// PremiumMiddleware lets premium users through and answers everyone else
// with the upgrade hint.
func PremiumMiddleware(isPremium func(*model.User) bool) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			user := handler.CurrentUser(c)
			if user == nil {
				return nil
			}
			if !isPremium(user) {
				log.Debug().
					Int64("user_id", user.ID).
					Str("status", user.SubscriptionStatus).
					Str("command", c.Text()).
					Msg("Premium command refused")
				return c.Reply(handler.PremiumHint())
			}
			return next(c)
		}
	}
}

// LoggingMiddleware creates a middleware that logs all incoming messages.
func LoggingMiddleware() tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			sender := c.Sender()
			chat := c.Chat()

			logEvent := log.Debug()
			if sender != nil {
				logEvent = logEvent.
					Int64("user_id", sender.ID).
					Str("username", sender.Username)
			}
			if chat != nil {
				logEvent = logEvent.
					Int64("chat_id", chat.ID).
					Str("chat_type", string(chat.Type))
			}
			logEvent.
				Str("text", c.Text()).
				Msg("Received message")

			start := time.Now()
			err := next(c)
			log.Debug().Dur("duration", time.Since(start)).Err(err).Msg("Handled message")
			return err
		}
	}
}

// RecoveryMiddleware creates a middleware that recovers from panics.
func RecoveryMiddleware() tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					log.Error().
						Interface("panic", r).
						Str("text", c.Text()).
						Msg("Recovered from panic in handler")
					err = c.Reply(handler.GenericError)
				}
			}()
			return next(c)
		}
	}
}
