package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v3"
)

type fakeBot struct {
	to   tele.Recipient
	what interface{}
	opts []interface{}
	err  error
}

func (f *fakeBot) Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error) {
	f.to, f.what, f.opts = to, what, opts
	return &tele.Message{}, f.err
}

func TestSender_Send(t *testing.T) {
	bot := &fakeBot{}
	s := NewSender(bot)

	require.NoError(t, s.Send(context.Background(), 42, "*hi*"))
	assert.Equal(t, "42", bot.to.Recipient())
	assert.Equal(t, "*hi*", bot.what)
	require.Len(t, bot.opts, 1)
	opts, ok := bot.opts[0].(*tele.SendOptions)
	require.True(t, ok)
	assert.Equal(t, tele.ModeMarkdown, opts.ParseMode)
	assert.True(t, opts.DisableWebPagePreview)
}

func TestSender_SendError(t *testing.T) {
	bot := &fakeBot{err: errors.New("blocked by user")}
	err := NewSender(bot).Send(context.Background(), 7, "x")
	assert.ErrorContains(t, err, "chat 7")
}

func TestSender_CancelledContext(t *testing.T) {
	bot := &fakeBot{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, NewSender(bot).Send(ctx, 1, "x"), context.Canceled)
	assert.Nil(t, bot.what)
}
