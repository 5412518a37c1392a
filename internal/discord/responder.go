package discord

import (
	"bytes"
	"context"
	"strings"

	"github.com/artifactgaming/carlbot/pkg/retrylimit"
)

// Send delivers a message, rate limited and retried. Mass pings are
// neutralized so replayed user content cannot page a whole server.
func (b *Bot) Send(channelID, message string) error {
	clean := neutralizePings(message)
	return retrylimit.Do(context.Background(), b.limiter, b.retryCfg, func() error {
		_, err := b.session.ChannelMessageSend(channelID, clean)
		return err
	})
}

// SendFile uploads contents as an attachment named filename.
func (b *Bot) SendFile(channelID, filename string, contents []byte) error {
	return retrylimit.Do(context.Background(), b.limiter, b.retryCfg, func() error {
		_, err := b.session.ChannelFileSend(channelID, filename, bytes.NewReader(contents))
		return err
	})
}

// neutralizePings breaks @everyone and @here with a zero-width space.
func neutralizePings(message string) string {
	message = strings.ReplaceAll(message, "@everyone", "@​everyone")
	return strings.ReplaceAll(message, "@here", "@​here")
}
