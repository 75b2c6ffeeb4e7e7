// Package notify posts game announcements to a Discord channel.
package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
)

// Discord messages are capped at 2000 characters.
const maxMessageLen = 2000

type channelSender interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

type Discord struct {
	sender    channelSender
	channelID string
	prefix    string
}

// NewDiscord uses the REST API only; no gateway connection is opened.
func NewDiscord(token, channelID string) (*Discord, error) {
	if token == "" || channelID == "" {
		return nil, fmt.Errorf("discord token and channel are required")
	}
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	return &Discord{sender: session, channelID: channelID, prefix: "[wealthsim] "}, nil
}

func (d *Discord) Announce(ctx context.Context, message string) error {
	content := formatMessage(d.prefix, message)
	if content == "" {
		return nil
	}
	if _, err := d.sender.ChannelMessageSend(d.channelID, content, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("discord send: %w", err)
	}
	return nil
}

func formatMessage(prefix, message string) string {
	message = strings.TrimSpace(message)
	if message == "" {
		return ""
	}
	content := prefix + message
	if r := []rune(content); len(r) > maxMessageLen {
		content = string(r[:maxMessageLen-1]) + "…"
	}
	return content
}
