package notify

import (
	"context"
	"fmt"
	"net/http"
)

// Embed colours by event; anything else is grey.
var discordColors = map[string]int{
	"trade":       0x2ecc71,
	"take_profit": 0x3498db,
	"stop_loss":   0xe74c3c,
	"error":       0xe67e22,
}

// DiscordSender posts notifications to a Discord webhook as embeds.
type DiscordSender struct {
	webhookURL string
	client     *http.Client
}

// NewDiscordSender creates a DiscordSender for the given webhook URL.
func NewDiscordSender(webhookURL string) *DiscordSender {
	return &DiscordSender{webhookURL: webhookURL, client: newHTTPClient()}
}

type discordEmbed struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Color       int    `json:"color"`
}

type discordMessage struct {
	Username string         `json:"username"`
	Embeds   []discordEmbed `json:"embeds"`
}

// Send posts one embed. Discord answers 204 on success.
func (d *DiscordSender) Send(ctx context.Context, title, message string) error {
	return d.send(ctx, "", title, message)
}

// SendEvent is Send with the embed coloured by event.
func (d *DiscordSender) SendEvent(ctx context.Context, event, title, message string) error {
	return d.send(ctx, event, title, message)
}

func (d *DiscordSender) send(ctx context.Context, event, title, message string) error {
	color, ok := discordColors[event]
	if !ok {
		color = 0x95a5a6
	}
	msg := discordMessage{
		Username: "cryptobot",
		Embeds:   []discordEmbed{{Title: title, Description: message, Color: color}},
	}
	if err := postJSON(ctx, d.client, d.webhookURL, msg); err != nil {
		return fmt.Errorf("discord: %w", err)
	}
	return nil
}

// Name returns the sender identifier.
func (d *DiscordSender) Name() string {
	return "discord"
}
