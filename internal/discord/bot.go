// Package discord serves Anchor over Discord DMs and mentions.
package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/charmbracelet/log"

	"github.com/raknampuna/anchor/internal/session"
)

// Turns runs a user's message through a conversational turn.
type Turns interface {
	Handle(ctx context.Context, userID, message string) (session.Outcome, error)
}

type Bot struct {
	session *discordgo.Session
	turns   Turns
	log     *log.Logger
}

func NewBot(token string, turns Turns, logger *log.Logger) (*Bot, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("creating Discord session: %w", err)
	}

	bot := &Bot{session: s, turns: turns, log: logger.WithPrefix("discord")}
	s.AddHandler(bot.onMessage)
	s.Identify.Intents = discordgo.IntentsDirectMessages | discordgo.IntentsGuildMessages

	if err := s.Open(); err != nil {
		return nil, fmt.Errorf("opening Discord connection: %w", err)
	}

	bot.log.Info("connected", "user", s.State.User.Username)
	return bot, nil
}

// SendDM delivers content to a user's direct-message channel.
func (b *Bot) SendDM(userID, content string) error {
	ch, err := b.session.UserChannelCreate(userID)
	if err != nil {
		return fmt.Errorf("opening DM channel: %w", err)
	}
	for _, chunk := range splitMessage(content, maxMessageLen) {
		if _, err := b.session.ChannelMessageSend(ch.ID, chunk); err != nil {
			return fmt.Errorf("sending DM: %w", err)
		}
	}
	return nil
}

func (b *Bot) Close() {
	b.session.Close()
}
