// Package discordchat is the secondary chat transport adapter, wired on
// top of github.com/bwmarrin/discordgo to demonstrate that the ingress
// pipeline's serialization/queue/abort logic is transport-agnostic.
package discordchat

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/arcrelay/bridge/internal/ingress"
	"github.com/arcrelay/bridge/internal/orchestrator"
)

// Bot wraps a discordgo session as an ingress.Transport.
type Bot struct {
	session  *discordgo.Session
	pipeline *ingress.Pipeline
}

func New(token string) (*Bot, error) {
	sess, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}
	b := &Bot{session: sess}
	sess.AddHandler(b.onMessageCreate)
	sess.AddHandler(b.onInteractionCreate)
	return b, nil
}

func (b *Bot) SetPipeline(p *ingress.Pipeline) { b.pipeline = p }

func (b *Bot) Start() error { return b.session.Open() }
func (b *Bot) Stop() error  { return b.session.Close() }

func (b *Bot) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author.Bot {
		return
	}
	u := ingress.Update{
		ChatKey:         m.ChannelID,
		UserID:          m.Author.ID,
		OriginMessageID: m.ID,
		Text:            m.Content,
	}
	_ = b.pipeline.Handle(context.Background(), u)
}

func (b *Bot) onInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionMessageComponent {
		return
	}
	b.pipeline.Cancel(i.ChannelID, i.MessageComponentData().CustomID)
}

func (b *Bot) PostIndicator(ctx context.Context, u ingress.Update, cancelData string) (string, error) {
	msg, err := b.session.ChannelMessageSendComplex(u.ChatKey, &discordgo.MessageSend{
		Content:   "Queued…",
		Reference: &discordgo.MessageReference{MessageID: u.OriginMessageID, ChannelID: u.ChatKey},
		Components: []discordgo.MessageComponent{
			discordgo.ActionsRow{Components: []discordgo.MessageComponent{
				discordgo.Button{Label: "Cancel this message", Style: discordgo.DangerButton, CustomID: cancelData},
			}},
		},
	})
	if err != nil {
		return "", err
	}
	return u.ChatKey + ":" + msg.ID, nil
}

func (b *Bot) EditMessage(ctx context.Context, messageID, text string) error {
	channelID, msgID, err := splitKey(messageID)
	if err != nil {
		return err
	}
	_, err = b.session.ChannelMessageEdit(channelID, msgID, text)
	return err
}

func (b *Bot) DeleteMessage(ctx context.Context, messageID string) error {
	channelID, msgID, err := splitKey(messageID)
	if err != nil {
		return err
	}
	return b.session.ChannelMessageDelete(channelID, msgID)
}

func (b *Bot) DeliverReply(ctx context.Context, u ingress.Update, reply orchestrator.Reply) error {
	send := &discordgo.MessageSend{Content: reply.Text}
	if len(reply.Buttons) > 0 {
		var comps []discordgo.MessageComponent
		for _, btn := range reply.Buttons {
			comps = append(comps, discordgo.Button{Label: btn.Text, Style: discordgo.PrimaryButton, CustomID: btn.Data})
		}
		send.Components = []discordgo.MessageComponent{discordgo.ActionsRow{Components: comps}}
	}
	_, err := b.session.ChannelMessageSendComplex(u.ChatKey, send)
	return err
}

func splitKey(key string) (channelID, msgID string, err error) {
	idx := strings.IndexByte(key, ':')
	if idx < 0 {
		return "", "", fmt.Errorf("discordchat: invalid composite message key %q", key)
	}
	return key[:idx], key[idx+1:], nil
}
