// Package discord implements the platform client on top of discordgo.
package discord

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-engine/internal/permission"
	"github.com/spec-kit/ticket-engine/internal/platform"
)

const maxButtonsPerRow = 5

// Client adapts a discordgo session to platform.Client.
type Client struct {
	session *discordgo.Session
	logger  *zap.Logger
}

// New opens a REST-only session for token.
func New(token string, logger *zap.Logger) (*Client, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	return &Client{session: session, logger: logger}, nil
}

// Close releases the session.
func (c *Client) Close() error {
	return c.session.Close()
}

var _ platform.Client = (*Client)(nil)

func (c *Client) CreateChannel(ctx context.Context, spec platform.ChannelSpec) (*platform.Channel, error) {
	overwrites := make([]*discordgo.PermissionOverwrite, 0, len(spec.Overwrites))
	for _, ow := range spec.Overwrites {
		overwrites = append(overwrites, &discordgo.PermissionOverwrite{
			ID:    ow.ID,
			Type:  overwriteType(ow.Kind),
			Allow: toBits(ow.Allow),
			Deny:  toBits(ow.Deny),
		})
	}
	ch, err := c.session.GuildChannelCreateComplex(spec.GuildID, discordgo.GuildChannelCreateData{
		Name:                 spec.Name,
		Type:                 discordgo.ChannelTypeGuildText,
		Topic:                spec.Topic,
		ParentID:             spec.ParentID,
		PermissionOverwrites: overwrites,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return nil, mapError(err)
	}
	return &platform.Channel{ID: ch.ID, GuildID: ch.GuildID, Name: ch.Name}, nil
}

func (c *Client) DeleteChannel(ctx context.Context, channelID string) error {
	_, err := c.session.ChannelDelete(channelID, discordgo.WithContext(ctx))
	return mapError(err)
}

func (c *Client) RenameChannel(ctx context.Context, channelID, name string) error {
	_, err := c.session.ChannelEdit(channelID, &discordgo.ChannelEdit{Name: name}, discordgo.WithContext(ctx))
	return mapError(err)
}

func (c *Client) SetOverwrite(ctx context.Context, channelID string, ow permission.Overwrite) error {
	err := c.session.ChannelPermissionSet(channelID, ow.ID, overwriteType(ow.Kind), toBits(ow.Allow), toBits(ow.Deny), discordgo.WithContext(ctx))
	return mapError(err)
}

func (c *Client) ClearOverwrite(ctx context.Context, channelID string, principal permission.Principal) error {
	err := c.session.ChannelPermissionDelete(channelID, principal.ID, discordgo.WithContext(ctx))
	if errors.Is(mapError(err), platform.ErrNotFound) {
		return nil
	}
	return mapError(err)
}

func (c *Client) SendMessage(ctx context.Context, channelID string, msg platform.OutgoingMessage) (*platform.Message, error) {
	sent, err := c.session.ChannelMessageSendComplex(channelID, toMessageSend(msg), discordgo.WithContext(ctx))
	if err != nil {
		return nil, mapError(err)
	}
	out := fromMessage(sent)
	return &out, nil
}

func (c *Client) EditMessage(ctx context.Context, channelID, messageID string, msg platform.OutgoingMessage) error {
	edit := discordgo.NewMessageEdit(channelID, messageID)
	content := msg.Content
	edit.Content = &content
	embeds := toEmbeds(msg.Embeds)
	edit.Embeds = &embeds
	components := toComponents(msg.Buttons)
	edit.Components = &components
	_, err := c.session.ChannelMessageEditComplex(edit, discordgo.WithContext(ctx))
	return mapError(err)
}

func (c *Client) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	return mapError(c.session.ChannelMessageDelete(channelID, messageID, discordgo.WithContext(ctx)))
}

func (c *Client) PinMessage(ctx context.Context, channelID, messageID string) error {
	return mapError(c.session.ChannelMessagePin(channelID, messageID, discordgo.WithContext(ctx)))
}

func (c *Client) Messages(ctx context.Context, channelID string, limit int, beforeID string) ([]platform.Message, error) {
	msgs, err := c.session.ChannelMessages(channelID, limit, beforeID, "", "", discordgo.WithContext(ctx))
	if err != nil {
		return nil, mapError(err)
	}
	out := make([]platform.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, fromMessage(m))
	}
	return out, nil
}

func (c *Client) Member(ctx context.Context, guildID, userID string) (*platform.Member, error) {
	m, err := c.session.GuildMember(guildID, userID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, mapError(err)
	}
	member := &platform.Member{Roles: m.Roles, DisplayName: m.Nick}
	if m.User != nil {
		member.UserID = m.User.ID
		member.Bot = m.User.Bot
		if member.DisplayName == "" {
			member.DisplayName = displayName(m.User)
		}
	}
	return member, nil
}

func (c *Client) SendDirect(ctx context.Context, userID string, msg platform.OutgoingMessage) error {
	dm, err := c.session.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		return mapError(err)
	}
	_, err = c.session.ChannelMessageSendComplex(dm.ID, toMessageSend(msg), discordgo.WithContext(ctx))
	return mapError(err)
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) {
		return err
	}
	if restErr.Message != nil && restErr.Message.Code == discordgo.ErrCodeCannotSendMessagesToThisUser {
		return fmt.Errorf("%w: %w", platform.ErrCannotMessageUser, err)
	}
	if restErr.Response != nil && restErr.Response.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %w", platform.ErrNotFound, err)
	}
	return err
}

func overwriteType(kind permission.PrincipalKind) discordgo.PermissionOverwriteType {
	if kind == permission.KindMember {
		return discordgo.PermissionOverwriteTypeMember
	}
	return discordgo.PermissionOverwriteTypeRole
}

func toBits(p permission.Permission) int64 {
	var bits int64
	if p.Has(permission.View) {
		bits |= discordgo.PermissionViewChannel
	}
	if p.Has(permission.Send) {
		bits |= discordgo.PermissionSendMessages
	}
	if p.Has(permission.ReadHistory) {
		bits |= discordgo.PermissionReadMessageHistory
	}
	if p.Has(permission.AttachFiles) {
		bits |= discordgo.PermissionAttachFiles
	}
	return bits
}

func toMessageSend(msg platform.OutgoingMessage) *discordgo.MessageSend {
	send := &discordgo.MessageSend{
		Content:    msg.Content,
		Embeds:     toEmbeds(msg.Embeds),
		Components: toComponents(msg.Buttons),
		AllowedMentions: &discordgo.MessageAllowedMentions{
			Users: msg.MentionUsers,
			Roles: msg.MentionRoles,
		},
	}
	for _, f := range msg.Files {
		send.Files = append(send.Files, &discordgo.File{
			Name:        f.Name,
			ContentType: f.ContentType,
			Reader:      bytes.NewReader(f.Data),
		})
	}
	return send
}

func toEmbeds(embeds []platform.Embed) []*discordgo.MessageEmbed {
	out := make([]*discordgo.MessageEmbed, 0, len(embeds))
	for _, e := range embeds {
		embed := &discordgo.MessageEmbed{
			Title:       e.Title,
			Description: e.Description,
			Color:       e.Color,
		}
		if e.Footer != "" {
			embed.Footer = &discordgo.MessageEmbedFooter{Text: e.Footer}
		}
		for _, f := range e.Fields {
			embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: f.Name, Value: f.Value, Inline: f.Inline})
		}
		out = append(out, embed)
	}
	return out
}

func toComponents(buttons []platform.Button) []discordgo.MessageComponent {
	var rows []discordgo.MessageComponent
	for start := 0; start < len(buttons); start += maxButtonsPerRow {
		end := min(start+maxButtonsPerRow, len(buttons))
		row := discordgo.ActionsRow{}
		for _, b := range buttons[start:end] {
			row.Components = append(row.Components, discordgo.Button{
				CustomID: b.CustomID,
				Label:    b.Label,
				Style:    buttonStyle(b.Style),
			})
		}
		rows = append(rows, row)
	}
	return rows
}

func buttonStyle(style platform.ButtonStyle) discordgo.ButtonStyle {
	switch style {
	case platform.ButtonSuccess:
		return discordgo.SuccessButton
	case platform.ButtonDanger:
		return discordgo.DangerButton
	case platform.ButtonSecondary:
		return discordgo.SecondaryButton
	default:
		return discordgo.PrimaryButton
	}
}

func fromMessage(m *discordgo.Message) platform.Message {
	out := platform.Message{
		ID:        m.ID,
		Content:   m.Content,
		Timestamp: m.Timestamp,
	}
	if m.Author != nil {
		out.AuthorID = m.Author.ID
		out.AuthorName = displayName(m.Author)
		out.AvatarURL = m.Author.AvatarURL("64")
		out.Bot = m.Author.Bot
	}
	for _, e := range m.Embeds {
		embed := platform.Embed{Title: e.Title, Description: e.Description, Color: e.Color}
		if e.Footer != nil {
			embed.Footer = e.Footer.Text
		}
		for _, f := range e.Fields {
			embed.Fields = append(embed.Fields, platform.EmbedField{Name: f.Name, Value: f.Value, Inline: f.Inline})
		}
		out.Embeds = append(out.Embeds, embed)
	}
	for _, a := range m.Attachments {
		out.Attachments = append(out.Attachments, platform.Attachment{Filename: a.Filename, URL: a.URL})
	}
	return out
}

func displayName(u *discordgo.User) string {
	if u.GlobalName != "" {
		return u.GlobalName
	}
	return u.Username
}
