// Package platform describes the chat-platform capabilities the ticket
// engine consumes. Implementations own their own timeout and retry policy.
package platform

import (
	"context"
	"errors"
	"time"

	"github.com/spec-kit/ticket-engine/internal/permission"
)

var (
	// ErrNotFound is returned when the channel, message or member is gone.
	ErrNotFound = errors.New("platform: not found")
	// ErrCannotMessageUser is returned when direct messages are closed.
	ErrCannotMessageUser = errors.New("platform: cannot message user")
)

// Client is the set of chat-platform operations the engine relies on.
type Client interface {
	permission.Applier

	CreateChannel(ctx context.Context, spec ChannelSpec) (*Channel, error)
	DeleteChannel(ctx context.Context, channelID string) error
	RenameChannel(ctx context.Context, channelID, name string) error

	SendMessage(ctx context.Context, channelID string, msg OutgoingMessage) (*Message, error)
	EditMessage(ctx context.Context, channelID, messageID string, msg OutgoingMessage) error
	DeleteMessage(ctx context.Context, channelID, messageID string) error
	PinMessage(ctx context.Context, channelID, messageID string) error
	// Messages returns up to limit messages older than beforeID (or the most
	// recent when beforeID is empty), newest first.
	Messages(ctx context.Context, channelID string, limit int, beforeID string) ([]Message, error)

	Member(ctx context.Context, guildID, userID string) (*Member, error)
	SendDirect(ctx context.Context, userID string, msg OutgoingMessage) error
}

// ChannelSpec describes a conversation space to create.
type ChannelSpec struct {
	GuildID    string
	ParentID   string
	Name       string
	Topic      string
	Overwrites []permission.Overwrite
}

// Channel is a created conversation space.
type Channel struct {
	ID      string
	GuildID string
	Name    string
}

// Member is a resolved guild member.
type Member struct {
	UserID      string
	DisplayName string
	Roles       []string
	Bot         bool
}

// HasRole reports whether the member carries roleID. An empty roleID never
// matches.
func (m *Member) HasRole(roleID string) bool {
	if m == nil || roleID == "" {
		return false
	}
	for _, r := range m.Roles {
		if r == roleID {
			return true
		}
	}
	return false
}

// Message is a fetched chat message.
type Message struct {
	ID          string
	AuthorID    string
	AuthorName  string
	AvatarURL   string
	Bot         bool
	Content     string
	Timestamp   time.Time
	Embeds      []Embed
	Attachments []Attachment
}

// Embed is the rich content block attached to a message.
type Embed struct {
	Title       string
	Description string
	Color       int
	Fields      []EmbedField
	Footer      string
}

// EmbedField is a single name/value pair of an embed.
type EmbedField struct {
	Name   string
	Value  string
	Inline bool
}

// Attachment is an uploaded file reference.
type Attachment struct {
	Filename string
	URL      string
}

// ButtonStyle selects the visual variant of a button.
type ButtonStyle int

const (
	ButtonPrimary ButtonStyle = iota + 1
	ButtonSecondary
	ButtonSuccess
	ButtonDanger
)

// Button is an interactive control; CustomID is routed back by the
// dispatch layer.
type Button struct {
	CustomID string
	Label    string
	Style    ButtonStyle
}

// File is an attachment to upload with a message.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// OutgoingMessage is a message to send or the new content of an edit.
type OutgoingMessage struct {
	Content      string
	Embeds       []Embed
	Buttons      []Button
	Files        []File
	MentionUsers []string
	MentionRoles []string
}
