// Package platformtest provides an in-memory chat platform for tests.
package platformtest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/spec-kit/ticket-engine/internal/permission"
	"github.com/spec-kit/ticket-engine/internal/platform"
)

// Channel is the recorded state of a fake conversation space.
type Channel struct {
	ID         string
	GuildID    string
	ParentID   string
	Name       string
	Topic      string
	Overwrites map[permission.Principal]permission.Overwrite
	Messages   []platform.Message
	Pinned     []string
	Deleted    bool
}

// Direct is a recorded direct message.
type Direct struct {
	UserID  string
	Message platform.OutgoingMessage
}

// Fake implements platform.Client in memory. Messages sent through it are
// authored by the bot.
type Fake struct {
	mu       sync.Mutex
	seq      int
	channels map[string]*Channel
	members  map[string]*platform.Member
	directs  []Direct
	sent     map[string][]platform.OutgoingMessage

	// Now stamps sent messages; defaults to time.Now.
	Now func() time.Time
	// DirectErr, when set, is returned by SendDirect.
	DirectErr error
	// CreateErr, when set, is returned by CreateChannel.
	CreateErr error
	// SendErr, when set, is returned by SendMessage.
	SendErr error
	// MessagesErr, when set, is returned by Messages.
	MessagesErr error
}

// New constructs an empty fake.
func New() *Fake {
	return &Fake{
		channels: make(map[string]*Channel),
		members:  make(map[string]*platform.Member),
		sent:     make(map[string][]platform.OutgoingMessage),
		Now:      time.Now,
	}
}

// AddMember registers a guild member with roles.
func (f *Fake) AddMember(userID, name string, roles ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.members[userID] = &platform.Member{UserID: userID, DisplayName: name, Roles: roles}
}

// AddChannel registers an existing channel, such as a log channel.
func (f *Fake) AddChannel(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channels[id] = &Channel{ID: id, Overwrites: make(map[permission.Principal]permission.Overwrite)}
}

// Post appends a message authored by a member, as if typed by a user.
func (f *Fake) Post(channelID, authorID, content string, at time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.channels[channelID]
	if !ok {
		return
	}
	f.seq++
	ch.Messages = append(ch.Messages, platform.Message{
		ID:         fmt.Sprintf("m%d", f.seq),
		AuthorID:   authorID,
		AuthorName: authorID,
		Content:    content,
		Timestamp:  at,
	})
}

// Channel returns a snapshot of the channel with id.
func (f *Fake) Channel(id string) (Channel, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.channels[id]
	if !ok {
		return Channel{}, false
	}
	out := *ch
	out.Overwrites = make(map[permission.Principal]permission.Overwrite, len(ch.Overwrites))
	for k, v := range ch.Overwrites {
		out.Overwrites[k] = v
	}
	out.Messages = append([]platform.Message(nil), ch.Messages...)
	out.Pinned = append([]string(nil), ch.Pinned...)
	return out, true
}

// Overwrites returns the current overwrites of channel id as a slice.
func (f *Fake) Overwrites(id string) []permission.Overwrite {
	ch, ok := f.Channel(id)
	if !ok {
		return nil
	}
	out := make([]permission.Overwrite, 0, len(ch.Overwrites))
	for _, ow := range ch.Overwrites {
		out = append(out, ow)
	}
	return out
}

// Sent returns every message sent to channelID, including deleted ones.
func (f *Fake) Sent(channelID string) []platform.OutgoingMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]platform.OutgoingMessage(nil), f.sent[channelID]...)
}

// Directs returns every direct message delivered.
func (f *Fake) Directs() []Direct {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Direct(nil), f.directs...)
}

// CreatedChannels counts channels created through CreateChannel.
func (f *Fake) CreatedChannels() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, ch := range f.channels {
		if ch.GuildID != "" {
			n++
		}
	}
	return n
}

func (f *Fake) live(id string) (*Channel, error) {
	ch, ok := f.channels[id]
	if !ok || ch.Deleted {
		return nil, platform.ErrNotFound
	}
	return ch, nil
}

func (f *Fake) CreateChannel(_ context.Context, spec platform.ChannelSpec) (*platform.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CreateErr != nil {
		return nil, f.CreateErr
	}
	f.seq++
	ch := &Channel{
		ID:         fmt.Sprintf("ch%d", f.seq),
		GuildID:    spec.GuildID,
		ParentID:   spec.ParentID,
		Name:       spec.Name,
		Topic:      spec.Topic,
		Overwrites: make(map[permission.Principal]permission.Overwrite, len(spec.Overwrites)),
	}
	for _, ow := range spec.Overwrites {
		ch.Overwrites[ow.Principal] = ow
	}
	f.channels[ch.ID] = ch
	return &platform.Channel{ID: ch.ID, GuildID: ch.GuildID, Name: ch.Name}, nil
}

func (f *Fake) DeleteChannel(_ context.Context, channelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, err := f.live(channelID)
	if err != nil {
		return err
	}
	ch.Deleted = true
	return nil
}

func (f *Fake) RenameChannel(_ context.Context, channelID, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, err := f.live(channelID)
	if err != nil {
		return err
	}
	ch.Name = name
	return nil
}

func (f *Fake) SetOverwrite(_ context.Context, channelID string, ow permission.Overwrite) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, err := f.live(channelID)
	if err != nil {
		return err
	}
	ch.Overwrites[ow.Principal] = ow
	return nil
}

func (f *Fake) ClearOverwrite(_ context.Context, channelID string, principal permission.Principal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, err := f.live(channelID)
	if err != nil {
		return err
	}
	delete(ch.Overwrites, principal)
	return nil
}

func (f *Fake) SendMessage(_ context.Context, channelID string, msg platform.OutgoingMessage) (*platform.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SendErr != nil {
		return nil, f.SendErr
	}
	ch, err := f.live(channelID)
	if err != nil {
		return nil, err
	}
	f.seq++
	m := platform.Message{
		ID:         fmt.Sprintf("m%d", f.seq),
		AuthorID:   "bot",
		AuthorName: "Tickets",
		Bot:        true,
		Content:    msg.Content,
		Timestamp:  f.Now(),
		Embeds:     msg.Embeds,
	}
	ch.Messages = append(ch.Messages, m)
	f.sent[channelID] = append(f.sent[channelID], msg)
	return &m, nil
}

func (f *Fake) EditMessage(_ context.Context, channelID, messageID string, msg platform.OutgoingMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, err := f.live(channelID)
	if err != nil {
		return err
	}
	for i := range ch.Messages {
		if ch.Messages[i].ID == messageID {
			ch.Messages[i].Content = msg.Content
			ch.Messages[i].Embeds = msg.Embeds
			return nil
		}
	}
	return platform.ErrNotFound
}

func (f *Fake) DeleteMessage(_ context.Context, channelID, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, err := f.live(channelID)
	if err != nil {
		return err
	}
	for i := range ch.Messages {
		if ch.Messages[i].ID == messageID {
			ch.Messages = append(ch.Messages[:i], ch.Messages[i+1:]...)
			return nil
		}
	}
	return platform.ErrNotFound
}

func (f *Fake) PinMessage(_ context.Context, channelID, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, err := f.live(channelID)
	if err != nil {
		return err
	}
	ch.Pinned = append(ch.Pinned, messageID)
	return nil
}

func (f *Fake) Messages(_ context.Context, channelID string, limit int, beforeID string) ([]platform.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.MessagesErr != nil {
		return nil, f.MessagesErr
	}
	ch, err := f.live(channelID)
	if err != nil {
		return nil, err
	}
	end := len(ch.Messages)
	if beforeID != "" {
		for i := range ch.Messages {
			if ch.Messages[i].ID == beforeID {
				end = i
				break
			}
		}
	}
	var out []platform.Message
	for i := end - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, ch.Messages[i])
	}
	return out, nil
}

func (f *Fake) Member(_ context.Context, _, userID string) (*platform.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.members[userID]
	if !ok {
		return nil, platform.ErrNotFound
	}
	out := *m
	out.Roles = append([]string(nil), m.Roles...)
	return &out, nil
}

func (f *Fake) SendDirect(_ context.Context, userID string, msg platform.OutgoingMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.DirectErr != nil {
		return f.DirectErr
	}
	f.directs = append(f.directs, Direct{UserID: userID, Message: msg})
	return nil
}

var _ platform.Client = (*Fake)(nil)
