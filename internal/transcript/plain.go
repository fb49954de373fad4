package transcript

import (
	"context"
	"fmt"
	"strings"

	"github.com/spec-kit/ticket-engine/internal/platform"
)

const (
	plainTimeLayout  = "2006-01-02 15:04:05"
	emptyPlaceholder = "[no text content]"
)

// ExportPlainText renders the most recent messages of channelID as one
// "[timestamp] author: content" line each, oldest first.
func (e *Exporter) ExportPlainText(ctx context.Context, channelID string) (string, error) {
	msgs, err := e.recent(ctx, channelID, e.plainLimit)
	if err != nil {
		return "", err
	}
	return RenderPlain(msgs), nil
}

// RenderPlain formats msgs, which must already be in chronological order.
func RenderPlain(msgs []platform.Message) string {
	var b strings.Builder
	for _, m := range msgs {
		content := strings.TrimSpace(m.Content)
		if content == "" {
			content = emptyPlaceholder
		}
		fmt.Fprintf(&b, "[%s] %s: %s\n", m.Timestamp.UTC().Format(plainTimeLayout), author(m), content)
		for _, embed := range m.Embeds {
			writeEmbed(&b, embed)
		}
		for _, a := range m.Attachments {
			fmt.Fprintf(&b, "    [attachment] %s\n", a.URL)
		}
	}
	return b.String()
}

func writeEmbed(b *strings.Builder, embed platform.Embed) {
	switch {
	case embed.Title != "" && embed.Description != "":
		fmt.Fprintf(b, "    [embed] %s: %s\n", embed.Title, flatten(embed.Description))
	case embed.Title != "":
		fmt.Fprintf(b, "    [embed] %s\n", embed.Title)
	case embed.Description != "":
		fmt.Fprintf(b, "    [embed] %s\n", flatten(embed.Description))
	default:
		if len(embed.Fields) == 0 {
			return
		}
		b.WriteString("    [embed]\n")
	}
	for _, f := range embed.Fields {
		fmt.Fprintf(b, "      %s: %s\n", f.Name, flatten(f.Value))
	}
}

func author(m platform.Message) string {
	if m.AuthorName != "" {
		return m.AuthorName
	}
	if m.AuthorID != "" {
		return m.AuthorID
	}
	return "unknown"
}

func flatten(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
