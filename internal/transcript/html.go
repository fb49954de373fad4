package transcript

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"time"

	"github.com/spec-kit/ticket-engine/internal/platform"
)

// Document describes the header of a rich transcript.
type Document struct {
	Title     string
	ChannelID string
	GuildID   string
}

type htmlMessage struct {
	Author    string
	AvatarURL string
	Bot       bool
	Timestamp string
	Body      template.HTML
	Embeds    []htmlEmbed
	Files     []platform.Attachment
}

type htmlEmbed struct {
	Title       string
	Description template.HTML
	Color       string
	Fields      []platform.EmbedField
	Footer      string
}

type htmlPage struct {
	Document
	GeneratedAt string
	Count       int
	Messages    []htmlMessage
}

var pageTemplate = template.Must(template.New("transcript").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body{background:#313338;color:#dbdee1;font-family:"gg sans","Helvetica Neue",Helvetica,Arial,sans-serif;margin:0;padding:24px}
header{border-bottom:1px solid #4e5058;margin-bottom:16px;padding-bottom:12px}
header h1{font-size:20px;margin:0 0 4px}
header p{color:#949ba4;font-size:12px;margin:0}
.msg{display:flex;gap:12px;padding:6px 0}
.avatar{border-radius:50%;height:40px;width:40px;flex-shrink:0;background:#5865f2}
.meta{font-size:13px}
.author{color:#f2f3f5;font-weight:600}
.bot{background:#5865f2;border-radius:3px;color:#fff;font-size:10px;margin-left:4px;padding:1px 4px}
.time{color:#949ba4;font-size:11px;margin-left:6px}
.body p{margin:2px 0}
.body pre{border-radius:4px;overflow-x:auto;padding:8px}
.embed{background:#2b2d31;border-left:4px solid #1e1f22;border-radius:4px;margin:4px 0;max-width:520px;padding:8px 12px}
.embed .title{font-weight:600}
.embed .field{margin-top:4px}
.embed .field b{display:block;font-size:12px}
.embed .footer{color:#949ba4;font-size:11px;margin-top:6px}
.files a{color:#00a8fc;display:block;font-size:13px}
.empty{color:#949ba4;font-style:italic}
</style>
</head>
<body>
<header>
<h1>{{.Title}}</h1>
<p>Channel {{.ChannelID}}{{if .GuildID}} in guild {{.GuildID}}{{end}} &middot; {{.Count}} messages &middot; generated {{.GeneratedAt}}</p>
</header>
{{range .Messages}}<div class="msg">
{{if .AvatarURL}}<img class="avatar" src="{{.AvatarURL}}" alt="">{{else}}<div class="avatar"></div>{{end}}
<div class="content">
<div class="meta"><span class="author">{{.Author}}</span>{{if .Bot}}<span class="bot">BOT</span>{{end}}<span class="time">{{.Timestamp}}</span></div>
<div class="body">{{if .Body}}{{.Body}}{{else}}<span class="empty">no text content</span>{{end}}</div>
{{range .Embeds}}<div class="embed" style="border-left-color:{{.Color}}">
{{if .Title}}<div class="title">{{.Title}}</div>{{end}}
{{if .Description}}<div class="description">{{.Description}}</div>{{end}}
{{range .Fields}}<div class="field"><b>{{.Name}}</b>{{.Value}}</div>{{end}}
{{if .Footer}}<div class="footer">{{.Footer}}</div>{{end}}
</div>{{end}}
{{if .Files}}<div class="files">{{range .Files}}<a href="{{.URL}}">{{.Filename}}</a>{{end}}</div>{{end}}
</div>
</div>
{{end}}</body>
</html>
`))

// ExportHTML fetches the channel history, paginating backward up to the
// configured cap, and renders a self-contained HTML document.
func (e *Exporter) ExportHTML(ctx context.Context, doc Document) (string, error) {
	msgs, err := e.history(ctx, doc.ChannelID, e.htmlCap)
	if err != nil {
		return "", err
	}
	return e.RenderHTML(doc, msgs, time.Now())
}

// RenderHTML renders msgs, which must be in chronological order.
func (e *Exporter) RenderHTML(doc Document, msgs []platform.Message, generatedAt time.Time) (string, error) {
	if doc.Title == "" {
		doc.Title = "Transcript"
	}
	page := htmlPage{
		Document:    doc,
		GeneratedAt: generatedAt.UTC().Format(time.RFC1123),
		Count:       len(msgs),
		Messages:    make([]htmlMessage, 0, len(msgs)),
	}
	for _, m := range msgs {
		hm := htmlMessage{
			Author:    author(m),
			AvatarURL: m.AvatarURL,
			Bot:       m.Bot,
			Timestamp: m.Timestamp.UTC().Format(plainTimeLayout),
			Files:     m.Attachments,
		}
		if m.Content != "" {
			hm.Body = template.HTML(e.markdown.Render(m.Content))
		}
		for _, embed := range m.Embeds {
			he := htmlEmbed{
				Title:  embed.Title,
				Color:  fmt.Sprintf("#%06x", embed.Color&0xffffff),
				Fields: embed.Fields,
				Footer: embed.Footer,
			}
			if embed.Description != "" {
				he.Description = template.HTML(e.markdown.Render(embed.Description))
			}
			hm.Embeds = append(hm.Embeds, he)
		}
		page.Messages = append(page.Messages, hm)
	}

	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, page); err != nil {
		return "", fmt.Errorf("render transcript: %w", err)
	}
	return buf.String(), nil
}
