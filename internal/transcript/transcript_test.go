package transcript

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/spec-kit/ticket-engine/internal/platform"
)

// fakeSource serves messages newest first in fixed pages.
type fakeSource struct {
	msgs  []platform.Message // newest first
	calls int
	fail  error
}

func (f *fakeSource) Messages(_ context.Context, _ string, limit int, beforeID string) ([]platform.Message, error) {
	f.calls++
	if f.fail != nil {
		return nil, f.fail
	}
	start := 0
	if beforeID != "" {
		for i, m := range f.msgs {
			if m.ID == beforeID {
				start = i + 1
				break
			}
		}
	}
	end := min(start+limit, len(f.msgs))
	return append([]platform.Message(nil), f.msgs[start:end]...), nil
}

func history(n int) []platform.Message {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	out := make([]platform.Message, 0, n)
	for i := n; i >= 1; i-- {
		out = append(out, platform.Message{
			ID:         fmt.Sprintf("m%d", i),
			AuthorName: "user",
			Content:    fmt.Sprintf("message %d", i),
			Timestamp:  base.Add(time.Duration(i) * time.Minute),
		})
	}
	return out
}

func TestExportPlainTextChronological(t *testing.T) {
	src := &fakeSource{msgs: history(3)}
	e := NewExporter(src, Options{}, nil)

	got, err := e.ExportPlainText(context.Background(), "chan")
	if err != nil {
		t.Fatalf("ExportPlainText: %v", err)
	}
	want := "[2024-03-01 12:01:00] user: message 1\n" +
		"[2024-03-01 12:02:00] user: message 2\n" +
		"[2024-03-01 12:03:00] user: message 3\n"
	if got != want {
		t.Fatalf("got:\n%s\nwant:\n%s", got, want)
	}
}

func TestExportPlainTextBounded(t *testing.T) {
	src := &fakeSource{msgs: history(250)}
	e := NewExporter(src, Options{PlainLimit: 100}, nil)

	got, err := e.ExportPlainText(context.Background(), "chan")
	if err != nil {
		t.Fatalf("ExportPlainText: %v", err)
	}
	if lines := strings.Count(got, "\n"); lines != 100 {
		t.Fatalf("lines = %d, want 100", lines)
	}
	if !strings.HasSuffix(got, "user: message 250\n") {
		t.Fatalf("expected the newest message last, got tail %q", got[len(got)-40:])
	}
	if src.calls != 1 {
		t.Fatalf("plain export must use a single fetch, got %d", src.calls)
	}
}

func TestRenderPlainInlinesEmbedsAndAttachments(t *testing.T) {
	msgs := []platform.Message{{
		AuthorID:  "42",
		Timestamp: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		Embeds: []platform.Embed{{
			Title:       "Ticket",
			Description: "line one\nline two",
			Fields:      []platform.EmbedField{{Name: "Type", Value: "support"}},
		}},
		Attachments: []platform.Attachment{{Filename: "log.txt", URL: "https://cdn.example/log.txt"}},
	}}

	got := RenderPlain(msgs)
	for _, want := range []string{
		"[2024-01-02 03:04:05] 42: [no text content]",
		"[embed] Ticket: line one line two",
		"Type: support",
		"[attachment] https://cdn.example/log.txt",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("missing %q in:\n%s", want, got)
		}
	}
}

func TestExportHTMLPaginatesToCap(t *testing.T) {
	src := &fakeSource{msgs: history(450)}
	e := NewExporter(src, Options{HTMLCap: 250}, nil)

	doc, err := e.ExportHTML(context.Background(), Document{Title: "support-user", ChannelID: "chan"})
	if err != nil {
		t.Fatalf("ExportHTML: %v", err)
	}
	if src.calls != 3 {
		t.Fatalf("calls = %d, want 3 pages for a cap of 250", src.calls)
	}
	if n := strings.Count(doc, `<div class="msg">`); n != 250 {
		t.Fatalf("rendered %d messages, want 250", n)
	}
	if !strings.Contains(doc, "message 450") || strings.Contains(doc, "message 200<") {
		t.Fatal("expected the newest 250 messages")
	}
	first := strings.Index(doc, "message 201")
	last := strings.Index(doc, "message 450")
	if first < 0 || last < first {
		t.Fatal("messages must be rendered oldest first")
	}
}

func TestExportHTMLStopsWhenExhausted(t *testing.T) {
	src := &fakeSource{msgs: history(120)}
	e := NewExporter(src, Options{}, nil)

	if _, err := e.ExportHTML(context.Background(), Document{ChannelID: "chan"}); err != nil {
		t.Fatalf("ExportHTML: %v", err)
	}
	if src.calls != 2 {
		t.Fatalf("calls = %d, want 2", src.calls)
	}
}

func TestExportHTMLPropagatesFirstPageFailure(t *testing.T) {
	src := &fakeSource{fail: errors.New("rate limited")}
	e := NewExporter(src, Options{}, nil)

	if _, err := e.ExportHTML(context.Background(), Document{ChannelID: "chan"}); err == nil {
		t.Fatal("expected an error")
	}
}

func TestRenderHTMLEscapesAndHighlights(t *testing.T) {
	e := NewExporter(&fakeSource{}, Options{}, nil)
	msgs := []platform.Message{
		{AuthorName: "<script>alert(1)</script>", Content: "**bold** <img src=x onerror=alert(1)>", Timestamp: time.Unix(0, 0)},
		{AuthorName: "dev", Content: "```go\nfunc main() {}\n```", Timestamp: time.Unix(60, 0)},
	}

	doc, err := e.RenderHTML(Document{ChannelID: "chan"}, msgs, time.Unix(120, 0))
	if err != nil {
		t.Fatalf("RenderHTML: %v", err)
	}
	if strings.Contains(doc, "<script>alert(1)</script>") {
		t.Fatal("author name must be escaped")
	}
	if strings.Contains(doc, "onerror=alert(1)>") {
		t.Fatal("raw html in message bodies must be dropped")
	}
	if !strings.Contains(doc, "<strong>bold</strong>") {
		t.Fatal("markdown must be rendered")
	}
	if !strings.Contains(doc, "<pre") || !strings.Contains(doc, "func") {
		t.Fatal("code block must be rendered")
	}
}

func TestLocalStorageSave(t *testing.T) {
	dir := t.TempDir()
	store := NewLocalStorage(dir, CompressionNone)

	ref, err := store.Save(context.Background(), "guild1", "chan1", []byte("<html></html>"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if filepath.Dir(ref) != filepath.Join(dir, "guild1") {
		t.Fatalf("ref %q not under the guild directory", ref)
	}
	if !strings.HasPrefix(filepath.Base(ref), "transcript-chan1-") || !strings.HasSuffix(ref, ".html") {
		t.Fatalf("unexpected file name %q", ref)
	}
	data, err := os.ReadFile(ref)
	if err != nil || string(data) != "<html></html>" {
		t.Fatalf("read back = %q, %v", data, err)
	}

	second, err := store.Save(context.Background(), "guild1", "chan1", []byte("x"))
	if err != nil || second == ref {
		t.Fatalf("file names must be unique, got %q and %q (%v)", ref, second, err)
	}
}

func TestLocalStorageGzip(t *testing.T) {
	store := NewLocalStorage(t.TempDir(), CompressionGzip)

	ref, err := store.Save(context.Background(), "guild1", "chan1", []byte("<html>hello</html>"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !strings.HasSuffix(ref, ".html.gz") {
		t.Fatalf("unexpected file name %q", ref)
	}
	raw, err := os.ReadFile(ref)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	zr, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("gzip reader: %v", err)
	}
	plain, err := io.ReadAll(zr)
	if err != nil || string(plain) != "<html>hello</html>" {
		t.Fatalf("decompressed = %q, %v", plain, err)
	}
}

func TestLocalStorageRejectsTraversal(t *testing.T) {
	store := NewLocalStorage(t.TempDir(), CompressionNone)
	for _, guild := range []string{"", "..", "a/b", `a\b`} {
		if _, err := store.Save(context.Background(), guild, "chan", []byte("x")); err == nil {
			t.Errorf("guild %q must be rejected", guild)
		}
	}
}
