package transcript

import (
	"bytes"
	"html"

	"github.com/alecthomas/chroma/v2/quick"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/util"
)

const codeStyle = "monokai"

// Markdown renders chat message bodies to HTML. Raw HTML in the input is
// omitted; fenced code blocks are highlighted with inline styles so the
// resulting document needs no external stylesheet.
type Markdown struct {
	md goldmark.Markdown
}

// NewMarkdown constructs a GFM renderer with code highlighting.
func NewMarkdown() *Markdown {
	return &Markdown{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(
				renderer.WithNodeRenderers(util.Prioritized(&codeBlockRenderer{}, 200)),
			),
		),
	}
}

// Render converts body to an HTML fragment. On a conversion failure the
// escaped source is returned.
func (m *Markdown) Render(body string) string {
	var buf bytes.Buffer
	if err := m.md.Convert([]byte(body), &buf); err != nil {
		return "<p>" + html.EscapeString(body) + "</p>"
	}
	return buf.String()
}

type codeBlockRenderer struct{}

func (r *codeBlockRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(ast.KindFencedCodeBlock, r.renderFencedCode)
	reg.Register(ast.KindCodeBlock, r.renderCode)
}

func (r *codeBlockRenderer) renderFencedCode(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}
	block := node.(*ast.FencedCodeBlock)
	lang := string(block.Language(source))
	return ast.WalkSkipChildren, highlight(w, linesOf(block, source), lang)
}

func (r *codeBlockRenderer) renderCode(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}
	return ast.WalkSkipChildren, highlight(w, linesOf(node, source), "")
}

func linesOf(node ast.Node, source []byte) string {
	var code bytes.Buffer
	lines := node.Lines()
	for i := 0; i < lines.Len(); i++ {
		segment := lines.At(i)
		code.Write(segment.Value(source))
	}
	return code.String()
}

func highlight(w util.BufWriter, code, lang string) error {
	if lang == "" {
		lang = "plaintext"
	}
	var out bytes.Buffer
	if err := quick.Highlight(&out, code, lang, "html", codeStyle); err != nil {
		_, werr := w.WriteString("<pre><code>" + html.EscapeString(code) + "</code></pre>\n")
		return werr
	}
	_, err := w.Write(out.Bytes())
	return err
}
