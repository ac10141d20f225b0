package telegram

import (
	"bytes"
	"fmt"
	"html"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/util"
)

const parseModeHTML = "HTML"

// RenderMarkdown converts Markdown to the HTML subset Telegram accepts
// (b, i, s, code, pre, a, blockquote). Headings become bold lines and
// raw HTML is escaped. On a parse failure the escaped source is returned.
func RenderMarkdown(md string) string {
	gm := goldmark.New(
		goldmark.WithExtensions(extension.Strikethrough),
		goldmark.WithRenderer(renderer.NewRenderer(
			renderer.WithNodeRenderers(util.Prioritized(&htmlRenderer{}, 1)),
		)),
	)

	var buf bytes.Buffer
	if err := gm.Convert([]byte(md), &buf); err != nil {
		return html.EscapeString(md)
	}
	return strings.TrimSpace(buf.String())
}

type htmlRenderer struct {
	ordinals []int
}

func (r *htmlRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(ast.KindDocument, passThrough)
	reg.Register(ast.KindHeading, wrap("<b>", "</b>\n"))
	reg.Register(ast.KindParagraph, wrap("", "\n"))
	reg.Register(ast.KindTextBlock, r.renderTextBlock)
	reg.Register(ast.KindBlockquote, wrap("<blockquote>", "</blockquote>\n"))
	reg.Register(ast.KindFencedCodeBlock, r.renderCode)
	reg.Register(ast.KindCodeBlock, r.renderCode)
	reg.Register(ast.KindList, r.renderList)
	reg.Register(ast.KindListItem, r.renderListItem)
	reg.Register(ast.KindThematicBreak, wrap("———\n", ""))
	reg.Register(ast.KindHTMLBlock, renderLinesEscaped)

	reg.Register(ast.KindText, r.renderText)
	reg.Register(ast.KindString, r.renderString)
	reg.Register(ast.KindCodeSpan, wrap("<code>", "</code>"))
	reg.Register(ast.KindEmphasis, r.renderEmphasis)
	reg.Register(ast.KindLink, r.renderLink)
	reg.Register(ast.KindAutoLink, r.renderAutoLink)
	reg.Register(ast.KindImage, r.renderImage)
	reg.Register(ast.KindRawHTML, r.renderRawHTML)
	reg.Register(extast.KindStrikethrough, wrap("<s>", "</s>"))
}

func passThrough(util.BufWriter, []byte, ast.Node, bool) (ast.WalkStatus, error) {
	return ast.WalkContinue, nil
}

// wrap renders open before the children and closeTag after them.
func wrap(open, closeTag string) renderer.NodeRendererFunc {
	return func(w util.BufWriter, _ []byte, _ ast.Node, entering bool) (ast.WalkStatus, error) {
		if entering {
			_, _ = w.WriteString(open)
		} else {
			_, _ = w.WriteString(closeTag)
		}
		return ast.WalkContinue, nil
	}
}

func renderLinesEscaped(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if entering {
		lines := node.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			_, _ = w.WriteString(html.EscapeString(string(seg.Value(source))))
		}
	}
	return ast.WalkSkipChildren, nil
}

func (r *htmlRenderer) renderTextBlock(w util.BufWriter, _ []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering && node.Parent() != nil && node.Parent().Kind() != ast.KindListItem {
		_, _ = w.WriteString("\n")
	}
	return ast.WalkContinue, nil
}

func (r *htmlRenderer) renderCode(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}
	if fenced, ok := node.(*ast.FencedCodeBlock); ok && len(fenced.Language(source)) > 0 {
		_, _ = fmt.Fprintf(w, `<pre><code class="language-%s">`, html.EscapeString(string(fenced.Language(source))))
	} else {
		_, _ = w.WriteString("<pre><code>")
	}
	lines := node.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		_, _ = w.WriteString(html.EscapeString(string(seg.Value(source))))
	}
	_, _ = w.WriteString("</code></pre>\n")
	return ast.WalkSkipChildren, nil
}

func (r *htmlRenderer) renderList(_ util.BufWriter, _ []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	n := node.(*ast.List)
	if entering {
		start := 0
		if n.IsOrdered() {
			start = n.Start
		}
		r.ordinals = append(r.ordinals, start)
	} else if len(r.ordinals) > 0 {
		r.ordinals = r.ordinals[:len(r.ordinals)-1]
	}
	return ast.WalkContinue, nil
}

func (r *htmlRenderer) renderListItem(w util.BufWriter, _ []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		_, _ = w.WriteString("\n")
		return ast.WalkContinue, nil
	}
	depth := len(r.ordinals) - 1
	if depth > 0 {
		_, _ = w.WriteString(strings.Repeat("  ", depth))
	}
	if list, ok := node.Parent().(*ast.List); ok && list.IsOrdered() && depth >= 0 {
		_, _ = fmt.Fprintf(w, "%d. ", r.ordinals[depth])
		r.ordinals[depth]++
	} else {
		_, _ = w.WriteString("• ")
	}
	return ast.WalkContinue, nil
}

func (r *htmlRenderer) renderText(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}
	n := node.(*ast.Text)
	_, _ = w.WriteString(html.EscapeString(string(n.Segment.Value(source))))
	if n.SoftLineBreak() || n.HardLineBreak() {
		_, _ = w.WriteString("\n")
	}
	return ast.WalkContinue, nil
}

func (r *htmlRenderer) renderString(w util.BufWriter, _ []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if entering {
		_, _ = w.WriteString(html.EscapeString(string(node.(*ast.String).Value)))
	}
	return ast.WalkContinue, nil
}

func (r *htmlRenderer) renderEmphasis(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if node.(*ast.Emphasis).Level >= 2 {
		return wrap("<b>", "</b>")(w, source, node, entering)
	}
	return wrap("<i>", "</i>")(w, source, node, entering)
}

func (r *htmlRenderer) renderLink(w util.BufWriter, _ []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if entering {
		_, _ = fmt.Fprintf(w, `<a href="%s">`, html.EscapeString(string(node.(*ast.Link).Destination)))
	} else {
		_, _ = w.WriteString("</a>")
	}
	return ast.WalkContinue, nil
}

func (r *htmlRenderer) renderAutoLink(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if entering {
		u := html.EscapeString(string(node.(*ast.AutoLink).URL(source)))
		_, _ = fmt.Fprintf(w, `<a href="%s">%s</a>`, u, u)
	}
	return ast.WalkSkipChildren, nil
}

// Inline images cannot be shown; they become links titled by the alt text.
func (r *htmlRenderer) renderImage(w util.BufWriter, _ []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if entering {
		_, _ = fmt.Fprintf(w, `<a href="%s">`, html.EscapeString(string(node.(*ast.Image).Destination)))
	} else {
		_, _ = w.WriteString("</a>")
	}
	return ast.WalkContinue, nil
}

func (r *htmlRenderer) renderRawHTML(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}
	segs := node.(*ast.RawHTML).Segments
	for i := 0; i < segs.Len(); i++ {
		seg := segs.At(i)
		_, _ = w.WriteString(html.EscapeString(string(seg.Value(source))))
	}
	return ast.WalkSkipChildren, nil
}
