// Package markdown renders locked final specs for the archive read path.
package markdown

import (
	"bytes"
	"strings"
	"sync"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
)

var (
	converter     goldmark.Markdown
	converterOnce sync.Once
)

// getConverter is shared across requests; goldmark keeps per-call state in
// the parser context, not in the Markdown value.
func getConverter() goldmark.Markdown {
	converterOnce.Do(func() {
		converter = goldmark.New(goldmark.WithExtensions(extension.GFM))
	})
	return converter
}

// HTML renders src as GitHub-flavoured markdown. Raw HTML in the source is
// dropped, so agent-authored specs cannot inject markup.
func HTML(src string) (string, error) {
	var buf bytes.Buffer
	if err := getConverter().Convert([]byte(src), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Outline lists the heading texts of src in document order.
func Outline(src string) []string {
	source := []byte(src)
	doc := getConverter().Parser().Parse(text.NewReader(source))
	out := []string{}
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		h, ok := n.(*ast.Heading)
		if !ok {
			return ast.WalkContinue, nil
		}
		var b strings.Builder
		collectText(h, source, &b)
		if title := strings.TrimSpace(b.String()); title != "" {
			out = append(out, title)
		}
		return ast.WalkSkipChildren, nil
	})
	return out
}

func collectText(n ast.Node, source []byte, b *strings.Builder) {
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if t, ok := c.(*ast.Text); ok {
			b.Write(t.Segment.Value(source))
			if t.SoftLineBreak() {
				b.WriteByte(' ')
			}
			continue
		}
		collectText(c, source, b)
	}
}
