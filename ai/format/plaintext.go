// Package format renders LLM reply markdown into plain text for the
// child-facing client, which displays raw text only.
package format

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

var md = goldmark.New()

// PlainText strips markdown structure from a reply, keeping the visible text.
// Block boundaries become single newlines. Input that is already plain text
// passes through unchanged apart from whitespace normalization.
func PlainText(input string) string {
	src := []byte(input)
	doc := md.Parser().Parse(text.NewReader(src))

	var b strings.Builder
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			// Close each block-level node with a newline.
			if _, isBlock := n.(*ast.Document); !isBlock && n.Type() == ast.TypeBlock {
				b.WriteByte('\n')
			}
			return ast.WalkContinue, nil
		}

		switch node := n.(type) {
		case *ast.Text:
			b.Write(node.Segment.Value(src))
			if node.SoftLineBreak() || node.HardLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.CodeSpan:
			// Children are Text nodes, handled above.
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				b.Write(seg.Value(src))
			}
			return ast.WalkSkipChildren, nil
		case *ast.AutoLink:
			b.Write(node.URL(src))
		}
		return ast.WalkContinue, nil
	})

	// Collapse runs of blank lines left by nested blocks.
	out := strings.TrimSpace(b.String())
	for strings.Contains(out, "\n\n") {
		out = strings.ReplaceAll(out, "\n\n", "\n")
	}
	return out
}
