// ABOUTME: Plain-text extraction from markdown and HTML document sources
// ABOUTME: Feeds the retrieval index ingestion pipeline

package extract

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	gmtext "github.com/yuin/goldmark/text"
	"golang.org/x/net/html"
)

// Text extracts plain text from a document, choosing the extractor by
// file extension. Unknown extensions pass through unchanged.
func Text(name string, data []byte) (string, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".md", ".markdown":
		return Markdown(data)
	case ".html", ".htm":
		return HTML(bytes.NewReader(data))
	default:
		return string(data), nil
	}
}

// Markdown extracts the text content of a markdown document, dropping
// formatting but keeping block boundaries as newlines.
func Markdown(src []byte) (string, error) {
	doc := goldmark.New().Parser().Parse(gmtext.NewReader(src))

	var buf bytes.Buffer
	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Text:
			buf.Write(node.Segment.Value(src))
			if node.SoftLineBreak() || node.HardLineBreak() {
				buf.WriteByte('\n')
			}
		case *ast.AutoLink:
			buf.Write(node.URL(src))
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				buf.Write(seg.Value(src))
			}
		default:
			// Separate blocks so headings and paragraphs don't run together.
			if n.Type() == ast.TypeBlock && buf.Len() > 0 && !bytes.HasSuffix(buf.Bytes(), []byte("\n")) {
				buf.WriteByte('\n')
			}
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return "", fmt.Errorf("walking markdown tree: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// HTML extracts the visible text of an HTML document, skipping script,
// style, and head content.
func HTML(r io.Reader) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", fmt.Errorf("parsing html: %w", err)
	}

	var buf bytes.Buffer
	var visit func(n *html.Node)
	visit = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "head", "noscript":
				return
			}
		}
		if n.Type == html.TextNode {
			if text := strings.TrimSpace(n.Data); text != "" {
				if buf.Len() > 0 {
					buf.WriteByte('\n')
				}
				buf.WriteString(text)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(doc)
	return buf.String(), nil
}
