// Package page provides read-only snapshots of web documents for the
// recognition pipeline. A snapshot is created per analysis pass and discarded
// afterwards; nothing in this package mutates the parsed tree.
package page

import (
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// Snapshot is a read-only view of a document at one point in time.
type Snapshot struct {
	URL      string
	Hostname string
	Title    string
	Root     *html.Node
}

// Parse builds a snapshot from raw HTML and the URL it was fetched from.
func Parse(rawURL, source string) (*Snapshot, error) {
	root, err := html.Parse(strings.NewReader(source))
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	snap := &Snapshot{
		URL:  rawURL,
		Root: root,
	}
	if u, err := url.Parse(rawURL); err == nil {
		snap.Hostname = u.Hostname()
	}
	snap.Title = findTitle(root)
	return snap, nil
}

// Find returns all nodes matching the selector, in document order.
func (s *Snapshot) Find(selector string) []*html.Node {
	return FindAll(s.Root, selector)
}

// First returns the first node matching the selector, or nil.
func (s *Snapshot) First(selector string) *html.Node {
	nodes := FindAll(s.Root, selector)
	if len(nodes) == 0 {
		return nil
	}
	return nodes[0]
}

// Body returns the document body node, or the root when no body exists.
func (s *Snapshot) Body() *html.Node {
	if body := s.First("body"); body != nil {
		return body
	}
	return s.Root
}

func findTitle(root *html.Node) string {
	var title string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if title != "" {
			return
		}
		if n.Type == html.ElementNode && n.Data == "title" && n.FirstChild != nil {
			title = strings.TrimSpace(n.FirstChild.Data)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return title
}

// Attr returns the value of the named attribute, or "".
func Attr(n *html.Node, name string) string {
	if n == nil {
		return ""
	}
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, name) {
			return a.Val
		}
	}
	return ""
}

// HasClass reports whether the node carries the given class token.
func HasClass(n *html.Node, class string) bool {
	for _, token := range strings.Fields(Attr(n, "class")) {
		if strings.EqualFold(token, class) {
			return true
		}
	}
	return false
}

// Text returns the node's text content with whitespace collapsed.
// Script and style subtrees are skipped.
func Text(n *html.Node) string {
	if n == nil {
		return ""
	}
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.ElementNode {
			switch node.Data {
			case "script", "style", "noscript", "template":
				return
			}
		}
		if node.Type == html.TextNode {
			sb.WriteString(node.Data)
			sb.WriteString(" ")
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(sb.String()), " ")
}

// RawText returns text content preserving the original whitespace.
// Used for code blocks where indentation matters.
func RawText(n *html.Node) string {
	if n == nil {
		return ""
	}
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.TextNode {
			sb.WriteString(node.Data)
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

// chrome elements excluded from visible-text extraction.
var chromeTags = map[string]bool{
	"script": true, "style": true, "noscript": true, "template": true,
	"nav": true, "header": true, "footer": true, "aside": true,
}

// VisibleText approximates the main readable text of the document: body text
// minus navigation chrome, truncated to limit runes. limit <= 0 means no cap.
func (s *Snapshot) VisibleText(limit int) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.ElementNode && chromeTags[node.Data] {
			return
		}
		if node.Type == html.TextNode {
			sb.WriteString(node.Data)
			sb.WriteString(" ")
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(s.Body())

	text := strings.Join(strings.Fields(sb.String()), " ")
	if limit > 0 {
		runes := []rune(text)
		if len(runes) > limit {
			text = string(runes[:limit])
		}
	}
	return text
}

// Walk visits every node under root in document order. The visitor returns
// false to prune the subtree.
func Walk(root *html.Node, visit func(*html.Node) bool) {
	if root == nil {
		return
	}
	if !visit(root) {
		return
	}
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		Walk(c, visit)
	}
}
