// Package html post-processes rendered page documents: injecting head and
// body tags, rewriting links for the debug view, extracting head metadata
// and minifying the result.
package html

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Attr is one attribute of a Tag. Attribute order is preserved.
type Attr struct {
	Key string
	Val string
}

// Tag describes an element to inject into a document.
type Tag struct {
	Name  string
	Attrs []Attr
	// Children is raw text content, e.g. the code of a script.
	Children string
}

// ModulePreload returns a <link rel="modulepreload"> tag for url.
func ModulePreload(url string) Tag {
	return Tag{Name: "link", Attrs: []Attr{{"rel", "modulepreload"}, {"href", url}}}
}

// Stylesheet returns a <link rel="stylesheet"> tag for url.
func Stylesheet(url string) Tag {
	return Tag{Name: "link", Attrs: []Attr{{"rel", "stylesheet"}, {"href", url}}}
}

// ModuleScript returns an inline <script type="module"> tag.
func ModuleScript(code string) Tag {
	return Tag{Name: "script", Attrs: []Attr{{"type", "module"}}, Children: code}
}

// Node converts the tag into a detached html node.
func (t Tag) Node() *html.Node {
	n := &html.Node{
		Type:     html.ElementNode,
		Data:     t.Name,
		DataAtom: atom.Lookup([]byte(t.Name)),
	}
	for _, a := range t.Attrs {
		n.Attr = append(n.Attr, html.Attribute{Key: a.Key, Val: a.Val})
	}
	if t.Children != "" {
		n.AppendChild(&html.Node{Type: html.TextNode, Data: t.Children})
	}
	return n
}

// String renders the tag as HTML.
func (t Tag) String() string {
	var b strings.Builder
	if err := html.Render(&b, t.Node()); err != nil {
		return ""
	}
	return b.String()
}

// IsCSS reports whether url points at a stylesheet.
func IsCSS(url string) bool {
	path, _, _ := strings.Cut(url, "?")
	switch {
	case strings.HasSuffix(path, ".css"),
		strings.HasSuffix(path, ".scss"),
		strings.HasSuffix(path, ".sass"),
		strings.HasSuffix(path, ".less"):
		return true
	}
	return false
}
