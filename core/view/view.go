// Package view defines the render contract between the router and
// pages. Pages produce a Node tree; what a host does with the tree
// (DOM, terminal, snapshot) is its own business.
package view

import (
	"context"
	"html"
	"sort"
	"strings"
)

// Node is one element of a rendered page.
type Node struct {
	Tag      string
	Text     string
	Attrs    map[string]string
	Children []Node
}

// El builds an element node.
func El(tag string, attrs map[string]string, children ...Node) Node {
	return Node{Tag: tag, Attrs: attrs, Children: children}
}

// Text builds a text node.
func Text(s string) Node {
	return Node{Text: s}
}

// WithClass returns a copy of n with the given class attribute.
func (n Node) WithClass(class string) Node {
	attrs := make(map[string]string, len(n.Attrs)+1)
	for k, v := range n.Attrs {
		attrs[k] = v
	}
	attrs["class"] = class
	n.Attrs = attrs
	return n
}

// HTML serializes the tree; text is escaped. Mainly for snapshots and
// debugging.
func (n Node) HTML() string {
	var b strings.Builder
	n.write(&b)
	return b.String()
}

func (n Node) write(b *strings.Builder) {
	if n.Tag == "" {
		b.WriteString(html.EscapeString(n.Text))
		return
	}
	b.WriteString("<")
	b.WriteString(n.Tag)
	keys := make([]string, 0, len(n.Attrs))
	for k := range n.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString(" ")
		b.WriteString(k)
		b.WriteString(`="`)
		b.WriteString(html.EscapeString(n.Attrs[k]))
		b.WriteString(`"`)
	}
	b.WriteString(">")
	for _, c := range n.Children {
		c.write(b)
	}
	b.WriteString("</")
	b.WriteString(n.Tag)
	b.WriteString(">")
}

// Page renders a route. Params carry pattern captures, query the
// parsed query string.
type Page interface {
	Title() string
	Render(ctx context.Context, params, query map[string]string) (Node, error)
}

// Initer is implemented by pages that need setup before first render.
type Initer interface {
	Init(ctx context.Context) error
}

// Func adapts a function to the Page interface.
type Func struct {
	PageTitle string
	RenderFn  func(ctx context.Context, params, query map[string]string) (Node, error)
}

func (f Func) Title() string { return f.PageTitle }

func (f Func) Render(ctx context.Context, params, query map[string]string) (Node, error) {
	return f.RenderFn(ctx, params, query)
}
