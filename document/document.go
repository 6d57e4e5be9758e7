// Package document is an Injector that builds an HTML document with
// golang.org/x/net/html. Each replayed resource becomes an element tagged
// with data-url so a rendered page shows where its content came from.
package document

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/url"
	"path"
	"strings"
	"sync"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/unkn0wn-root/rescache"
)

// ErrNodeNotFound is returned when a target id does not exist in the document.
var ErrNodeNotFound = errors.New("document: target node not found")

const skeleton = "<!DOCTYPE html><html><head></head><body></body></html>"

// Document is safe for concurrent use.
type Document struct {
	mu   sync.Mutex
	root *html.Node
	head *html.Node
	body *html.Node
}

var _ rescache.Injector = (*Document)(nil)

// New returns an empty document.
func New() *Document {
	d, err := Parse(strings.NewReader(skeleton))
	if err != nil {
		panic(err)
	}
	return d
}

// Parse reads a page. The parser always synthesizes head and body.
func Parse(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("document: parse: %w", err)
	}
	d := &Document{root: root}
	d.head = find(root, func(n *html.Node) bool { return n.DataAtom == atom.Head })
	d.body = find(root, func(n *html.Node) bool { return n.DataAtom == atom.Body })
	if d.head == nil || d.body == nil {
		return nil, fmt.Errorf("document: missing head or body")
	}
	return d, nil
}

func (d *Document) AppendCSS(_ context.Context, u, data string, _ *rescache.Node) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.head.AppendChild(element(atom.Style, u, text(data)))
	return nil
}

func (d *Document) AppendJS(_ context.Context, u, data string, node *rescache.Node) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	parent, err := d.target(node)
	if err != nil {
		return err
	}
	parent.AppendChild(element(atom.Script, u, text(data)))
	return nil
}

// AppendImg sets src on the target when it is an <img>; otherwise it appends
// a new <img> to the target.
func (d *Document) AppendImg(_ context.Context, u, data string, node *rescache.Node) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	parent, err := d.target(node)
	if err != nil {
		return err
	}
	src := dataURI(u, data)
	if parent.DataAtom == atom.Img {
		setAttr(parent, "src", src)
		setAttr(parent, "data-url", u)
		return nil
	}
	img := element(atom.Img, u)
	setAttr(img, "src", src)
	parent.AppendChild(img)
	return nil
}

// AppendHTML parses data as a fragment in the context of the target and
// appends the resulting nodes to it.
func (d *Document) AppendHTML(_ context.Context, u, data string, node *rescache.Node) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	parent, err := d.target(node)
	if err != nil {
		return err
	}
	nodes, err := html.ParseFragment(strings.NewReader(data), parent)
	if err != nil {
		return fmt.Errorf("document: parse fragment %s: %w", u, err)
	}
	for _, n := range nodes {
		parent.AppendChild(n)
	}
	return nil
}

// ByID returns the element with the given id, or nil.
func (d *Document) ByID(id string) *html.Node {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.byID(id)
}

func (d *Document) Render(w io.Writer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return html.Render(w, d.root)
}

func (d *Document) String() string {
	var b bytes.Buffer
	if err := d.Render(&b); err != nil {
		return ""
	}
	return b.String()
}

func (d *Document) target(node *rescache.Node) (*html.Node, error) {
	switch {
	case node == nil:
		return d.body, nil
	case node.Elem != nil:
		return node.Elem, nil
	case node.ID != "":
		if n := d.byID(node.ID); n != nil {
			return n, nil
		}
		return nil, fmt.Errorf("%w: #%s", ErrNodeNotFound, node.ID)
	}
	return d.body, nil
}

func (d *Document) byID(id string) *html.Node {
	return find(d.root, func(n *html.Node) bool {
		return n.Type == html.ElementNode && attr(n, "id") == id
	})
}

func find(n *html.Node, match func(*html.Node) bool) *html.Node {
	if match(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if m := find(c, match); m != nil {
			return m
		}
	}
	return nil
}

func element(a atom.Atom, u string, children ...*html.Node) *html.Node {
	n := &html.Node{Type: html.ElementNode, DataAtom: a, Data: a.String()}
	setAttr(n, "data-url", u)
	for _, c := range children {
		n.AppendChild(c)
	}
	return n
}

func text(s string) *html.Node { return &html.Node{Type: html.TextNode, Data: s} }

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func setAttr(n *html.Node, key, val string) {
	for i := range n.Attr {
		if n.Attr[i].Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

// dataURI passes data URIs through and wraps anything else as base64 with a
// media type guessed from the URL's extension.
func dataURI(u, data string) string {
	if strings.HasPrefix(data, "data:") {
		return data
	}
	p := u
	if pu, err := url.Parse(u); err == nil {
		p = pu.Path
	}
	mt := mime.TypeByExtension(path.Ext(p))
	if mt == "" {
		mt = "application/octet-stream"
	}
	return "data:" + mt + ";base64," + base64.StdEncoding.EncodeToString([]byte(data))
}
