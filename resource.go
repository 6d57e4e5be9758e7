package rescache

import (
	"context"
	"net/url"
	"path"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/unkn0wn-root/rescache/adapter"
)

type (
	Record  = adapter.Record
	Content = adapter.Content
)

// Type names how a resource is replayed into the document.
type Type string

const (
	CSS  Type = "css"
	JS   Type = "js"
	Img  Type = "img"
	HTML Type = "html"
)

// Revalidate as a Resource lifetime forces a fetch on every load.
const Revalidate time.Duration = -1

var extTypes = map[string]Type{
	".css":  CSS,
	".js":   JS,
	".mjs":  JS,
	".png":  Img,
	".jpg":  Img,
	".jpeg": Img,
	".gif":  Img,
	".webp": Img,
	".svg":  Img,
	".ico":  Img,
	".bmp":  Img,
	".avif": Img,
	".html": HTML,
	".htm":  HTML,
}

// InferType maps the extension of u's path to a Type. Query and fragment are
// ignored. It returns "" when the extension is unknown.
func InferType(u string) Type {
	p := u
	if pu, err := url.Parse(u); err == nil {
		p = pu.Path
	}
	return extTypes[strings.ToLower(path.Ext(p))]
}

func (t Type) valid() bool {
	switch t {
	case CSS, JS, Img, HTML:
		return true
	}
	return false
}

// Resource describes one thing to load.
type Resource struct {
	URL string
	// Type is inferred from URL when empty.
	Type Type
	// Group orders loading: every resource of a lower group settles before
	// any resource of a higher group starts.
	Group   int
	Version string
	LastMod string
	// Lifetime overrides the stored record's lifetime when non-zero.
	// Negative values (see Revalidate) mean always refetch.
	Lifetime time.Duration
	// Target is where HTML and image content is placed. Optional.
	Target *Node
	// Loaded receives the content after it was replayed.
	Loaded func(data string)
}

// lifetimeMS is the persisted form: milliseconds, -1 for revalidate, 0 unset.
func (r Resource) lifetimeMS() int64 {
	switch {
	case r.Lifetime < 0:
		return -1
	case r.Lifetime == 0:
		return 0
	}
	if ms := r.Lifetime.Milliseconds(); ms > 0 {
		return ms
	}
	return 1
}

// Node addresses a place in the document, by id or by element.
type Node struct {
	ID   string
	Elem *html.Node
}

// Fetcher retrieves raw resource content. ok=false means the fetch failed;
// the cache does not retry.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (data string, ok bool)
}

// FetchFunc adapts a function to Fetcher.
type FetchFunc func(ctx context.Context, url string) (string, bool)

func (f FetchFunc) Fetch(ctx context.Context, url string) (string, bool) { return f(ctx, url) }

// Injector places replayed content into the document. node may be nil.
type Injector interface {
	AppendCSS(ctx context.Context, url, data string, node *Node) error
	AppendJS(ctx context.Context, url, data string, node *Node) error
	AppendImg(ctx context.Context, url, data string, node *Node) error
	AppendHTML(ctx context.Context, url, data string, node *Node) error
}
