package document

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/unkn0wn-root/rescache"
)

func TestAppendCSSAndJS(t *testing.T) {
	ctx := context.Background()
	d := New()
	if err := d.AppendCSS(ctx, "/a.css", "body{color:red}", nil); err != nil {
		t.Fatal(err)
	}
	if err := d.AppendJS(ctx, "/a.js", "var x = 1 < 2;", nil); err != nil {
		t.Fatal(err)
	}
	out := d.String()
	for _, want := range []string{
		`<head><style data-url="/a.css">body{color:red}</style></head>`,
		`<body><script data-url="/a.js">var x = 1 < 2;</script></body>`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in %s", want, out)
		}
	}
}

func TestAppendImgSetsSrcOnImgTarget(t *testing.T) {
	ctx := context.Background()
	d, err := Parse(strings.NewReader(`<html><body><img id="logo"><div id="box"></div></body></html>`))
	if err != nil {
		t.Fatal(err)
	}
	if err := d.AppendImg(ctx, "/logo.png", "PNG", &rescache.Node{ID: "logo"}); err != nil {
		t.Fatal(err)
	}
	if err := d.AppendImg(ctx, "/x.gif", "data:image/gif;base64,R0lG", &rescache.Node{ID: "box"}); err != nil {
		t.Fatal(err)
	}
	out := d.String()
	if !strings.Contains(out, `<img id="logo" src="data:image/png;base64,UE5H" data-url="/logo.png"/>`) {
		t.Fatalf("logo src not set: %s", out)
	}
	if !strings.Contains(out, `<div id="box"><img data-url="/x.gif" src="data:image/gif;base64,R0lG"/></div>`) {
		t.Fatalf("img not appended to box: %s", out)
	}
}

func TestAppendHTMLIntoTarget(t *testing.T) {
	ctx := context.Background()
	d, err := Parse(strings.NewReader(`<body><main id="main"></main></body>`))
	if err != nil {
		t.Fatal(err)
	}
	if err := d.AppendHTML(ctx, "/frag.html", "<p>hi</p><p>there</p>", &rescache.Node{Elem: d.ByID("main")}); err != nil {
		t.Fatal(err)
	}
	if got := d.String(); !strings.Contains(got, `<main id="main"><p>hi</p><p>there</p></main>`) {
		t.Fatalf("fragment not placed: %s", got)
	}
}

func TestMissingTarget(t *testing.T) {
	err := New().AppendJS(context.Background(), "/a.js", "", &rescache.Node{ID: "nope"})
	if !errors.Is(err, ErrNodeNotFound) {
		t.Fatalf("err=%v want ErrNodeNotFound", err)
	}
}
