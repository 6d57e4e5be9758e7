package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/a.js":
			if r.Header.Get("User-Agent") != "rescache-test" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			_, _ = w.Write([]byte("console.log(1)"))
		case "/big.css":
			_, _ = w.Write([]byte(strings.Repeat("x", 64)))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	f, err := New(Options{Client: srv.Client(), BaseURL: srv.URL, MaxBytes: 32, UserAgent: "rescache-test"})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	t.Run("relative url resolved against base", func(t *testing.T) {
		data, ok := f.Fetch(ctx, "/a.js")
		if !ok || data != "console.log(1)" {
			t.Fatalf("got %q ok=%v", data, ok)
		}
	})
	t.Run("absolute url", func(t *testing.T) {
		if _, ok := f.Fetch(ctx, srv.URL+"/a.js"); !ok {
			t.Fatal("absolute url failed")
		}
	})
	t.Run("404 fails", func(t *testing.T) {
		if _, ok := f.Fetch(ctx, "/missing.js"); ok {
			t.Fatal("404 reported as success")
		}
	})
	t.Run("oversized body fails", func(t *testing.T) {
		if _, ok := f.Fetch(ctx, "/big.css"); ok {
			t.Fatal("oversized body accepted")
		}
	})
	t.Run("canceled context fails", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		if _, ok := f.Fetch(cctx, "/a.js"); ok {
			t.Fatal("canceled fetch succeeded")
		}
	})
}

func TestRelativeURLWithoutBaseFails(t *testing.T) {
	f, err := New(Options{})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := f.Fetch(context.Background(), "/a.js"); ok {
		t.Fatal("relative url without base succeeded")
	}
}
