package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/unkn0wn-root/rescache"
	"github.com/unkn0wn-root/rescache/config"
)

// manifest is the YAML resource list:
//
//	resources:
//	  - url: /app.css
//	  - url: /app.js
//	    group: 1
//	    version: "42"
//	    lifetime: 1h        # or "revalidate"
//	  - url: /hero.html
//	    target: main        # element id
type manifest struct {
	Resources []manifestEntry `yaml:"resources"`
}

type manifestEntry struct {
	URL      string `yaml:"url"`
	Type     string `yaml:"type"`
	Group    int    `yaml:"group"`
	Version  string `yaml:"version"`
	LastMod  string `yaml:"lastmod"`
	Lifetime string `yaml:"lifetime"`
	Target   string `yaml:"target"`
}

func loadManifest(path string) ([]rescache.Resource, error) {
	var m manifest
	if err := config.LoadFile(path, &m); err != nil {
		return nil, err
	}
	out := make([]rescache.Resource, 0, len(m.Resources))
	for i, e := range m.Resources {
		r, err := e.resource()
		if err != nil {
			return nil, fmt.Errorf("manifest entry %d: %w", i, err)
		}
		out = append(out, r)
	}
	return out, nil
}

func (e manifestEntry) resource() (rescache.Resource, error) {
	r := rescache.Resource{
		URL:     strings.TrimSpace(e.URL),
		Type:    rescache.Type(strings.ToLower(e.Type)),
		Group:   e.Group,
		Version: e.Version,
		LastMod: e.LastMod,
	}
	if r.URL == "" {
		return r, fmt.Errorf("url is required")
	}
	switch lt := strings.TrimSpace(e.Lifetime); lt {
	case "":
	case "revalidate":
		r.Lifetime = rescache.Revalidate
	default:
		d, err := time.ParseDuration(lt)
		if err != nil {
			return r, fmt.Errorf("lifetime: %w", err)
		}
		r.Lifetime = d
	}
	if e.Target != "" {
		r.Target = &rescache.Node{ID: e.Target}
	}
	return r, nil
}
