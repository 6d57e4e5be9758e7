// Command rescache loads the resources listed in a YAML manifest into an HTML
// page, replaying stored copies and fetching the rest over HTTP.
//
//	rescache -manifest resources.yaml -base https://example.com -out page.html
//	rescache -manifest resources.yaml -remove
//	rescache -list
//
// Storage is configured from RESCACHE_* environment variables, optionally
// overridden by -config.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/unkn0wn-root/rescache"
	"github.com/unkn0wn-root/rescache/config"
	"github.com/unkn0wn-root/rescache/document"
	"github.com/unkn0wn-root/rescache/fetch"
	asynchook "github.com/unkn0wn-root/rescache/hooks/async"
	"github.com/unkn0wn-root/rescache/hooks/prom"
	zlog "github.com/unkn0wn-root/rescache/log/zap"
	"github.com/unkn0wn-root/rescache/sloghooks"
)

const userAgent = "rescache/0.1"

type cliConfig struct {
	Manifest   string
	ConfigPath string
	Base       string
	Page       string
	Out        string
	Remove     bool
	List       bool
	Debug      bool
	Metrics    bool
	LogEvents  bool
	Timeout    time.Duration
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "rescache: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(args []string) (cliConfig, error) {
	var c cliConfig
	fs := flag.NewFlagSet("rescache", flag.ContinueOnError)
	fs.StringVar(&c.Manifest, "manifest", "", "YAML resource manifest (required)")
	fs.StringVar(&c.ConfigPath, "config", "", "YAML storage config; overrides RESCACHE_* env")
	fs.StringVar(&c.Base, "base", "", "base URL for relative resource URLs")
	fs.StringVar(&c.Page, "page", "", "HTML page to inject into; empty page when unset")
	fs.StringVar(&c.Out, "out", "", "write the rendered page here instead of stdout")
	fs.BoolVar(&c.Remove, "remove", false, "remove the listed resources from storage")
	fs.BoolVar(&c.List, "list", false, "print the IDs of stored records and exit")
	fs.BoolVar(&c.Debug, "debug", false, "debug logging")
	fs.BoolVar(&c.Metrics, "metrics", false, "print cache counters to stderr on exit")
	fs.BoolVar(&c.LogEvents, "log-events", false, "log cache events as JSON to stderr")
	fs.DurationVar(&c.Timeout, "timeout", 2*time.Minute, "overall deadline")
	if err := fs.Parse(args); err != nil {
		return c, err
	}
	if c.Manifest == "" && !c.List {
		return c, errors.New("-manifest is required")
	}
	return c, nil
}

func run() error {
	cli, err := parseFlags(os.Args[1:])
	if err != nil {
		return err
	}

	zl, err := newZap(cli.Debug)
	if err != nil {
		return err
	}
	defer func() { _ = zl.Sync() }()
	logger := zlog.New(zl)

	var cfg rescache.Config
	if err := config.ParseEnv(&cfg); err != nil {
		return err
	}
	if cli.ConfigPath != "" {
		if err := config.LoadFile(cli.ConfigPath, &cfg); err != nil {
			return err
		}
	}

	var resources []rescache.Resource
	if !cli.List {
		if resources, err = loadManifest(cli.Manifest); err != nil {
			return err
		}
	}

	metrics := prometheus.NewRegistry()
	var events io.Writer
	if cli.LogEvents {
		events = os.Stderr
	}
	raw, err := newHooks(metrics, events)
	if err != nil {
		return err
	}
	hooks := asynchook.New(raw, 1, 256)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, cli.Timeout)
	defer cancel()

	switch {
	case cli.List:
		err = list(ctx, cfg, logger, hooks, os.Stdout)
	case cli.Remove:
		err = remove(ctx, cfg, resources, logger, hooks)
	default:
		err = load(ctx, cli, cfg, resources, logger, hooks)
	}
	hooks.Close()
	if cli.Metrics {
		printMetrics(os.Stderr, metrics)
	}
	return err
}

// newHooks reports cache events to metrics and, when events is set, as
// sampled JSON log records.
func newHooks(metrics prometheus.Registerer, events io.Writer) (rescache.Hooks, error) {
	ph, err := prom.New(metrics)
	if err != nil {
		return nil, err
	}
	if events == nil {
		return ph, nil
	}
	sl := slog.New(slog.NewJSONHandler(events, nil))
	return rescache.MultiHooks{ph, sloghooks.New(sl, sloghooks.Options{StaleEvery: 10, ReplayedEvery: 10})}, nil
}

func load(ctx context.Context, cli cliConfig, cfg rescache.Config, resources []rescache.Resource, logger rescache.Logger, hooks rescache.Hooks) error {
	doc, err := openPage(cli.Page)
	if err != nil {
		return err
	}
	f, err := fetch.New(fetch.Options{BaseURL: cli.Base, UserAgent: userAgent, Logger: logger})
	if err != nil {
		return err
	}

	reg := rescache.NewRegistry(rescache.RegistryOptions{
		Fetcher:  f,
		Injector: doc,
		Logger:   logger,
		Hooks:    hooks,
	})
	defer func() { _ = reg.Reset(context.Background()) }()

	lerr := reg.Load(ctx, resources, cfg)
	var le *rescache.LoadError
	switch {
	case errors.As(lerr, &le):
		// partial pages are still written
		logger.Warn("some resources were not loaded", rescache.Fields{"failed": strings.Join(le.Failed, ",")})
	case lerr != nil:
		return lerr
	}

	w := io.Writer(os.Stdout)
	if cli.Out != "" {
		out, err := os.Create(cli.Out)
		if err != nil {
			return err
		}
		defer out.Close()
		w = out
	}
	if err := doc.Render(w); err != nil {
		return fmt.Errorf("render: %w", err)
	}
	return lerr
}

// openCache builds a Cache for maintenance commands that never fetch.
func openCache(ctx context.Context, cfg rescache.Config, logger rescache.Logger, hooks rescache.Hooks) (rescache.Cache, error) {
	c, err := rescache.New(ctx, rescache.Options{
		Config:   cfg,
		Fetcher:  rescache.FetchFunc(func(context.Context, string) (string, bool) { return "", false }),
		Injector: document.New(),
		Logger:   logger,
		Hooks:    hooks,
	})
	if err != nil {
		return nil, err
	}
	if !c.Storage().Enabled() {
		_ = c.Close(ctx)
		return nil, errors.New("no storage adapter available")
	}
	return c, nil
}

func remove(ctx context.Context, cfg rescache.Config, resources []rescache.Resource, logger rescache.Logger, hooks rescache.Hooks) error {
	c, err := openCache(ctx, cfg, logger, hooks)
	if err != nil {
		return err
	}
	defer func() { _ = c.Close(context.Background()) }()

	if err := c.Remove(ctx, resources); err != nil {
		return err
	}
	logger.Info("resources removed", rescache.Fields{"count": len(resources), "adapter": c.Storage().AdapterName()})
	return nil
}

func list(ctx context.Context, cfg rescache.Config, logger rescache.Logger, hooks rescache.Hooks, w io.Writer) error {
	c, err := openCache(ctx, cfg, logger, hooks)
	if err != nil {
		return err
	}
	defer func() { _ = c.Close(context.Background()) }()
	return listKeys(ctx, c.Storage(), w)
}

// keyLister is implemented by adapters that can enumerate their records.
type keyLister interface {
	Keys(ctx context.Context) ([]string, error)
}

func listKeys(ctx context.Context, s *rescache.Storage, w io.Writer) error {
	l, ok := s.Adapter().(keyLister)
	if !ok {
		return fmt.Errorf("adapter %q cannot list records", s.AdapterName())
	}
	ids, err := l.Keys(ctx)
	if err != nil {
		return err
	}
	sort.Strings(ids)
	for _, id := range ids {
		fmt.Fprintln(w, id)
	}
	return nil
}

func openPage(path string) (*document.Document, error) {
	if path == "" {
		return document.New(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return document.Parse(f)
}

func newZap(debug bool) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	zc.OutputPaths = []string{"stderr"}
	if debug {
		zc.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return zc.Build()
}

func printMetrics(w io.Writer, g prometheus.Gatherer) {
	mfs, err := g.Gather()
	if err != nil {
		fmt.Fprintf(w, "metrics: %v\n", err)
		return
	}
	var lines []string
	for _, mf := range mfs {
		for _, m := range mf.GetMetric() {
			var labels []string
			for _, lp := range m.GetLabel() {
				labels = append(labels, lp.GetName()+"="+lp.GetValue())
			}
			name := mf.GetName()
			if len(labels) > 0 {
				name += "{" + strings.Join(labels, ",") + "}"
			}
			switch {
			case m.GetCounter() != nil:
				lines = append(lines, fmt.Sprintf("%s %g", name, m.GetCounter().GetValue()))
			case m.GetHistogram() != nil:
				lines = append(lines, fmt.Sprintf("%s_count %d", name, m.GetHistogram().GetSampleCount()))
			}
		}
	}
	sort.Strings(lines)
	for _, l := range lines {
		fmt.Fprintln(w, l)
	}
}
