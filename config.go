package rescache

import (
	"context"
	"strings"

	"github.com/unkn0wn-root/rescache/adapter"
	"github.com/unkn0wn-root/rescache/adapter/appcache"
	"github.com/unkn0wn-root/rescache/adapter/bolt"
	"github.com/unkn0wn-root/rescache/adapter/kv"
	"github.com/unkn0wn-root/rescache/adapter/nats"
	"github.com/unkn0wn-root/rescache/adapter/sqlite"
	pr "github.com/unkn0wn-root/rescache/provider"
	"github.com/unkn0wn-root/rescache/provider/bigcache"
	predis "github.com/unkn0wn-root/rescache/provider/redis"
	"github.com/unkn0wn-root/rescache/provider/ristretto"
)

const (
	defaultNamespace = "rescache"
	defaultMemoryMB  = 64
)

// DefaultAdapters is the probe order used when Config.Adapters is empty.
var DefaultAdapters = []string{"bolt", "sqlite", "redis", "nats", "bigcache", "ristretto", "appcache"}

// Config selects and parameterizes storage. It is pure data: two structurally
// equal configs share one Cache inside a Registry.
type Config struct {
	Namespace   string            `env:"NAMESPACE" envDefault:"rescache" yaml:"namespace" cbor:"namespace"`
	Adapters    []string          `env:"ADAPTERS" envSeparator:"," yaml:"adapters" cbor:"adapters"`
	BoltPath    string            `env:"BOLT_PATH" yaml:"bolt_path" cbor:"bolt_path"`
	SQLitePath  string            `env:"SQLITE_PATH" yaml:"sqlite_path" cbor:"sqlite_path"`
	RedisAddr   string            `env:"REDIS_ADDR" yaml:"redis_addr" cbor:"redis_addr"`
	NATSURL     string            `env:"NATS_URL" yaml:"nats_url" cbor:"nats_url"`
	NATSBucket  string            `env:"NATS_BUCKET" yaml:"nats_bucket" cbor:"nats_bucket"`
	MemoryMB    int               `env:"MEMORY_MB" envDefault:"64" yaml:"memory_mb" cbor:"memory_mb"`
	Codec       string            `env:"CODEC" envDefault:"json" yaml:"codec" cbor:"codec"`
	Generations string            `env:"GENERATIONS" envDefault:"local" yaml:"generations" cbor:"generations"`
	Disabled    bool              `env:"DISABLED" yaml:"disabled" cbor:"disabled"`
	Labels      map[string]string `env:"LABELS" yaml:"labels" cbor:"labels"`
}

// normalized fills defaults so that an empty field and its default compare equal.
func (cfg Config) normalized() Config {
	cfg.Namespace = coalesce(strings.TrimSpace(cfg.Namespace), defaultNamespace)
	if len(cfg.Adapters) == 0 {
		cfg.Adapters = DefaultAdapters
	}
	cfg.MemoryMB = coalesce(cfg.MemoryMB, defaultMemoryMB)
	cfg.Codec = coalesce(cfg.Codec, "json")
	cfg.Generations = coalesce(cfg.Generations, "local")
	cfg.NATSBucket = coalesce(cfg.NATSBucket, cfg.Namespace)
	if len(cfg.Labels) == 0 {
		cfg.Labels = nil
	}
	return cfg
}

// Candidates builds the probe list named by cfg.Adapters. Unknown names are
// returned separately so the caller can report them.
func (cfg Config) Candidates(m appcache.Manifest) (cands []adapter.Candidate, unknown []string) {
	cfg = cfg.normalized()
	kvc := kv.Config{Namespace: cfg.Namespace, Codec: cfg.Codec}

	for _, name := range cfg.Adapters {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "bolt":
			cands = append(cands, bolt.Candidate(bolt.Config{Path: cfg.BoltPath, Bucket: cfg.Namespace}))
		case "sqlite":
			cands = append(cands, sqlite.Candidate(sqlite.Config{Path: cfg.SQLitePath, Namespace: cfg.Namespace}))
		case "redis":
			cands = append(cands, redisCandidate(cfg.RedisAddr, kvc))
		case "nats":
			cands = append(cands, nats.Candidate(nats.Config{URL: cfg.NATSURL, Bucket: cfg.NATSBucket}))
		case "bigcache":
			mb := cfg.MemoryMB
			cands = append(cands, kv.Candidate("bigcache", nil, func() (pr.Provider, error) {
				return bigcache.New(context.Background(), bigcache.Config{HardMaxCacheSizeMB: mb})
			}, kvc))
		case "ristretto":
			mb := cfg.MemoryMB
			cands = append(cands, kv.Candidate("ristretto", nil, func() (pr.Provider, error) {
				return ristretto.New(ristretto.ConfigForMB(mb))
			}, kvc))
		case "appcache":
			cands = append(cands, appcache.Candidate(m))
		default:
			unknown = append(unknown, name)
		}
	}
	return cands, unknown
}

// redisCandidate is only selected when the server answers PING on Open.
func redisCandidate(addr string, kvc kv.Config) adapter.Candidate {
	var p *predis.Redis
	kvc.Probe = func(ctx context.Context) error { return p.Ping(ctx) }
	return kv.Candidate("redis",
		func() bool { return strings.TrimSpace(addr) != "" },
		func() (pr.Provider, error) {
			p = predis.Dial(addr)
			return p, nil
		},
		kvc,
	)
}

// coalesce returns def when v is the zero value of T, otherwise v.
func coalesce[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}
