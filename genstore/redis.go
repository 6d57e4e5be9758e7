package genstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis shares generations between processes and survives restarts.
// With a TTL, idle counters expire and read as 0 again.
type Redis struct {
	rdb  redis.UniversalClient
	ns   string
	ttl  time.Duration
	owns bool
}

var _ Store = (*Redis)(nil)

// NewRedis wraps client; Close leaves the client open.
func NewRedis(client redis.UniversalClient, namespace string, ttl time.Duration) *Redis {
	return &Redis{rdb: client, ns: namespace, ttl: ttl}
}

// DialRedis connects to addr and owns the connection.
func DialRedis(addr, namespace string, ttl time.Duration) *Redis {
	r := NewRedis(redis.NewClient(&redis.Options{Addr: addr}), namespace, ttl)
	r.owns = true
	return r
}

func (s *Redis) key(url string) string { return "gen:" + s.ns + ":" + url }

func (s *Redis) Snapshot(ctx context.Context, url string) (uint64, error) {
	res, err := s.rdb.Get(ctx, s.key(url)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return parseGen(url, res)
}

func (s *Redis) SnapshotMany(ctx context.Context, urls []string) (map[string]uint64, error) {
	out := make(map[string]uint64, len(urls))
	if len(urls) == 0 {
		return out, nil
	}
	keys := make([]string, len(urls))
	for i, u := range urls {
		keys[i] = s.key(u)
	}
	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	for i, v := range vals {
		var g uint64
		switch vv := v.(type) {
		case nil:
		case string:
			if g, err = parseGen(urls[i], vv); err != nil {
				return nil, err
			}
		default:
			if g, err = parseGen(urls[i], fmt.Sprint(vv)); err != nil {
				return nil, err
			}
		}
		out[urls[i]] = g
	}
	return out, nil
}

// Bump increments the counter. With a TTL, INCR and EXPIRE share one pipeline.
func (s *Redis) Bump(ctx context.Context, url string) (uint64, error) {
	k := s.key(url)
	if s.ttl <= 0 {
		v, err := s.rdb.Incr(ctx, k).Result()
		if err != nil {
			return 0, err
		}
		return uint64(v), nil
	}

	var incr *redis.IntCmd
	_, err := s.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, k)
		p.Expire(ctx, k, s.ttl)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return uint64(incr.Val()), nil
}

func (s *Redis) Cleanup(time.Duration) {}

func (s *Redis) Close(context.Context) error {
	if !s.owns {
		return nil
	}
	return s.rdb.Close()
}

func parseGen(url, s string) (uint64, error) {
	g, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("genstore: parse generation for %s: %w", url, err)
	}
	return g, nil
}
