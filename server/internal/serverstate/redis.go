package serverstate

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKey is the key holding the shared state.
const DefaultRedisKey = "libsync:state"

type redisStore struct {
	client  redis.UniversalClient
	key     string
	timeout time.Duration
}

// NewRedisStore connects to addr (a redis://, rediss://, redis-sentinel:// URL
// or a plain host:port) and returns a Store saving the state under key.
// The key is initialised to not_ready when absent.
func NewRedisStore(addr, key string) (Store, error) {
	opts, err := parseRedisURL(addr)
	if err != nil {
		return nil, err
	}
	if key == "" {
		key = DefaultRedisKey
	}
	rs := &redisStore{client: redis.NewUniversalClient(opts), key: key, timeout: 2 * time.Second}
	ctx, cancel := rs.ctx()
	defer cancel()
	if err := rs.client.Ping(ctx).Err(); err != nil {
		_ = rs.client.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	b, _ := json.Marshal(State{Status: StatusNotReady, UpdatedAt: time.Now().UTC()})
	_ = rs.client.SetNX(ctx, rs.key, b, 0).Err()
	return rs, nil
}

func (r *redisStore) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), r.timeout)
}

// parseRedisURL parses addr into UniversalOptions for single, cluster and
// sentinel deployments. An address without a scheme is a plain host:port.
func parseRedisURL(addr string) (*redis.UniversalOptions, error) {
	if !strings.Contains(addr, "://") {
		return &redis.UniversalOptions{Addrs: []string{addr}}, nil
	}
	u, err := url.Parse(addr)
	if err != nil {
		return nil, err
	}

	opts := &redis.UniversalOptions{Addrs: strings.Split(u.Host, ",")}
	if u.User != nil {
		opts.Username = u.User.Username()
		opts.Password, _ = u.User.Password()
	}
	q := u.Query()
	path := strings.TrimPrefix(u.Path, "/")

	switch u.Scheme {
	case "redis", "rediss":
		dbStr := path
		if dbStr == "" {
			dbStr = q.Get("db")
		}
		if opts.DB, err = parseDB(dbStr); err != nil {
			return nil, err
		}
	case "redis-sentinel", "rediss-sentinel":
		opts.MasterName = path
		if opts.DB, err = parseDB(q.Get("db")); err != nil {
			return nil, err
		}
		opts.SentinelUsername = q.Get("sentinel_username")
		opts.SentinelPassword = q.Get("sentinel_password")
	default:
		return nil, fmt.Errorf("redis: invalid URL scheme: %s", u.Scheme)
	}
	if strings.HasPrefix(u.Scheme, "rediss") {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return opts, nil
}

func parseDB(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	db, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("redis: invalid db: %v", err)
	}
	return db, nil
}

func (r *redisStore) Load() State {
	ctx, cancel := r.ctx()
	defer cancel()
	b, err := r.client.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return State{Status: StatusNotReady}
	}
	if err != nil {
		return State{Status: StatusUnknown}
	}
	var st State
	if err := json.Unmarshal(b, &st); err != nil {
		return State{Status: StatusUnknown}
	}
	return st
}

func (r *redisStore) Store(s State) {
	b, err := json.Marshal(s)
	if err != nil {
		return
	}
	ctx, cancel := r.ctx()
	defer cancel()
	_ = r.client.Set(ctx, r.key, b, 0).Err()
}
