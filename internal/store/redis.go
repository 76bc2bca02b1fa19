package store

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/raknampuna/anchor/internal/planning"
)

const scanBatch = 100

// Redis keeps each context as a hash under its record key. Keys expire on
// their own once the day leaves the retention window.
type Redis struct {
	rdb  *redis.Client
	opts Options
}

var _ Store = (*Redis)(nil)

// NewRedis connects to the server at url (redis://[:password@]host:port/db).
func NewRedis(ctx context.Context, url string, opts Options) (*Redis, error) {
	o, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	rdb := redis.NewClient(o)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, unavailable("connecting to redis", err)
	}
	return &Redis{rdb: rdb, opts: opts.withDefaults()}, nil
}

func (r *Redis) Close() error {
	return r.rdb.Close()
}

func (r *Redis) Load(ctx context.Context, userID string, day time.Time) (*planning.Context, error) {
	if r.opts.expired(day.Format(planning.DateFormat)) {
		return nil, nil
	}
	key := Key(userID, day)
	f, err := r.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, unavailable("loading context", err)
	}
	if len(f) == 0 {
		return nil, nil
	}
	c, err := DecodeFields(f)
	if err != nil {
		return nil, fmt.Errorf("loading context %s: %w: %w", key, ErrCorrupt, err)
	}
	return c, nil
}

func (r *Redis) Save(ctx context.Context, userID string, day time.Time, c *planning.Context) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("saving context: %w", err)
	}
	f, err := EncodeFields(c)
	if err != nil {
		return fmt.Errorf("saving context: %w", err)
	}
	values := make([]any, 0, 2*len(f))
	for k, v := range f {
		values = append(values, k, v)
	}
	key := Key(userID, day)
	expireAt := planning.Day(day.In(r.opts.Location)).AddDate(0, 0, r.opts.RetentionDays+1)

	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, values...)
		pipe.ExpireAt(ctx, key, expireAt)
		return nil
	})
	if err != nil {
		return unavailable("saving context", err)
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, userID string, day time.Time) error {
	if err := r.rdb.Del(ctx, Key(userID, day)).Err(); err != nil {
		return unavailable("deleting context", err)
	}
	return nil
}

func (r *Redis) PurgeOlderThan(ctx context.Context, days int) (int, error) {
	cutoff := r.opts.cutoff(days)
	var stale []string
	iter := r.rdb.Scan(ctx, 0, keyPrefix+"*"+keyDate+"*", scanBatch).Iterator()
	for iter.Next(ctx) {
		_, day, ok := ParseKey(iter.Val())
		if !ok || day >= cutoff {
			continue
		}
		stale = append(stale, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return 0, unavailable("scanning contexts", err)
	}

	deleted := 0
	for _, key := range stale {
		n, err := r.rdb.Del(ctx, key).Result()
		if err != nil {
			return deleted, unavailable("purging contexts", err)
		}
		deleted += int(n)
	}
	return deleted, nil
}

func (r *Redis) Users(ctx context.Context, day time.Time) ([]string, error) {
	var out []string
	pattern := keyPrefix + "*" + keyDate + day.Format(planning.DateFormat)
	iter := r.rdb.Scan(ctx, 0, pattern, scanBatch).Iterator()
	for iter.Next(ctx) {
		if user, _, ok := ParseKey(iter.Val()); ok {
			out = append(out, user)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, unavailable("listing users", err)
	}
	sort.Strings(out)
	return out, nil
}
