package index

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/redis/rueidis"
)

// RedisStore keeps the current record set in Redis: one hash per record
// plus a list of record keys. A shared Redis lets several replicas serve
// the same index build, at the cost of serializing rebuilds upstream.
type RedisStore struct {
	client rueidis.Client
	prefix string
}

var _ Store = (*RedisStore)(nil)

// RedisConfig holds connection parameters for a Redis-backed store.
type RedisConfig struct {
	Addrs     []string
	Password  string
	KeyPrefix string
}

// NewRedisStore connects to Redis via rueidis.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	if len(cfg.Addrs) == 0 {
		return nil, fmt.Errorf("addrs is required")
	}

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  cfg.Addrs,
		Password:     cfg.Password,
		DisableCache: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	return &RedisStore{client: client, prefix: cfg.KeyPrefix}, nil
}

// Close shuts down the client.
func (s *RedisStore) Close() {
	s.client.Close()
}

// Ping checks connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Do(ctx, s.client.B().Ping().Build()).Error(); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

func (s *RedisStore) idsKey() string { return s.prefix + "chunk_ids" }

func (s *RedisStore) recordKey(id int) string {
	return s.prefix + "chunk:" + strconv.Itoa(id)
}

// Replace deletes every prior record key and writes the new set in one
// pipelined round-trip.
func (s *RedisStore) Replace(ctx context.Context, recs []Record) error {
	oldKeys, err := s.recordKeys(ctx)
	if err != nil {
		return err
	}

	delKeys := append(oldKeys, s.idsKey())
	if err := s.client.Do(ctx, s.client.B().Del().Key(delKeys...).Build()).Error(); err != nil {
		return fmt.Errorf("clear records: %w", err)
	}

	if len(recs) == 0 {
		return nil
	}

	cmds := make([]rueidis.Completed, 0, len(recs)+1)
	push := s.client.B().Rpush().Key(s.idsKey()).Element()
	for _, rec := range recs {
		vec, err := json.Marshal(rec.Vector)
		if err != nil {
			return fmt.Errorf("encode vector %d: %w", rec.ID, err)
		}
		cmds = append(cmds, s.client.B().Hset().Key(s.recordKey(rec.ID)).
			FieldValue().
			FieldValue("id", strconv.Itoa(rec.ID)).
			FieldValue("text", rec.Text).
			FieldValue("vector", string(vec)).
			Build())
		push = push.Element(s.recordKey(rec.ID))
	}
	cmds = append(cmds, push.Build())

	for i, res := range s.client.DoMulti(ctx, cmds...) {
		if err := res.Error(); err != nil {
			return fmt.Errorf("write record %d: %w", i, err)
		}
	}
	return nil
}

// Records fetches the whole current set in a single DoMulti round-trip.
func (s *RedisStore) Records(ctx context.Context) ([]Record, error) {
	keys, err := s.recordKeys(ctx)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, nil
	}

	cmds := make([]rueidis.Completed, len(keys))
	for i, key := range keys {
		cmds[i] = s.client.B().Hgetall().Key(key).Build()
	}

	recs := make([]Record, 0, len(keys))
	for i, res := range s.client.DoMulti(ctx, cmds...) {
		fields, err := res.AsStrMap()
		if err != nil {
			return nil, fmt.Errorf("read record %s: %w", keys[i], err)
		}
		rec, err := recordFromFields(fields)
		if err != nil {
			return nil, fmt.Errorf("decode record %s: %w", keys[i], err)
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

func (s *RedisStore) recordKeys(ctx context.Context) ([]string, error) {
	keys, err := s.client.Do(ctx, s.client.B().Lrange().Key(s.idsKey()).Start(0).Stop(-1).Build()).AsStrSlice()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list record keys: %w", err)
	}
	return keys, nil
}

func recordFromFields(fields map[string]string) (Record, error) {
	id, err := strconv.Atoi(fields["id"])
	if err != nil {
		return Record{}, fmt.Errorf("bad id %q: %w", fields["id"], err)
	}
	var vec []float32
	if err := json.Unmarshal([]byte(fields["vector"]), &vec); err != nil {
		return Record{}, fmt.Errorf("bad vector: %w", err)
	}
	return Record{ID: id, Text: fields["text"], Vector: vec}, nil
}
