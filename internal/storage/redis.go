package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"
)

const maxTxRetries = 5

// RedisStore is a DocumentStore on Redis. Each document is a string key
// doc:{collection}:{id}; the set col:{collection} indexes its ids.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore connects to addr and verifies the connection.
func NewRedisStore(ctx context.Context, addr, password string, db int) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis %s: %w", addr, err)
	}
	return &RedisStore{rdb: rdb}, nil
}

func docKey(collection, id string) string { return "doc:" + collection + ":" + id }
func colKey(collection string) string     { return "col:" + collection }

func (s *RedisStore) Get(ctx context.Context, collection, id string) ([]byte, error) {
	data, err := s.rdb.Get(ctx, docKey(collection, id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s/%s: %w", collection, id, err)
	}
	return data, nil
}

func (s *RedisStore) Set(ctx context.Context, collection, id string, data []byte) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, docKey(collection, id), data, 0)
		pipe.SAdd(ctx, colKey(collection), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to set %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *RedisStore) List(ctx context.Context, collection string) ([]Document, error) {
	ids, err := s.rdb.SMembers(ctx, colKey(collection)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", collection, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	sort.Strings(ids)

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = docKey(collection, id)
	}
	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", collection, err)
	}

	docs := make([]Document, 0, len(ids))
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			// Index entry without a body; skip it.
			continue
		}
		docs = append(docs, Document{ID: ids[i], Data: []byte(str)})
	}
	return docs, nil
}

func (s *RedisStore) ArrayUnion(ctx context.Context, collection, id, field string, values ...string) error {
	return s.modify(ctx, collection, id, true, func(body []byte) ([]byte, error) {
		return unionField(body, field, values)
	})
}

func (s *RedisStore) ArrayRemove(ctx context.Context, collection, id, field string, values ...string) error {
	return s.modify(ctx, collection, id, false, func(body []byte) ([]byte, error) {
		return removeField(body, field, values)
	})
}

// modify runs an optimistic WATCH/MULTI read-modify-write, retrying when
// another writer touches the key first.
func (s *RedisStore) modify(ctx context.Context, collection, id string, create bool, fn func([]byte) ([]byte, error)) error {
	key := docKey(collection, id)

	txf := func(tx *redis.Tx) error {
		body, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			if !create {
				return nil
			}
			body = nil
		} else if err != nil {
			return err
		}

		updated, err := fn(body)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, updated, 0)
			pipe.SAdd(ctx, colKey(collection), id)
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.rdb.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return fmt.Errorf("%s/%s: %w", collection, id, err)
		}
		return nil
	}
	return fmt.Errorf("%s/%s: too many concurrent updates", collection, id)
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
