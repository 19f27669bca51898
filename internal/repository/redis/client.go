// Package redis keeps short-lived SCRAM handshake state in Redis. Every
// pending session is a hash holding the JSON payload and a consumed flag and
// expires on its own.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/dtroode/refreshkeeper/internal/model"
)

const (
	fieldData     = "data"
	fieldConsumed = "consumed"

	consumeRetries = 4
)

// NewClient connects to addr and verifies the connection.
func NewClient(ctx context.Context, addr, password string, db int) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return client, nil
}

type sessionStore struct {
	client *goredis.Client
	prefix string
}

func (s sessionStore) key(sessionID string) string {
	return s.prefix + ":" + sessionID
}

func (s sessionStore) create(ctx context.Context, sessionID string, payload []byte, expiresAt time.Time) error {
	key := s.key(sessionID)

	_, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.HSet(ctx, key, fieldData, payload, fieldConsumed, 0)
		pipe.ExpireAt(ctx, key, expiresAt)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store pending session: %w", err)
	}

	return nil
}

func (s sessionStore) load(ctx context.Context, sessionID string) ([]byte, bool, error) {
	fields, err := s.client.HGetAll(ctx, s.key(sessionID)).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to load pending session: %w", err)
	}

	data, ok := fields[fieldData]
	if !ok {
		return nil, false, model.ErrNotFound
	}

	return []byte(data), fields[fieldConsumed] == "1", nil
}

// consume flips the consumed flag once. A second call, or a call racing a
// winner, returns model.ErrSessionConsumed.
func (s sessionStore) consume(ctx context.Context, sessionID string) error {
	key := s.key(sessionID)

	for i := 0; i < consumeRetries; i++ {
		err := s.client.Watch(ctx, func(tx *goredis.Tx) error {
			consumed, err := tx.HGet(ctx, key, fieldConsumed).Result()
			if err != nil {
				return err
			}
			if consumed == "1" {
				return model.ErrSessionConsumed
			}

			_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
				pipe.HSet(ctx, key, fieldConsumed, 1)
				return nil
			})
			return err
		}, key)

		if errors.Is(err, goredis.TxFailedErr) {
			continue
		}
		if errors.Is(err, goredis.Nil) {
			return model.ErrNotFound
		}
		if errors.Is(err, model.ErrSessionConsumed) {
			return err
		}
		if err != nil {
			return fmt.Errorf("failed to consume pending session: %w", err)
		}

		return nil
	}

	return model.ErrSessionConsumed
}
