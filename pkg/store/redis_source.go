// classifier/pkg/store/redis_source.go

package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"rgehrsitz/classifier/pkg/logging"
)

const (
	DefaultRedisKey     = "classifier:categories"
	DefaultRedisChannel = "classifier_updates"
)

// RedisSource keeps the rule source text in a Redis string key and
// announces changes on a pub/sub channel.
type RedisSource struct {
	client  *redis.Client
	key     string
	channel string
}

// NewRedisSource connects to Redis and checks the connection.
func NewRedisSource(ctx context.Context, addr, password string, db int, key, channel string) (*RedisSource, error) {
	logging.Logger.Info().Str("addr", addr).Int("db", db).Msg("Connecting to Redis")

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return nil, logging.NewError(logging.ErrorTypeStore, "Failed to connect to Redis", err, map[string]interface{}{
			"addr": addr,
		})
	}

	logging.Logger.Info().Msg("Successfully connected to Redis")
	return NewRedisSourceWithClient(client, key, channel), nil
}

// NewRedisSourceWithClient uses an existing client. Empty key and channel
// fall back to the defaults.
func NewRedisSourceWithClient(client *redis.Client, key, channel string) *RedisSource {
	if key == "" {
		key = DefaultRedisKey
	}
	if channel == "" {
		channel = DefaultRedisChannel
	}
	return &RedisSource{client: client, key: key, channel: channel}
}

func (s *RedisSource) Name() string {
	return fmt.Sprintf("redis://%s/%s", s.client.Options().Addr, s.key)
}

func (s *RedisSource) Read(ctx context.Context) ([]byte, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, logging.NewError(logging.ErrorTypeSourceUnreadable, "Rule key not found in Redis", err, map[string]interface{}{
			"key": s.key,
		})
	} else if err != nil {
		return nil, logging.NewError(logging.ErrorTypeSourceUnreadable, "Failed to get rules from Redis", err, map[string]interface{}{
			"key": s.key,
		})
	}
	logging.Logger.Debug().Str("key", s.key).Int("bytes", len(data)).Msg("Retrieved rules from Redis")
	return data, nil
}

// Publish stores source under the rule key and notifies subscribers.
func (s *RedisSource) Publish(ctx context.Context, source []byte) error {
	if err := s.client.Set(ctx, s.key, source, 0).Err(); err != nil {
		logging.Logger.Error().Err(err).Str("key", s.key).Msg("Failed to set rules in Redis")
		return err
	}
	if err := s.client.Publish(ctx, s.channel, s.key).Err(); err != nil {
		logging.Logger.Error().Err(err).Str("channel", s.channel).Msg("Failed to publish rule update")
		return err
	}
	logging.Logger.Info().Str("key", s.key).Str("channel", s.channel).Msg("Published rule update")
	return nil
}

// Watch subscribes to the update channel. The subscription is confirmed
// before Watch returns.
func (s *RedisSource) Watch(ctx context.Context) (ChangeFeed, error) {
	logging.Logger.Info().Str("channel", s.channel).Msg("Subscribing to Redis channel")

	pubsub := s.client.Subscribe(ctx, s.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribe to %q: %w", s.channel, err)
	}

	feed := &redisFeed{
		pubsub:  pubsub,
		changes: make(chan struct{}, 1),
		errors:  make(chan error),
		done:    make(chan struct{}),
	}
	go feed.run(ctx, pubsub.Channel())

	logging.Logger.Info().Str("channel", s.channel).Msg("Successfully subscribed to Redis channel")
	return feed, nil
}

func (s *RedisSource) Close() error {
	return s.client.Close()
}

type redisFeed struct {
	pubsub    *redis.PubSub
	changes   chan struct{}
	errors    chan error
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

func (rf *redisFeed) run(ctx context.Context, messages <-chan *redis.Message) {
	defer close(rf.done)
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			logging.Logger.Debug().Str("channel", msg.Channel).Str("payload", msg.Payload).Msg("Received rule update")
			signal(rf.changes)
		}
	}
}

func (rf *redisFeed) Changes() <-chan struct{} { return rf.changes }

// Errors never delivers; go-redis reconnects the subscription on its own.
func (rf *redisFeed) Errors() <-chan error { return rf.errors }

func (rf *redisFeed) Close() error {
	rf.closeOnce.Do(func() {
		rf.closeErr = rf.pubsub.Close()
		<-rf.done
	})
	return rf.closeErr
}
