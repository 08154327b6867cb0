// Package queue publishes ingested posts onto the downstream Redis list.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
)

// Message is the compact record handed to downstream consumers. It is
// deliberately smaller than the stored record: no media, no author.
type Message struct {
	Channel  string   `json:"channel"`
	Content  string   `json:"content"`
	IDPost   uint64   `json:"id_post"`
	Outlinks []string `json:"outlinks"`
}

// Encode serializes the message to the wire form. Nil outlinks become an
// empty array so consumers never see null.
func (m Message) Encode() ([]byte, error) {
	if m.Outlinks == nil {
		m.Outlinks = []string{}
	}
	return json.Marshal(m)
}

// Publisher appends messages onto a named Redis list (RPUSH; consumers pop
// with BLPOP). Delivery past the list is at-least-once and downstream's
// concern.
type Publisher struct {
	rdb  *redis.Client
	name string
}

// NewPublisher connects to Redis at addr and publishes onto the named list.
func NewPublisher(addr string, db int, name string) (*Publisher, error) {
	if strings.TrimSpace(addr) == "" {
		return nil, errors.New("queue: redis address is required")
	}
	if strings.TrimSpace(name) == "" {
		return nil, errors.New("queue: queue name is required")
	}

	rdb := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	return &Publisher{rdb: rdb, name: name}, nil
}

// Publish appends one message to the queue.
func (p *Publisher) Publish(ctx context.Context, msg Message) error {
	payload, err := msg.Encode()
	if err != nil {
		return fmt.Errorf("queue: encode message: %w", err)
	}

	if err := p.rdb.RPush(ctx, p.name, payload).Err(); err != nil {
		return fmt.Errorf("queue: publish %s/%d: %w", msg.Channel, msg.IDPost, err)
	}
	return nil
}

// Ping checks the Redis connection. Used by the doctor command.
func (p *Publisher) Ping(ctx context.Context) error {
	if err := p.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("queue: ping: %w", err)
	}
	return nil
}

// Close releases the Redis connection.
func (p *Publisher) Close() error {
	return p.rdb.Close()
}
