package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store keeps presence state in redis with a TTL so a crashed node's users
// age out instead of appearing online forever.
type Store struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

type Status struct {
	Status   string `json:"status"`
	LastSeen int64  `json:"last_seen"`
}

func NewStore(client *redis.Client, prefix string, ttl time.Duration) *Store {
	if ttl == 0 {
		ttl = 60 * time.Second
	}
	return &Store{client: client, prefix: prefix, ttl: ttl}
}

func (s *Store) key(userID string) string {
	return fmt.Sprintf("%s:presence:%s", s.prefix, userID)
}

func (s *Store) SetOnline(ctx context.Context, userID string) error {
	b, _ := json.Marshal(Status{Status: "online", LastSeen: time.Now().Unix()})
	return s.client.Set(ctx, s.key(userID), b, s.ttl).Err()
}

// Refresh extends the TTL; called on inbound traffic.
func (s *Store) Refresh(ctx context.Context, userID string) error {
	return s.client.Expire(ctx, s.key(userID), s.ttl).Err()
}

func (s *Store) SetOffline(ctx context.Context, userID string) error {
	b, _ := json.Marshal(Status{Status: "offline", LastSeen: time.Now().Unix()})
	return s.client.Set(ctx, s.key(userID), b, 0).Err()
}

func (s *Store) Get(ctx context.Context, userID string) (*Status, error) {
	b, err := s.client.Get(ctx, s.key(userID)).Bytes()
	if err == redis.Nil {
		return &Status{Status: "offline"}, nil
	}
	if err != nil {
		return nil, err
	}
	var st Status
	if err := json.Unmarshal(b, &st); err != nil {
		return nil, err
	}
	return &st, nil
}
