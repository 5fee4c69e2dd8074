package ws

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// relayFrame wraps an envelope with its fan-out scope for cross-node
// delivery.
type relayFrame struct {
	Node   string          `json:"node"`
	Scope  string          `json:"scope"` // room | user | all
	Room   string          `json:"room,omitempty"`
	User   string          `json:"user,omitempty"`
	Except string          `json:"except,omitempty"`
	Env    json.RawMessage `json:"env"`
}

// Relay mirrors hub fan-out across nodes over a redis pub/sub channel.
type Relay struct {
	rdb     *redis.Client
	channel string
	log     *zap.SugaredLogger
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewRelay(rdb *redis.Client, channel string, log *zap.SugaredLogger) *Relay {
	ctx, cancel := context.WithCancel(context.Background())
	return &Relay{rdb: rdb, channel: channel, log: log, ctx: ctx, cancel: cancel}
}

func (r *Relay) Publish(f relayFrame) error {
	b, err := json.Marshal(f)
	if err != nil {
		return err
	}
	return r.rdb.Publish(r.ctx, r.channel, b).Err()
}

// Listen consumes the channel and hands frames from other nodes to deliver.
func (r *Relay) Listen(selfNode string, deliver func(relayFrame)) {
	pubsub := r.rdb.Subscribe(r.ctx, r.channel)
	go func() {
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-r.ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					r.log.Warnw("relay subscription closed")
					return
				}
				var f relayFrame
				if err := json.Unmarshal([]byte(msg.Payload), &f); err != nil {
					continue
				}
				if f.Node == selfNode {
					continue
				}
				deliver(f)
			}
		}
	}()
}

func (r *Relay) Close() {
	r.cancel()
}
