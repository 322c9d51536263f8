// Package hub fans protocol frames out to connected clients. Frames are
// published on a Redis channel so every server instance sees them; each
// instance then delivers to its own SSE subscribers.
package hub

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/adamwitko/retro/domain"
)

// Message carries one frame between instances. Target is a username; when
// empty the frame goes to every participant of the retro. Card frames are
// always targeted because their votes field is rendered per recipient.
type Message struct {
	RetroID domain.RetroID  `json:"retroId"`
	Target  domain.UserID   `json:"target,omitempty"`
	Frame   json.RawMessage `json:"frame"`
}

// Subscription is one connected client's feed.
type Subscription struct {
	RetroID domain.RetroID
	User    domain.UserID
	C       chan []byte
}

// Hub publishes messages to Redis and routes received ones to local
// subscribers.
type Hub struct {
	rc      *redis.Client
	channel string

	mu   sync.Mutex
	subs map[*Subscription]struct{}
}

// New creates a hub publishing on the given Redis channel.
func New(rc *redis.Client, channel string) *Hub {
	return &Hub{rc: rc, channel: channel, subs: make(map[*Subscription]struct{})}
}

// Publish sends one message to every instance, this one included.
func (h *Hub) Publish(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return h.rc.Publish(ctx, h.channel, payload).Err()
}

// Subscribe registers a connection for a retro's frames. The channel is
// buffered; a subscriber that stops draining loses frames rather than
// stalling the hub.
func (h *Hub) Subscribe(retroID domain.RetroID, user domain.UserID) *Subscription {
	sub := &Subscription{RetroID: retroID, User: user, C: make(chan []byte, 64)}
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

// Unsubscribe removes a connection's feed.
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	delete(h.subs, sub)
	h.mu.Unlock()
}

func (h *Hub) deliver(msg Message) {
	h.mu.Lock()
	for sub := range h.subs {
		if sub.RetroID != msg.RetroID {
			continue
		}
		if msg.Target != "" && sub.User != msg.Target {
			continue
		}
		select {
		case sub.C <- msg.Frame:
		default:
		}
	}
	h.mu.Unlock()
}

// Run consumes the Redis channel until ctx is done, reconnecting when the
// pubsub stream closes underneath it.
func (h *Hub) Run(ctx context.Context) {
	for {
		sub := h.rc.Subscribe(ctx, h.channel)
		ch := sub.Channel()
	recv:
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break recv
				}
				var m Message
				if err := json.Unmarshal([]byte(msg.Payload), &m); err != nil {
					log.Errorf("hub: unable to parse message: %v", err)
					continue
				}
				h.deliver(m)
			}
		}
		_ = sub.Close()
		if ctx.Err() != nil {
			return
		}
		log.Error("hub: pubsub channel closed, reconnecting")
		time.Sleep(time.Second)
	}
}
