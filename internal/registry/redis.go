package registry

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"coursechat/pkg/interfaces"
	"coursechat/pkg/types"
)

// channelPrefix namespaces group traffic on the shared Redis instance.
const channelPrefix = "coursechat:group:"

// publishTimeout bounds a single PUBLISH round trip.
const publishTimeout = 3 * time.Second

// RedisBridge extends the in-process registry across gateway processes.
// Publishes go through a Redis channel per group; every process holding
// live members of that group receives the frame and fans it out locally.
// Join and Leave stay purely local: Redis carries frames, not membership.
//
// Frames published by one connection keep their order because both the
// PUBLISH calls (sequential per sender) and the subscription stream are
// ordered channels.
type RedisBridge struct {
	local  *Registry
	client *redis.Client
	log    *slog.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	sub     *redis.PubSub
	wg      sync.WaitGroup
}

// NewRedisBridge creates a bridge over the given Redis instance.
func NewRedisBridge(local *Registry, addr, password string, log *slog.Logger) *RedisBridge {
	return &RedisBridge{
		local: local,
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
		}),
		log: log,
	}
}

// Start subscribes to the group channel space and begins relaying frames
// into the local registry.
func (b *RedisBridge) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.running {
		return ErrBridgeAlreadyRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	sub := b.client.PSubscribe(runCtx, channelPrefix+"*")
	if _, err := sub.Receive(runCtx); err != nil {
		cancel()
		_ = sub.Close()
		return err
	}

	b.running = true
	b.cancel = cancel
	b.sub = sub

	b.wg.Add(1)
	go b.relay(runCtx, sub.Channel())

	b.log.Debug("redis bridge started", "channel_prefix", channelPrefix)
	return nil
}

// relay fans received frames out to local members until the subscription
// closes.
func (b *RedisBridge) relay(ctx context.Context, frames <-chan *redis.Message) {
	defer b.wg.Done()

	for {
		select {
		case msg, ok := <-frames:
			if !ok {
				return
			}
			key := types.GroupKey(strings.TrimPrefix(msg.Channel, channelPrefix))
			b.local.fanout(key, []byte(msg.Payload))
		case <-ctx.Done():
			return
		}
	}
}

// Join attaches a member to the local registry.
func (b *RedisBridge) Join(key types.GroupKey, m interfaces.Member) {
	b.local.Join(key, m)
}

// Leave detaches a member from the local registry.
func (b *RedisBridge) Leave(key types.GroupKey, m interfaces.Member) {
	b.local.Leave(key, m)
}

// Publish routes the payload through Redis so every process sharing the
// group delivers it. A failed PUBLISH degrades to local-only delivery
// rather than losing the frame for this process's members.
func (b *RedisBridge) Publish(key types.GroupKey, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		b.log.Error("failed to marshal publish payload", "group", string(key), "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if err := b.client.Publish(ctx, channelPrefix+string(key), data).Err(); err != nil {
		b.log.Error("redis publish failed, delivering locally only",
			"group", string(key), "error", err)
		b.local.fanout(key, data)
	}
}

// Stop unsubscribes, waits for the relay to drain in-flight frames and
// closes the client.
func (b *RedisBridge) Stop() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.running {
		return ErrBridgeNotRunning
	}
	b.running = false

	_ = b.sub.Close()
	b.cancel()
	b.wg.Wait()

	return b.client.Close()
}
