package xnotify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/omeyang/xgrid/pkg/grid/xentry"
)

// Message 是发布到 Redis 的事件格式。
type Message struct {
	Key      string `json:"key"`
	Value    []byte `json:"value,omitempty"`
	Source   string `json:"source"`
	Lifespan *int64 `json:"lifespan_ms,omitempty"`
	MaxIdle  *int64 `json:"max_idle_ms,omitempty"`
	Created  *int64 `json:"created_ms,omitempty"`
	Version  uint64 `json:"version,omitempty"`
}

// MessageFromEvent 把事件转换为发布格式。时间与时长按毫秒编码。
func MessageFromEvent(ev xentry.Event) Message {
	m := Message{Key: ev.Key, Value: ev.Value, Source: string(ev.Source)}
	if md := ev.Metadata; md != nil {
		ls := durationMillis(md.Lifespan)
		mi := durationMillis(md.MaxIdle)
		c := md.Created.UnixMilli()
		m.Lifespan, m.MaxIdle, m.Created = &ls, &mi, &c
	}
	if ev.PrivateMetadata != nil {
		m.Version = ev.PrivateMetadata.Version
	}
	return m
}

// Event 把消息还原为事件。时长与时间精度为毫秒。
func (m Message) Event() xentry.Event {
	ev := xentry.Event{Key: m.Key, Value: m.Value, Source: xentry.Source(m.Source)}
	if m.Lifespan != nil && m.MaxIdle != nil && m.Created != nil {
		ev.Metadata = &xentry.Metadata{
			Lifespan: millisDuration(*m.Lifespan),
			MaxIdle:  millisDuration(*m.MaxIdle),
			Created:  time.UnixMilli(*m.Created),
		}
	}
	if m.Version != 0 {
		ev.PrivateMetadata = &xentry.PrivateMetadata{Version: m.Version}
	}
	return ev
}

// durationMillis 编码时长；负值（不过期）统一编码为 -1。
func durationMillis(d time.Duration) int64 {
	if d < 0 {
		return -1
	}
	return d.Milliseconds()
}

func millisDuration(ms int64) time.Duration {
	if ms < 0 {
		return -1
	}
	return time.Duration(ms) * time.Millisecond
}

// RedisPublisher 把过期事件发布到 Redis 频道。
type RedisPublisher struct {
	client  redis.UniversalClient
	channel string
}

// NewRedisPublisher 创建发布器。client 由调用方管理生命周期。
func NewRedisPublisher(client redis.UniversalClient, channel string) (*RedisPublisher, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	if channel == "" {
		return nil, ErrEmptyChannel
	}
	return &RedisPublisher{client: client, channel: channel}, nil
}

// Channel 返回发布频道。
func (p *RedisPublisher) Channel() string { return p.channel }

// OnExpired 发布事件。
func (p *RedisPublisher) OnExpired(ctx context.Context, ev xentry.Event) error {
	payload, err := json.Marshal(MessageFromEvent(ev))
	if err != nil {
		return fmt.Errorf("xnotify: encode %q: %w", ev.Key, err)
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("xnotify: publish %q to %s: %w", ev.Key, p.channel, err)
	}
	return nil
}

// DecodeMessage 解析订阅端收到的消息。
func DecodeMessage(payload string) (Message, error) {
	var m Message
	if err := json.Unmarshal([]byte(payload), &m); err != nil {
		return Message{}, fmt.Errorf("xnotify: decode message: %w", err)
	}
	return m, nil
}
