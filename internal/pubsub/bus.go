// Package pubsub provides the Redis-backed progress event bus.
// This package is internal and should not be imported by external projects.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/BaSui01/imagenhancer/events"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// =============================================================================
// 📡 事件总线
// =============================================================================

// Config 事件总线配置
type Config struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`

	// Redis 地址
	Addr string `yaml:"addr" env:"ADDR"`

	// 密码
	Password string `yaml:"password" env:"PASSWORD"`

	// 数据库编号
	DB int `yaml:"db" env:"DB"`

	// 频道前缀，完整频道名为 <prefix>:<session>
	Prefix string `yaml:"prefix" env:"PREFIX"`

	// 事件回放保留时间，0 表示不保留
	ReplayTTL time.Duration `yaml:"replay_ttl" env:"REPLAY_TTL"`

	// 最大重试次数
	MaxRetries int `yaml:"max_retries" env:"MAX_RETRIES"`

	// 连接池大小
	PoolSize int `yaml:"pool_size" env:"POOL_SIZE"`

	// 最小空闲连接数
	MinIdleConns int `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`

	// 健康检查间隔
	HealthCheckInterval time.Duration `yaml:"health_check_interval" env:"HEALTH_CHECK_INTERVAL"`
}

// DefaultConfig 返回默认事件总线配置
func DefaultConfig() Config {
	return Config{
		Addr:                "localhost:6379",
		Prefix:              "imagenhancer:events",
		ReplayTTL:           10 * time.Minute,
		MaxRetries:          3,
		PoolSize:            10,
		MinIdleConns:        2,
		HealthCheckInterval: 30 * time.Second,
	}
}

// PublishRecorder 事件投递指标
type PublishRecorder interface {
	RecordEventPublished(sink, eventType string)
}

// Bus 基于 Redis Pub/Sub 的事件总线
type Bus struct {
	redis   *redis.Client
	config  Config
	metrics PublishRecorder
	logger  *zap.Logger
	mu      sync.RWMutex
	closed  bool
	stop    chan struct{}
}

// NewBus 创建事件总线并检查连接
func NewBus(config Config, logger *zap.Logger) (*Bus, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Prefix == "" {
		config.Prefix = "imagenhancer:events"
	}

	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		MaxRetries:   config.MaxRetries,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
	})

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	b := &Bus{
		redis:  client,
		config: config,
		logger: logger.With(zap.String("component", "event_bus")),
		stop:   make(chan struct{}),
	}

	// 启动健康检查
	if config.HealthCheckInterval > 0 {
		go b.healthCheckLoop()
	}

	b.logger.Info("event bus initialized",
		zap.String("addr", config.Addr),
		zap.String("prefix", config.Prefix),
	)

	return b, nil
}

// WithMetrics 设置投递指标
func (b *Bus) WithMetrics(m PublishRecorder) *Bus {
	b.metrics = m
	return b
}

// Channel 返回会话对应的频道名
func (b *Bus) Channel(session string) string {
	return b.config.Prefix + ":" + session
}

func (b *Bus) replayKey(session string) string {
	return b.Channel(session) + ":log"
}

// =============================================================================
// 🎯 核心方法
// =============================================================================

// Publish 发布事件到会话频道，并在启用回放时追加到回放列表
func (b *Bus) Publish(ctx context.Context, session string, event events.Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return fmt.Errorf("event bus is closed")
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	_, err = b.redis.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Publish(ctx, b.Channel(session), payload)
		if b.config.ReplayTTL > 0 {
			pipe.RPush(ctx, b.replayKey(session), payload)
			pipe.Expire(ctx, b.replayKey(session), b.config.ReplayTTL)
		}
		return nil
	})
	if err != nil {
		b.logger.Error("event publish failed", zap.String("session", session), zap.Error(err))
		return fmt.Errorf("event publish failed: %w", err)
	}

	if b.metrics != nil {
		b.metrics.RecordEventPublished("redis", string(event.Type))
	}
	return nil
}

// Emitter 返回把事件发布到指定会话的 Emitter
func (b *Bus) Emitter(session string) events.Emitter {
	return events.EmitterFunc(func(ctx context.Context, event events.Event) error {
		return b.Publish(ctx, session, event)
	})
}

// Replay 返回会话已发布的事件
func (b *Bus) Replay(ctx context.Context, session string) ([]events.Event, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("event bus is closed")
	}

	raw, err := b.redis.LRange(ctx, b.replayKey(session), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("event replay failed: %w", err)
	}

	out := make([]events.Event, 0, len(raw))
	for _, r := range raw {
		var ev events.Event
		if err := json.Unmarshal([]byte(r), &ev); err != nil {
			b.logger.Warn("skipping malformed event", zap.String("session", session), zap.Error(err))
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

// Subscription 会话订阅
type Subscription struct {
	C      <-chan events.Event
	pubsub *redis.PubSub
	quit   chan struct{}
	done   chan struct{}
	once   sync.Once
}

// Close 取消订阅
func (s *Subscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.quit)
		err = s.pubsub.Close()
		<-s.done
	})
	return err
}

// Subscribe 订阅会话频道。收到终止状态事件后通道关闭。
func (b *Bus) Subscribe(ctx context.Context, session string) (*Subscription, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("event bus is closed")
	}

	ps := b.redis.Subscribe(ctx, b.Channel(session))
	// 等待订阅确认，避免丢失紧随其后的发布
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe failed: %w", err)
	}

	out := make(chan events.Event, 16)
	sub := &Subscription{C: out, pubsub: ps, quit: make(chan struct{}), done: make(chan struct{})}

	go func() {
		defer close(sub.done)
		defer close(out)
		for msg := range ps.Channel() {
			var ev events.Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				b.logger.Warn("skipping malformed event", zap.String("channel", msg.Channel), zap.Error(err))
				continue
			}
			select {
			case out <- ev:
			case <-sub.quit:
				return
			case <-ctx.Done():
				return
			}
			if ev.IsTerminal() {
				return
			}
		}
	}()

	return sub, nil
}

// Subscribers 返回会话频道当前的订阅者数量
func (b *Bus) Subscribers(ctx context.Context, session string) (int64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return 0, fmt.Errorf("event bus is closed")
	}

	channel := b.Channel(session)
	counts, err := b.redis.PubSubNumSub(ctx, channel).Result()
	if err != nil {
		return 0, fmt.Errorf("pubsub numsub failed: %w", err)
	}
	return counts[channel], nil
}

// Ping 检查 Redis 连接
func (b *Bus) Ping(ctx context.Context) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return fmt.Errorf("event bus is closed")
	}

	return b.redis.Ping(ctx).Err()
}

// Close 关闭事件总线
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}

	b.closed = true
	close(b.stop)
	b.logger.Info("closing event bus")

	return b.redis.Close()
}

// =============================================================================
// 🏥 健康检查
// =============================================================================

// healthCheckLoop 健康检查循环
func (b *Bus) healthCheckLoop() {
	ticker := time.NewTicker(b.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stop:
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := b.Ping(ctx); err != nil {
			b.logger.Error("event bus health check failed", zap.Error(err))
		} else {
			b.logger.Debug("event bus health check passed")
		}
		cancel()
	}
}
