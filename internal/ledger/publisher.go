package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
)

// Publisher 把新写入的账本记录推送给下游（仪表盘、通知服务等）。
type Publisher interface {
	Publish(ctx context.Context, record Record) error
	Close() error
}

// MemoryPublisher 使用 channel 投递记录，主要用于测试与单进程部署。
type MemoryPublisher struct {
	ch       chan Record
	done     chan struct{}
	mu       sync.Mutex
	closed   bool
	inflight sync.WaitGroup
}

// NewMemoryPublisher 创建一个带缓冲的内存发布器。
func NewMemoryPublisher(size int) *MemoryPublisher {
	if size <= 0 {
		size = 64
	}
	return &MemoryPublisher{ch: make(chan Record, size), done: make(chan struct{})}
}

// Publish 投递记录；缓冲区已满时等待，直到上下文取消或发布器关闭。
// 等待期间不持有锁。
func (p *MemoryPublisher) Publish(ctx context.Context, record Record) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return errors.New("发布器已关闭")
	}
	p.inflight.Add(1)
	p.mu.Unlock()
	defer p.inflight.Done()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.done:
		return errors.New("发布器已关闭")
	case p.ch <- record:
		return nil
	}
}

// Records 返回订阅 channel。
func (p *MemoryPublisher) Records() <-chan Record {
	return p.ch
}

// Close 唤醒阻塞中的 Publish，待其全部返回后关闭 channel。
func (p *MemoryPublisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.done)
	p.mu.Unlock()

	p.inflight.Wait()
	close(p.ch)
	return nil
}

// RedisPublisherConfig 描述 Redis 发布器的连接参数。
type RedisPublisherConfig struct {
	Address  string
	Password string
	DB       int
	Key      string
	MaxLen   int64
}

// RedisPublisher 把记录以 JSON 形式 LPUSH 到 Redis list，并裁剪到固定长度。
type RedisPublisher struct {
	client *redis.Client
	key    string
	maxLen int64
}

// NewRedisPublisher 创建 Redis 发布器并检查连通性。
func NewRedisPublisher(ctx context.Context, cfg RedisPublisherConfig) (*RedisPublisher, error) {
	if cfg.Address == "" {
		return nil, errors.New("Redis address 不能为空")
	}
	key := cfg.Key
	if key == "" {
		key = "intentx:ledger"
	}
	maxLen := cfg.MaxLen
	if maxLen <= 0 {
		maxLen = 1000
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("连接 Redis 失败: %w", err)
	}
	return &RedisPublisher{client: client, key: key, maxLen: maxLen}, nil
}

// Publish 写入记录。
func (p *RedisPublisher) Publish(ctx context.Context, record Record) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("序列化账本记录失败: %w", err)
	}
	pipe := p.client.TxPipeline()
	pipe.LPush(ctx, p.key, payload)
	pipe.LTrim(ctx, p.key, 0, p.maxLen-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("Redis 发布账本记录失败: %w", err)
	}
	return nil
}

// Close 关闭 Redis 连接。
func (p *RedisPublisher) Close() error {
	if p == nil || p.client == nil {
		return nil
	}
	return p.client.Close()
}

// RabbitMQPublisherConfig 描述 RabbitMQ 发布器的连接参数。
type RabbitMQPublisherConfig struct {
	URL     string
	Queue   string
	Durable bool
}

// RabbitMQPublisher 把记录发布到 RabbitMQ 队列。
type RabbitMQPublisher struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
	mu    sync.Mutex
}

// NewRabbitMQPublisher 建立连接并声明队列。
func NewRabbitMQPublisher(cfg RabbitMQPublisherConfig) (*RabbitMQPublisher, error) {
	if cfg.URL == "" {
		return nil, errors.New("RabbitMQ URL 不能为空")
	}
	queue := cfg.Queue
	if queue == "" {
		queue = "intentx.ledger"
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("连接 RabbitMQ 失败: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("创建 RabbitMQ channel 失败: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, cfg.Durable, !cfg.Durable, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("声明 RabbitMQ 队列失败: %w", err)
	}
	return &RabbitMQPublisher{conn: conn, ch: ch, queue: queue}, nil
}

// Publish 发布记录。amqp channel 不支持并发写，这里串行化。
func (p *RabbitMQPublisher) Publish(ctx context.Context, record Record) error {
	if p == nil || p.ch == nil {
		return errors.New("RabbitMQ 发布器未初始化")
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("序列化账本记录失败: %w", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ch.PublishWithContext(ctx, "", p.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    record.ID,
		Timestamp:    record.Timestamp,
		Type:         record.Type,
		Body:         payload,
	})
}

// Close 关闭 RabbitMQ 连接。
func (p *RabbitMQPublisher) Close() error {
	if p == nil {
		return nil
	}
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
