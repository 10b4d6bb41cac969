package feedback

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/rushteam/recserve/core"
	"github.com/rushteam/recserve/metrics"
)

// ErrClosed 表示发布器已关闭。
var ErrClosed = errors.New("feedback: publisher closed")

// KafkaConfig Kafka 发布器配置
type KafkaConfig struct {
	Brokers []string
	Topic   string

	// 性能配置
	BatchSize     int           // 缓冲达到该数量立即发送，0 表示 100
	FlushInterval time.Duration // 定时发送间隔，0 表示 1s
	MaxBuffer     int           // 缓冲上限，超出的事件丢弃，0 表示 10000

	// Kafka 客户端配置
	ClientID     string // 客户端 ID
	RequiredAcks int16  // 需要的 ACK 数量（1=leader, -1=all, 0=none）
	Compression  string // 压缩类型（gzip, snappy, lz4, zstd）
	MaxRetries   int    // 最大重试次数

	Logger zerolog.Logger
}

func (c *KafkaConfig) defaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = time.Second
	}
	if c.MaxBuffer <= 0 {
		c.MaxBuffer = 10000
	}
	if c.ClientID == "" {
		c.ClientID = "recserve-feedback"
	}
	if c.RequiredAcks == 0 {
		c.RequiredAcks = 1
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
}

// producer 是 *kgo.Client 的子集，便于测试替换。
type producer interface {
	Produce(ctx context.Context, r *kgo.Record, promise func(*kgo.Record, error))
	Flush(ctx context.Context) error
	Close()
}

// KafkaPublisher 缓冲事件并按批/定时发送到 Kafka。以 UserID 为 key，同一用户的事件有序。
type KafkaPublisher struct {
	client producer
	cfg    KafkaConfig
	log    zerolog.Logger

	mu        sync.Mutex
	buffer    []*Event
	closed    bool
	closeOnce sync.Once
	wg        sync.WaitGroup
	stopCh    chan struct{}
	flushCh   chan struct{}
}

// NewKafkaPublisher 创建 Kafka 发布器。构造时不连接 broker，连接在首次发送时建立。
func NewKafkaPublisher(cfg KafkaConfig) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, errors.New("feedback: kafka brokers and topic are required")
	}
	cfg.defaults()

	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ClientID(cfg.ClientID),
		kgo.DefaultProduceTopic(cfg.Topic),
		kgo.RecordRetries(cfg.MaxRetries),
	}
	switch cfg.RequiredAcks {
	case -1:
		opts = append(opts, kgo.RequiredAcks(kgo.AllISRAcks()))
	case 0:
		// 幂等写要求 AllISRAcks
		opts = append(opts, kgo.RequiredAcks(kgo.NoAck()), kgo.DisableIdempotentWrite())
	default:
		opts = append(opts, kgo.RequiredAcks(kgo.LeaderAck()), kgo.DisableIdempotentWrite())
	}
	switch cfg.Compression {
	case "gzip":
		opts = append(opts, kgo.ProducerBatchCompression(kgo.GzipCompression()))
	case "snappy":
		opts = append(opts, kgo.ProducerBatchCompression(kgo.SnappyCompression()))
	case "lz4":
		opts = append(opts, kgo.ProducerBatchCompression(kgo.Lz4Compression()))
	case "zstd":
		opts = append(opts, kgo.ProducerBatchCompression(kgo.ZstdCompression()))
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, err
	}
	return newKafkaPublisher(client, cfg), nil
}

func newKafkaPublisher(client producer, cfg KafkaConfig) *KafkaPublisher {
	cfg.defaults()
	p := &KafkaPublisher{
		client:  client,
		cfg:     cfg,
		log:     cfg.Logger.With().Str("component", "feedback").Logger(),
		buffer:  make([]*Event, 0, cfg.BatchSize),
		stopCh:  make(chan struct{}),
		flushCh: make(chan struct{}, 1),
	}
	p.wg.Add(1)
	go p.flushLoop()
	return p
}

// Publish 非阻塞写入缓冲。缓冲已满时丢弃事件并返回 nil。
func (p *KafkaPublisher) Publish(_ context.Context, in core.Interaction) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	if len(p.buffer) >= p.cfg.MaxBuffer {
		metrics.FeedbackPublished.WithLabelValues("dropped").Inc()
		return nil
	}
	p.buffer = append(p.buffer, NewEvent(in))
	if len(p.buffer) >= p.cfg.BatchSize {
		select {
		case p.flushCh <- struct{}{}:
		default:
		}
	}
	return nil
}

// flushLoop 定时或按批刷新
func (p *KafkaPublisher) flushLoop() {
	defer p.wg.Done()
	ticker := time.NewTicker(p.cfg.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.flush()
		case <-p.flushCh:
			p.flush()
		case <-p.stopCh:
			return
		}
	}
}

// flush 把缓冲交给 Kafka 客户端异步发送。
func (p *KafkaPublisher) flush() {
	p.mu.Lock()
	if len(p.buffer) == 0 {
		p.mu.Unlock()
		return
	}
	events := p.buffer
	p.buffer = make([]*Event, 0, p.cfg.BatchSize)
	p.mu.Unlock()

	for _, ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			metrics.FeedbackPublished.WithLabelValues("failed").Inc()
			continue
		}
		record := &kgo.Record{
			Topic: p.cfg.Topic,
			Key:   []byte(ev.UserID),
			Value: data,
		}
		p.client.Produce(context.Background(), record, func(r *kgo.Record, err error) {
			if err != nil {
				metrics.FeedbackPublished.WithLabelValues("failed").Inc()
				p.log.Warn().Err(err).Str("user_id", string(r.Key)).Msg("produce feedback event")
				return
			}
			metrics.FeedbackPublished.WithLabelValues("sent").Inc()
		})
	}
}

// Close 优雅关闭：停止刷新循环，发送剩余缓冲并等待在途消息。
func (p *KafkaPublisher) Close() error {
	var err error
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()

		close(p.stopCh)
		p.wg.Wait()
		p.flush()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err = p.client.Flush(ctx)
		p.client.Close()
	})
	return err
}
