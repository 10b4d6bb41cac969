// Package feedback 把用户反馈作为事件发布到外部事件流（Kafka），供离线训练与分析消费。
//
// 发布是尽力而为的：调用方不会因为事件流不可用而失败。
package feedback

import (
	"context"
	"time"

	"github.com/rushteam/recserve/core"
)

// Event 是一条反馈事件（轻量级，只包含必要信息）。
type Event struct {
	UserID          string  `json:"user_id"`
	ProductID       string  `json:"product_id"`
	InteractionType string  `json:"interaction_type"`
	Weight          float64 `json:"weight"`
	Timestamp       int64   `json:"timestamp"` // Unix 毫秒
}

// NewEvent 由交互记录构造事件。
func NewEvent(in core.Interaction) *Event {
	ts := in.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return &Event{
		UserID:          in.UserID,
		ProductID:       in.ProductID,
		InteractionType: string(in.Kind),
		Weight:          in.Kind.Weight(),
		Timestamp:       ts.UnixMilli(),
	}
}

// Publisher 反馈事件发布器（异步非阻塞）。
type Publisher interface {
	Publish(ctx context.Context, in core.Interaction) error
	// Close 优雅关闭（等待缓冲数据发送完成）
	Close() error
}

// Nop 丢弃所有事件，未配置 Kafka 时使用。
type Nop struct{}

func (Nop) Publish(context.Context, core.Interaction) error { return nil }
func (Nop) Close() error                                    { return nil }
