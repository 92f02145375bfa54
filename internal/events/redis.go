package events

import (
	"context"
	"encoding/json"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	xerrors "WalletChat/internal/errors"
)

// RedisPublisher 使用 Redis list 保存事件，消费方通过 BRPOP 读取。
type RedisPublisher struct {
	client goredis.UniversalClient
	queue  string
	maxLen int64
	owned  bool
}

// NewRedisPublisher 创建 Redis 事件投递器。maxLen 大于 0 时会裁剪列表长度。
func NewRedisPublisher(client goredis.UniversalClient, queue string, maxLen int64, owned bool) (*RedisPublisher, error) {
	if client == nil {
		return nil, fmt.Errorf("Redis 客户端未初始化")
	}
	if queue == "" {
		queue = "walletchat:events"
	}
	return &RedisPublisher{client: client, queue: queue, maxLen: maxLen, owned: owned}, nil
}

// Publish 实现 Publisher 接口。
func (p *RedisPublisher) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return xerrors.Wrap(xerrors.CodePublishFailure, err, "序列化事件失败")
	}
	pipe := p.client.TxPipeline()
	pipe.LPush(ctx, p.queue, payload)
	if p.maxLen > 0 {
		pipe.LTrim(ctx, p.queue, 0, p.maxLen-1)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return xerrors.Wrap(xerrors.CodePublishFailure, err, "Redis 发布事件失败")
	}
	return nil
}

// Close 实现 Publisher 接口。
func (p *RedisPublisher) Close() error {
	if !p.owned {
		return nil
	}
	return p.client.Close()
}
