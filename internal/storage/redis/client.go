package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Config 描述 Redis 的连接参数。
type Config struct {
	Address   string
	Password  string
	DB        int
	KeyPrefix string
}

// Open 建立 Redis 连接并通过 PING 确认可用。
func Open(ctx context.Context, cfg Config) (*goredis.Client, error) {
	if strings.TrimSpace(cfg.Address) == "" {
		return nil, errors.New("Redis address 不能为空")
	}
	client := goredis.NewClient(&goredis.Options{
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
	return client, nil
}

// Keyspace 为同一前缀下的键提供统一的拼接方式。
type Keyspace string

// NewKeyspace 组合前缀与子命名空间，忽略空段。
func NewKeyspace(parts ...string) Keyspace {
	kept := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.Trim(part, ": "); part != "" {
			kept = append(kept, part)
		}
	}
	return Keyspace(strings.Join(kept, ":"))
}

// Key 返回命名空间下的完整键名。
func (k Keyspace) Key(id string) string {
	if k == "" {
		return id
	}
	return string(k) + ":" + id
}

// Pattern 返回匹配命名空间下所有键的 SCAN 模式。
func (k Keyspace) Pattern() string {
	return k.Key("*")
}
