package session

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"

	xerrors "WalletChat/internal/errors"
	storeredis "WalletChat/internal/storage/redis"
)

// RedisStore 以 JSON 形式把会话保存在 Redis 中，可选设置过期时间。
type RedisStore struct {
	client goredis.UniversalClient
	keys   storeredis.Keyspace
	ttl    time.Duration
	owned  bool
}

// RedisOption 定义 RedisStore 的可选配置。
type RedisOption func(*RedisStore)

// WithRedisTTL 设置会话过期时间。
func WithRedisTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithOwnedClient 表示 Close 时需要关闭底层连接。
func WithOwnedClient() RedisOption {
	return func(s *RedisStore) { s.owned = true }
}

// NewRedisStore 基于已有连接创建会话存储。
func NewRedisStore(client goredis.UniversalClient, prefix string, opts ...RedisOption) *RedisStore {
	store := &RedisStore{client: client, keys: storeredis.NewKeyspace(prefix, "session")}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store
}

// Get 实现 Store 接口。
func (s *RedisStore) Get(ctx context.Context, userID string) (*Session, error) {
	raw, err := s.client.Get(ctx, s.keys.Key(userID)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, ErrNotFound
		}
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取 Redis 会话失败")
	}
	var sess Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析 Redis 会话失败")
	}
	return &sess, nil
}

// Put 实现 Store 接口。
func (s *RedisStore) Put(ctx context.Context, sess *Session) error {
	if err := validate(sess); err != nil {
		return err
	}
	stored := *sess
	if stored.AuthenticatedAt.IsZero() {
		stored.AuthenticatedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(stored)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "序列化会话失败")
	}
	if err := s.client.Set(ctx, s.keys.Key(sess.UserID), payload, s.ttl).Err(); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入 Redis 会话失败")
	}
	return nil
}

// Delete 实现 Store 接口。
func (s *RedisStore) Delete(ctx context.Context, userID string) (bool, error) {
	n, err := s.client.Del(ctx, s.keys.Key(userID)).Result()
	if err != nil {
		return false, xerrors.Wrap(xerrors.CodeStorageFailure, err, "删除 Redis 会话失败")
	}
	return n > 0, nil
}

// Close 实现 Store 接口。
func (s *RedisStore) Close() error {
	if !s.owned {
		return nil
	}
	return s.client.Close()
}

var _ Store = (*RedisStore)(nil)
