package flow

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"

	xerrors "WalletChat/internal/errors"
	storeredis "WalletChat/internal/storage/redis"
)

// RedisStore 以 JSON 保存流程，键的过期时间为 timeout+retention，
// 由 Redis 负责回收被放弃的流程。
type RedisStore struct {
	client goredis.UniversalClient
	keys   storeredis.Keyspace
	ttl    time.Duration
	owned  bool
}

// NewRedisStore 基于已有连接创建流程存储。owned 为 true 时 Close 会关闭连接。
func NewRedisStore(client goredis.UniversalClient, prefix string, timeout, retention time.Duration, owned bool) *RedisStore {
	return &RedisStore{
		client: client,
		keys:   storeredis.NewKeyspace(prefix, "flow"),
		ttl:    timeout + retention,
		owned:  owned,
	}
}

// Get 实现 Store 接口。
func (s *RedisStore) Get(ctx context.Context, userID string) (*State, error) {
	raw, err := s.client.Get(ctx, s.keys.Key(userID)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, ErrNotFound
		}
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取 Redis 流程失败")
	}
	var state State
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析 Redis 流程失败")
	}
	return &state, nil
}

// Create 使用 SETNX 保证每个用户至多一个流程。
func (s *RedisStore) Create(ctx context.Context, state *State) error {
	payload, err := s.encode(state)
	if err != nil {
		return err
	}
	ok, err := s.client.SetNX(ctx, s.keys.Key(state.UserID), payload, s.ttl).Result()
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "创建 Redis 流程失败")
	}
	if !ok {
		return ErrActive
	}
	return nil
}

// Save 覆盖流程内容并保留原有过期时间。
func (s *RedisStore) Save(ctx context.Context, state *State) error {
	payload, err := s.encode(state)
	if err != nil {
		return err
	}
	ok, err := s.client.SetXX(ctx, s.keys.Key(state.UserID), payload, goredis.KeepTTL).Result()
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入 Redis 流程失败")
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

// Delete 实现 Store 接口。
func (s *RedisStore) Delete(ctx context.Context, userID string) (bool, error) {
	n, err := s.client.Del(ctx, s.keys.Key(userID)).Result()
	if err != nil {
		return false, xerrors.Wrap(xerrors.CodeStorageFailure, err, "删除 Redis 流程失败")
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

func (s *RedisStore) encode(state *State) ([]byte, error) {
	if err := validateState(state); err != nil {
		return nil, err
	}
	payload, err := json.Marshal(state)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "序列化流程失败")
	}
	return payload, nil
}

var _ Store = (*RedisStore)(nil)
