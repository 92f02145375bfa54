package session

import (
	"context"
	"time"

	xerrors "WalletChat/internal/errors"
)

// ErrNotFound 表示用户没有会话。
var ErrNotFound = xerrors.New(xerrors.CodeNotFound, "会话不存在")

// Tokens 是登录成功后钱包后端下发的一组令牌，总是一起写入、一起清除。
type Tokens struct {
	AuthToken    string `json:"auth_token"`
	RefreshToken string `json:"refresh_token"`
	DeviceToken  string `json:"device_token"`
}

// Session 是单个用户的登录态。
type Session struct {
	UserID          string    `json:"user_id"`
	Email           string    `json:"email"`
	Tokens          Tokens    `json:"tokens"`
	AuthenticatedAt time.Time `json:"authenticated_at"`
}

// Authenticated 由令牌是否存在推导，不单独存储。
func (s *Session) Authenticated() bool {
	return s != nil && s.Tokens.AuthToken != ""
}

// Store 定义按用户隔离的会话存储。
type Store interface {
	// Get 在会话不存在时返回 ErrNotFound。
	Get(ctx context.Context, userID string) (*Session, error)
	// Put 原子地写入完整会话。
	Put(ctx context.Context, s *Session) error
	// Delete 原子地删除会话，会话不存在时返回 false。
	Delete(ctx context.Context, userID string) (bool, error)
	Close() error
}

// Lookup 返回用户会话，不存在时返回 nil 而不是错误。
func Lookup(ctx context.Context, store Store, userID string) (*Session, error) {
	s, err := store.Get(ctx, userID)
	if err != nil {
		if xerrors.HasCode(err, xerrors.CodeNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return s, nil
}

func validate(s *Session) error {
	if s == nil || s.UserID == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "会话缺少用户 ID")
	}
	if s.Tokens.AuthToken == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "会话缺少 auth_token")
	}
	return nil
}
