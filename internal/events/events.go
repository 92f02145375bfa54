package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"WalletChat/pkg/logger"
)

// Type 标识审计事件的类别。
type Type string

const (
	TypeLoginStarted     Type = "login.started"
	TypeLoginSucceeded   Type = "login.succeeded"
	TypeLoginFailed      Type = "login.failed"
	TypeLogout           Type = "logout"
	TypeTransferStarted  Type = "transfer.started"
	TypeTransferExecuted Type = "transfer.executed"
	TypeTransferFailed   Type = "transfer.failed"
	TypeTransferCanceled Type = "transfer.canceled"
	TypeFlowExpired      Type = "flow.expired"
)

// Event 是一次登录、登出或转账相关的审计事件。不得包含令牌或验证码。
type Event struct {
	ID         string            `json:"id"`
	Type       Type              `json:"type"`
	UserID     string            `json:"user_id"`
	FlowID     string            `json:"flow_id,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// New 创建带有唯一 ID 与时间戳的事件。
func New(typ Type, userID, flowID string, attrs map[string]string) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       typ,
		UserID:     userID,
		FlowID:     flowID,
		Attributes: attrs,
		OccurredAt: time.Now().UTC(),
	}
}

// Publisher 负责投递审计事件。
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// Emit 投递事件，失败只记录日志，不影响用户回复。
func Emit(ctx context.Context, p Publisher, event Event) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, event); err != nil {
		logger.Named("events").Warn("事件投递失败",
			slog.String("type", string(event.Type)),
			slog.String("event_id", event.ID),
			slog.Any("error", err))
	}
}

// Nop 丢弃所有事件。
type Nop struct{}

// Publish 实现 Publisher 接口。
func (Nop) Publish(context.Context, Event) error { return nil }

// Close 实现 Publisher 接口。
func (Nop) Close() error { return nil }
