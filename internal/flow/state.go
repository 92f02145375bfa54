package flow

import (
	"context"
	"time"

	"github.com/google/uuid"

	xerrors "WalletChat/internal/errors"
)

// Kind 区分登录与转账两类流程。
type Kind string

const (
	KindLogin    Kind = "login"
	KindTransfer Kind = "transfer"
)

// Stage 是流程当前等待的输入。
type Stage string

const (
	StageEmail Stage = "email"
	StageOTP   Stage = "otp"

	StageNetwork      Stage = "network_name"
	StageToken        Stage = "token_address"
	StageQuantity     Stage = "quantity"
	StageRecipient    Stage = "recipient_address"
	StageConfirmation Stage = "confirmation"
)

var (
	// ErrNotFound 表示用户没有进行中的流程。
	ErrNotFound = xerrors.New(xerrors.CodeNotFound, "流程不存在")
	// ErrActive 表示用户已有进行中的流程，新流程不会被创建。
	ErrActive = xerrors.New(xerrors.CodeFlowActive, "用户已有进行中的流程")
)

// TransferData 按用户输入原样累积转账参数。
type TransferData struct {
	NetworkName      string `json:"network_name"`
	TokenAddress     string `json:"token_address"`
	Quantity         string `json:"quantity"`
	RecipientAddress string `json:"recipient_address"`
}

// State 是单个用户的多步流程状态。
type State struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Kind      Kind      `json:"kind"`
	Stage     Stage     `json:"stage"`
	Attempts  int       `json:"attempts"`
	StartTime time.Time `json:"start_time"`

	// 仅登录流程使用。
	Email        string `json:"email,omitempty"`
	RequestToken string `json:"request_token,omitempty"`

	// 仅转账流程使用。
	Transfer TransferData `json:"transfer"`
}

func newState(userID string, kind Kind, start time.Time) *State {
	stage := StageEmail
	if kind == KindTransfer {
		stage = StageNetwork
	}
	return &State{
		ID:        uuid.NewString(),
		UserID:    userID,
		Kind:      kind,
		Stage:     stage,
		StartTime: start,
	}
}

// Expired 判断从流程创建至 now 是否已超过 timeout。
func (s *State) Expired(now time.Time, timeout time.Duration) bool {
	return timeout > 0 && now.Sub(s.StartTime) > timeout
}

// Store 保存每个用户至多一个流程。
type Store interface {
	// Get 在没有流程时返回 ErrNotFound。
	Get(ctx context.Context, userID string) (*State, error)
	// Create 在用户已有流程时返回 ErrActive 且不修改已有状态。
	Create(ctx context.Context, state *State) error
	// Save 覆盖已有流程。
	Save(ctx context.Context, state *State) error
	// Delete 删除流程，不存在时返回 false。
	Delete(ctx context.Context, userID string) (bool, error)
	Close() error
}

func validateState(state *State) error {
	if state == nil || state.UserID == "" || state.ID == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "流程缺少用户或 ID")
	}
	return nil
}
