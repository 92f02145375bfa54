package flow

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	xerrors "WalletChat/internal/errors"
	"WalletChat/internal/events"
	"WalletChat/internal/observability/alerting"
	"WalletChat/internal/observability/metrics"
	"WalletChat/internal/session"
	"WalletChat/internal/storage/mysql"
	"WalletChat/internal/wallet"
	"WalletChat/pkg/logger"
)

const (
	// DefaultTimeout 是流程从创建到放弃的时长。
	DefaultTimeout = 15 * time.Minute
	// DefaultMaxAttempts 是登录流程每个阶段允许的格式错误次数。
	DefaultMaxAttempts = 3
)

// Wallet 是状态机需要的钱包后端能力。
type Wallet interface {
	RequestEmailOTP(ctx context.Context, email string) (*wallet.OTPChallenge, error)
	VerifyEmailOTP(ctx context.Context, email, otp, token string) (*wallet.AuthTokens, error)
	ExecuteTransfer(ctx context.Context, token string, req wallet.TransferRequest) (*wallet.TransferReceipt, error)
}

// RecipientInspector 判断收款地址在指定网络上是否为合约。
type RecipientInspector interface {
	IsContract(ctx context.Context, network, address string) (bool, error)
}

// Machine 驱动登录与转账两类多步流程。同一用户的操作串行执行。
type Machine struct {
	flows       Store
	sessions    session.Store
	wallet      Wallet
	history     mysql.TransferRepository
	publisher   events.Publisher
	alerts      alerting.Dispatcher
	inspector   RecipientInspector
	locks       *Locker
	timeout     time.Duration
	maxAttempts int
	networks    []string
	now         func() time.Time
	log         *slog.Logger
}

// Option 定义 Machine 的可选配置。
type Option func(*Machine)

// WithHistory 记录每次确认后的转账结果。
func WithHistory(repo mysql.TransferRepository) Option {
	return func(m *Machine) { m.history = repo }
}

// WithPublisher 设置审计事件的投递方式。
func WithPublisher(p events.Publisher) Option {
	return func(m *Machine) { m.publisher = p }
}

// WithAlerts 设置上游故障的告警调度器。
func WithAlerts(d alerting.Dispatcher) Option {
	return func(m *Machine) { m.alerts = d }
}

// WithInspector 在确认前检查收款地址。
func WithInspector(i RecipientInspector) Option {
	return func(m *Machine) { m.inspector = i }
}

// WithTimeout 设置流程超时时间。
func WithTimeout(d time.Duration) Option {
	return func(m *Machine) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// WithMaxAttempts 设置登录流程的最大错误次数。
func WithMaxAttempts(n int) Option {
	return func(m *Machine) {
		if n > 0 {
			m.maxAttempts = n
		}
	}
}

// WithNetworks 设置允许转账的网络列表。
func WithNetworks(networks []string) Option {
	return func(m *Machine) {
		var upper []string
		for _, n := range networks {
			if n = strings.ToUpper(strings.TrimSpace(n)); n != "" {
				upper = append(upper, n)
			}
		}
		if len(upper) > 0 {
			m.networks = upper
		}
	}
}

// WithClock 替换时间来源，主要用于测试。
func WithClock(now func() time.Time) Option {
	return func(m *Machine) {
		if now != nil {
			m.now = now
		}
	}
}

// NewMachine 创建流程状态机。
func NewMachine(flows Store, sessions session.Store, w Wallet, opts ...Option) *Machine {
	m := &Machine{
		flows:       flows,
		sessions:    sessions,
		wallet:      w,
		publisher:   events.Nop{},
		locks:       NewLocker(),
		timeout:     DefaultTimeout,
		maxAttempts: DefaultMaxAttempts,
		networks:    DefaultNetworks,
		now:         time.Now,
		log:         logger.Named("flow"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// Networks 返回允许转账的网络。
func (m *Machine) Networks() []string {
	return append([]string(nil), m.networks...)
}

// active 返回用户当前有效的流程。已超时的流程被删除并视为不存在。
func (m *Machine) active(ctx context.Context, userID string) (*State, error) {
	state, err := m.flows.Get(ctx, userID)
	if err != nil {
		if xerrors.HasCode(err, xerrors.CodeNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if state.Expired(m.now(), m.timeout) {
		if _, err := m.flows.Delete(ctx, userID); err != nil {
			return nil, err
		}
		m.expired(ctx, state)
		return nil, nil
	}
	return state, nil
}

func (m *Machine) expired(ctx context.Context, state *State) {
	metrics.ObserveFlow(string(state.Kind), "expired")
	events.Emit(ctx, m.publisher, events.New(events.TypeFlowExpired, state.UserID, state.ID,
		map[string]string{"kind": string(state.Kind), "stage": string(state.Stage)}))
}

// StartLogin 处理 /login 命令。
func (m *Machine) StartLogin(ctx context.Context, userID string) ([]string, error) {
	unlock := m.locks.Lock(userID)
	defer unlock()

	sess, err := session.Lookup(ctx, m.sessions, userID)
	if err != nil {
		return nil, err
	}
	if sess.Authenticated() {
		return []string{MsgAlreadyLoggedIn}, nil
	}
	existing, err := m.active(ctx, userID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return []string{MsgLoginInProgress}, nil
	}

	state := newState(userID, KindLogin, m.now())
	if err := m.flows.Create(ctx, state); err != nil {
		if xerrors.HasCode(err, xerrors.CodeFlowActive) {
			return []string{MsgLoginInProgress}, nil
		}
		return nil, err
	}
	metrics.ObserveFlow(string(KindLogin), "started")
	events.Emit(ctx, m.publisher, events.New(events.TypeLoginStarted, userID, state.ID, nil))
	return []string{MsgEnterEmail}, nil
}

// StartTransfer 处理 /transfer 命令，要求用户已登录。
func (m *Machine) StartTransfer(ctx context.Context, userID string) ([]string, error) {
	unlock := m.locks.Lock(userID)
	defer unlock()

	sess, err := session.Lookup(ctx, m.sessions, userID)
	if err != nil {
		return nil, err
	}
	if !sess.Authenticated() {
		return []string{MsgLoginRequired}, nil
	}
	existing, err := m.active(ctx, userID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return []string{MsgProcessInProgress}, nil
	}

	state := newState(userID, KindTransfer, m.now())
	if err := m.flows.Create(ctx, state); err != nil {
		if xerrors.HasCode(err, xerrors.CodeFlowActive) {
			return []string{MsgProcessInProgress}, nil
		}
		return nil, err
	}
	metrics.ObserveFlow(string(KindTransfer), "started")
	events.Emit(ctx, m.publisher, events.New(events.TypeTransferStarted, userID, state.ID, nil))
	return []string{MsgTransferStart}, nil
}

// Cancel 处理 /cancel 命令，删除用户当前的流程。
func (m *Machine) Cancel(ctx context.Context, userID string) ([]string, error) {
	unlock := m.locks.Lock(userID)
	defer unlock()

	state, err := m.active(ctx, userID)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return []string{MsgNothingToCancel}, nil
	}
	if _, err := m.flows.Delete(ctx, userID); err != nil {
		return nil, err
	}
	metrics.ObserveFlow(string(state.Kind), "canceled")
	if state.Kind == KindTransfer {
		events.Emit(ctx, m.publisher, events.New(events.TypeTransferCanceled, userID, state.ID, nil))
		return []string{MsgTransferCanceled}, nil
	}
	events.Emit(ctx, m.publisher, events.New(events.TypeLoginFailed, userID, state.ID,
		map[string]string{"reason": "canceled"}))
	return []string{MsgLoginCanceled}, nil
}

// Logout 删除用户会话及其进行中的流程，其他用户不受影响。
func (m *Machine) Logout(ctx context.Context, userID string) ([]string, error) {
	unlock := m.locks.Lock(userID)
	defer unlock()

	deleted, err := m.sessions.Delete(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !deleted {
		return []string{MsgNotLoggedIn}, nil
	}
	if _, err := m.flows.Delete(ctx, userID); err != nil {
		m.log.Warn("登出时删除流程失败", slog.String("user_id", userID), slog.Any("error", err))
	}
	logger.Audit().Info("logout", slog.String("user_id", userID))
	events.Emit(ctx, m.publisher, events.New(events.TypeLogout, userID, "", nil))
	return []string{MsgLoggedOut}, nil
}

// Handle 把一条普通文本交给用户当前的流程。用户没有流程时 handled 为 false。
func (m *Machine) Handle(ctx context.Context, userID, text string) (replies []string, handled bool, err error) {
	unlock := m.locks.Lock(userID)
	defer unlock()

	state, err := m.flows.Get(ctx, userID)
	if err != nil {
		if xerrors.HasCode(err, xerrors.CodeNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	if state.Expired(m.now(), m.timeout) {
		if _, err := m.flows.Delete(ctx, userID); err != nil {
			return nil, true, err
		}
		m.expired(ctx, state)
		return []string{timedOutMessage(state.Kind)}, true, nil
	}

	input := strings.TrimSpace(text)
	switch state.Kind {
	case KindLogin:
		replies, err = m.handleLogin(ctx, state, input)
	case KindTransfer:
		replies, err = m.handleTransfer(ctx, state, input)
	default:
		_, _ = m.flows.Delete(ctx, userID)
		err = xerrors.New(xerrors.CodeInvalidArgument, "未知的流程类型", xerrors.WithMetadata("kind", string(state.Kind)))
	}
	return replies, true, err
}

func (m *Machine) handleLogin(ctx context.Context, state *State, input string) ([]string, error) {
	switch state.Stage {
	case StageEmail:
		if !ValidEmail(input) {
			return m.rejectLoginInput(ctx, state, MsgInvalidEmail, MsgTooManyEmail)
		}
		challenge, err := m.wallet.RequestEmailOTP(ctx, input)
		metrics.ObserveUpstream("wallet", err)
		if err != nil {
			return m.abortLogin(ctx, state, "request_otp", err, MsgLoginRequestFailed)
		}
		state.Stage = StageOTP
		state.Email = input
		state.RequestToken = challenge.Token
		state.Attempts = 0
		if err := m.flows.Save(ctx, state); err != nil {
			return nil, err
		}
		return []string{MsgOTPSent}, nil

	case StageOTP:
		if !ValidOTP(input) {
			return m.rejectLoginInput(ctx, state, MsgInvalidOTP, MsgTooManyOTP)
		}
		tokens, err := m.wallet.VerifyEmailOTP(ctx, state.Email, input, state.RequestToken)
		metrics.ObserveUpstream("wallet", err)
		if err != nil {
			return m.abortLogin(ctx, state, "verify_otp", err, MsgOTPFailed)
		}
		if _, err := m.flows.Delete(ctx, state.UserID); err != nil {
			return nil, err
		}
		sess := &session.Session{
			UserID: state.UserID,
			Email:  state.Email,
			Tokens: session.Tokens{
				AuthToken:    tokens.AuthToken,
				RefreshToken: tokens.RefreshToken,
				DeviceToken:  tokens.DeviceToken,
			},
			AuthenticatedAt: m.now(),
		}
		if err := m.sessions.Put(ctx, sess); err != nil {
			m.log.Error("保存会话失败", slog.String("user_id", state.UserID), slog.Any("error", err))
			alerting.Report(ctx, m.alerts, "login.store_session", state.UserID, err)
			metrics.ObserveFlow(string(KindLogin), "aborted")
			return []string{MsgLoginError}, nil
		}
		metrics.ObserveFlow(string(KindLogin), "completed")
		logger.Audit().Info("login succeeded",
			slog.String("user_id", state.UserID),
			slog.String("email", logger.MaskEmail(state.Email)))
		events.Emit(ctx, m.publisher, events.New(events.TypeLoginSucceeded, state.UserID, state.ID,
			map[string]string{"email": logger.MaskEmail(state.Email)}))
		return []string{MsgLoginSuccess}, nil
	}

	_, _ = m.flows.Delete(ctx, state.UserID)
	return nil, xerrors.New(xerrors.CodeInvalidArgument, "未知的登录阶段", xerrors.WithMetadata("stage", string(state.Stage)))
}

// rejectLoginInput 累加错误次数，达到上限时结束流程。
func (m *Machine) rejectLoginInput(ctx context.Context, state *State, retry, giveUp string) ([]string, error) {
	state.Attempts++
	if state.Attempts >= m.maxAttempts {
		if _, err := m.flows.Delete(ctx, state.UserID); err != nil {
			return nil, err
		}
		metrics.ObserveFlow(string(KindLogin), "aborted")
		events.Emit(ctx, m.publisher, events.New(events.TypeLoginFailed, state.UserID, state.ID,
			map[string]string{"reason": "too_many_attempts", "stage": string(state.Stage)}))
		return []string{giveUp}, nil
	}
	if err := m.flows.Save(ctx, state); err != nil {
		return nil, err
	}
	return []string{retry}, nil
}

// abortLogin 在钱包调用失败后结束登录流程。上游拒绝使用 rejected 文本，其余错误使用通用文本。
func (m *Machine) abortLogin(ctx context.Context, state *State, op string, cause error, rejected string) ([]string, error) {
	if _, err := m.flows.Delete(ctx, state.UserID); err != nil {
		return nil, err
	}
	metrics.ObserveFlow(string(KindLogin), "aborted")
	m.log.Warn("登录调用失败",
		slog.String("user_id", state.UserID),
		slog.String("operation", op),
		slog.String("code", string(xerrors.CodeOf(cause))),
		slog.Any("error", cause))
	alerting.Report(ctx, m.alerts, "login."+op, state.UserID, cause)
	events.Emit(ctx, m.publisher, events.New(events.TypeLoginFailed, state.UserID, state.ID,
		map[string]string{"reason": op, "code": string(xerrors.CodeOf(cause))}))
	if wallet.IsRejected(cause) {
		return []string{rejected}, nil
	}
	return []string{MsgLoginError}, nil
}

func (m *Machine) handleTransfer(ctx context.Context, state *State, input string) ([]string, error) {
	sess, err := session.Lookup(ctx, m.sessions, state.UserID)
	if err != nil {
		return nil, err
	}
	if !sess.Authenticated() {
		if _, err := m.flows.Delete(ctx, state.UserID); err != nil {
			return nil, err
		}
		metrics.ObserveFlow(string(KindTransfer), "aborted")
		return []string{MsgLoginRequired}, nil
	}

	data := &state.Transfer
	switch state.Stage {
	case StageNetwork:
		network, ok := NormalizeNetwork(input, m.networks)
		if !ok {
			return []string{invalidNetworkMessage(m.networks)}, nil
		}
		data.NetworkName = network
		return m.advance(ctx, state, StageToken, MsgEnterToken)

	case StageToken:
		data.TokenAddress = NormalizeTokenAddress(input)
		return m.advance(ctx, state, StageQuantity, MsgEnterQuantity)

	case StageQuantity:
		if !ValidQuantity(input) {
			return []string{MsgInvalidQuantity}, nil
		}
		data.Quantity = input
		return m.advance(ctx, state, StageRecipient, MsgEnterRecipient)

	case StageRecipient:
		if !ValidRecipient(input) {
			return []string{MsgInvalidRecipient}, nil
		}
		data.RecipientAddress = input
		return m.advance(ctx, state, StageConfirmation, confirmationMessage(*data, m.isContract(ctx, *data)))

	case StageConfirmation:
		switch strings.ToUpper(input) {
		case "CANCEL":
			if _, err := m.flows.Delete(ctx, state.UserID); err != nil {
				return nil, err
			}
			metrics.ObserveFlow(string(KindTransfer), "canceled")
			events.Emit(ctx, m.publisher, events.New(events.TypeTransferCanceled, state.UserID, state.ID, nil))
			return []string{MsgTransferCanceled}, nil
		case "CONFIRM":
			return m.executeTransfer(ctx, state, sess)
		default:
			return []string{MsgConfirmPrompt}, nil
		}
	}

	_, _ = m.flows.Delete(ctx, state.UserID)
	return nil, xerrors.New(xerrors.CodeInvalidArgument, "未知的转账阶段", xerrors.WithMetadata("stage", string(state.Stage)))
}

func (m *Machine) advance(ctx context.Context, state *State, next Stage, reply string) ([]string, error) {
	state.Stage = next
	if err := m.flows.Save(ctx, state); err != nil {
		return nil, err
	}
	return []string{reply}, nil
}

// isContract 检查失败只记录日志，不影响流程。
func (m *Machine) isContract(ctx context.Context, data TransferData) bool {
	if m.inspector == nil {
		return false
	}
	contract, err := m.inspector.IsContract(ctx, data.NetworkName, data.RecipientAddress)
	if err != nil {
		level := slog.LevelWarn
		if xerrors.HasCode(err, xerrors.CodeNotFound) {
			level = slog.LevelDebug
		}
		m.log.Log(ctx, level, "收款地址检查失败",
			slog.String("network", data.NetworkName),
			slog.String("recipient", logger.MaskAddress(data.RecipientAddress)),
			slog.Any("error", err))
		return false
	}
	return contract
}

// executeTransfer 先删除流程再调用钱包，保证每次确认至多提交一次。
func (m *Machine) executeTransfer(ctx context.Context, state *State, sess *session.Session) ([]string, error) {
	if _, err := m.flows.Delete(ctx, state.UserID); err != nil {
		return nil, err
	}

	data := state.Transfer
	receipt, err := m.wallet.ExecuteTransfer(ctx, sess.Tokens.AuthToken, wallet.TransferRequest{
		NetworkName:      data.NetworkName,
		TokenAddress:     data.TokenAddress,
		Quantity:         data.Quantity,
		RecipientAddress: data.RecipientAddress,
	})
	metrics.ObserveUpstream("wallet", err)

	record := mysql.TransferRecord{
		ID:               uuid.NewString(),
		FlowID:           state.ID,
		UserID:           state.UserID,
		NetworkName:      data.NetworkName,
		TokenAddress:     data.TokenAddress,
		Quantity:         data.Quantity,
		RecipientAddress: data.RecipientAddress,
		CreatedAt:        m.now().Unix(),
	}
	attrs := map[string]string{
		"network":   data.NetworkName,
		"quantity":  data.Quantity,
		"recipient": logger.MaskAddress(data.RecipientAddress),
	}

	var result string
	eventType := events.TypeTransferFailed
	switch {
	case err == nil:
		record.Status = mysql.TransferSucceeded
		if receipt != nil {
			record.OrderID = receipt.OrderID
		}
		attrs["order_id"] = record.OrderID
		eventType = events.TypeTransferExecuted
		result = transferSucceededMessage(record.OrderID)
		metrics.ObserveFlow(string(KindTransfer), "completed")
	case wallet.IsRejected(err):
		record.Status = mysql.TransferFailed
		record.Error = wallet.UpstreamMessage(err)
		attrs["error"] = record.Error
		result = transferFailedMessage(record.Error)
		metrics.ObserveFlow(string(KindTransfer), "failed")
	default:
		record.Status = mysql.TransferErrored
		record.Error = err.Error()
		attrs["code"] = string(xerrors.CodeOf(err))
		result = MsgTransferError
		metrics.ObserveFlow(string(KindTransfer), "failed")
		alerting.Report(ctx, m.alerts, "transfer.execute", state.UserID, err)
	}

	logger.Audit().Info("transfer submitted",
		slog.String("user_id", state.UserID),
		slog.String("flow_id", state.ID),
		slog.String("status", string(record.Status)),
		slog.String("network", data.NetworkName),
		slog.String("quantity", data.Quantity),
		slog.String("recipient", logger.MaskAddress(data.RecipientAddress)),
		slog.String("order_id", record.OrderID))
	m.recordHistory(ctx, record)
	events.Emit(ctx, m.publisher, events.New(eventType, state.UserID, state.ID, attrs))

	return []string{MsgProcessingTransfer, result}, nil
}

func (m *Machine) recordHistory(ctx context.Context, record mysql.TransferRecord) {
	if m.history == nil {
		return
	}
	if err := m.history.Save(ctx, record); err != nil {
		m.log.Error("保存转账记录失败",
			slog.String("flow_id", record.FlowID),
			slog.String("status", string(record.Status)),
			slog.Any("error", err))
		alerting.Report(ctx, m.alerts, "transfer.history", record.UserID, err)
	}
}

// History 返回用户最近的转账记录。
func (m *Machine) History(ctx context.Context, userID string, limit int) ([]mysql.TransferRecord, error) {
	if m.history == nil {
		return nil, nil
	}
	return m.history.ListByUser(ctx, userID, limit)
}
