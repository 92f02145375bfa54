package agent

import (
	"context"
	"log/slog"
	"strings"
	"time"

	xerrors "WalletChat/internal/errors"
	"WalletChat/internal/flow"
	"WalletChat/internal/intent"
	"WalletChat/internal/knowledge"
	"WalletChat/internal/observability/alerting"
	"WalletChat/internal/observability/metrics"
	"WalletChat/internal/session"
	"WalletChat/pkg/logger"
)

// Message 是聊天通道转发来的一条用户消息。
type Message struct {
	UserID string `json:"user_id"`
	Text   string `json:"text"`
}

// Button 是附带在回复上的快捷命令按钮。
type Button struct {
	Label   string `json:"label"`
	Command string `json:"command"`
}

// Reply 是对一条消息的全部回复，按顺序发送给用户。
type Reply struct {
	Messages []string `json:"messages"`
	Buttons  []Button `json:"buttons,omitempty"`
}

// Invoker 以用户令牌调用钱包 API 的任意接口。
type Invoker interface {
	Invoke(ctx context.Context, path, token, method string, body any) (any, error)
}

// Resolver 负责意图分类与结果总结。
type Resolver interface {
	Classify(ctx context.Context, documentation, message string) (*intent.Intent, error)
	Summarize(ctx context.Context, response any, message string, in *intent.Intent) (string, error)
}

// Agent 是消息路由：命令交给状态机，普通文本优先交给进行中的流程，
// 其次对已登录用户走意图解析流水线。
type Agent struct {
	machine      *flow.Machine
	sessions     session.Store
	wallet       Invoker
	resolver     Resolver
	knowledge    knowledge.Provider
	alerts       alerting.Dispatcher
	historyLimit int
	log          *slog.Logger
}

// Option 定义可选的 Agent 配置。
type Option func(*Agent)

// defaultHistoryLimit 是 /history 展示的转账条数。
const defaultHistoryLimit = 5

// WithKnowledgeProvider 配置接口文档检索，未配置时直接把原始消息交给分类器。
func WithKnowledgeProvider(provider knowledge.Provider) Option {
	return func(a *Agent) {
		if provider != nil {
			a.knowledge = provider
		}
	}
}

// WithAlerts 设置告警调度器。
func WithAlerts(d alerting.Dispatcher) Option {
	return func(a *Agent) { a.alerts = d }
}

// New 创建一个 Agent。
func New(machine *flow.Machine, sessions session.Store, wallet Invoker, resolver Resolver, opts ...Option) *Agent {
	ag := &Agent{
		machine:      machine,
		sessions:     sessions,
		wallet:       wallet,
		resolver:     resolver,
		knowledge:    knowledge.Passthrough,
		historyLimit: defaultHistoryLimit,
		log:          logger.Named("agent"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(ag)
		}
	}
	return ag
}

// Handle 处理一条消息。只有输入本身非法时返回错误，业务失败都会转换为回复文本。
func (a *Agent) Handle(ctx context.Context, msg Message) (*Reply, error) {
	userID := strings.TrimSpace(msg.UserID)
	if userID == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "user_id 不能为空")
	}
	text := strings.TrimSpace(msg.Text)

	start := time.Now()
	kind := "text"
	var (
		reply *Reply
		err   error
	)
	if name, ok := parseCommand(text); ok {
		kind = name
		reply, err = a.dispatch(ctx, userID, name)
	} else {
		reply, err = a.handleText(ctx, userID, text)
	}

	outcome := "ok"
	if err != nil {
		outcome = "error"
		a.log.Error("处理消息失败",
			slog.String("user_id", userID),
			slog.String("kind", kind),
			slog.String("code", string(xerrors.CodeOf(err))),
			slog.Any("error", err))
		alerting.Report(ctx, a.alerts, "message."+kind, userID, err)
		reply = textReply(MsgGenericError)
	}
	metrics.ObserveMessage(kind, outcome, time.Since(start))
	return reply, nil
}

// parseCommand 识别 /command 或 /command@bot 形式的命令，返回小写命令名。
func parseCommand(text string) (string, bool) {
	if !strings.HasPrefix(text, "/") {
		return "", false
	}
	name := strings.Fields(text)[0][1:]
	if at := strings.IndexByte(name, '@'); at >= 0 {
		name = name[:at]
	}
	return strings.ToLower(name), true
}

func (a *Agent) dispatch(ctx context.Context, userID, name string) (*Reply, error) {
	switch name {
	case "start":
		return a.start(ctx, userID)
	case "help":
		return a.help(ctx, userID)
	case "login":
		return wrap(a.machine.StartLogin(ctx, userID))
	case "logout":
		return wrap(a.machine.Logout(ctx, userID))
	case "transfer":
		return wrap(a.machine.StartTransfer(ctx, userID))
	case "cancel":
		return wrap(a.machine.Cancel(ctx, userID))
	case "history":
		return a.history(ctx, userID)
	default:
		return textReply(MsgUnknownCommand), nil
	}
}

func wrap(messages []string, err error) (*Reply, error) {
	if err != nil {
		return nil, err
	}
	return &Reply{Messages: messages}, nil
}

func textReply(messages ...string) *Reply {
	return &Reply{Messages: messages}
}

func (a *Agent) authenticated(ctx context.Context, userID string) (*session.Session, error) {
	sess, err := session.Lookup(ctx, a.sessions, userID)
	if err != nil {
		return nil, err
	}
	if !sess.Authenticated() {
		return nil, nil
	}
	return sess, nil
}

func (a *Agent) start(ctx context.Context, userID string) (*Reply, error) {
	sess, err := a.authenticated(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sess != nil {
		return textReply(MsgAlreadyAuthenticated), nil
	}
	return textReply(MsgWelcome, MsgWelcomeLogin), nil
}

func (a *Agent) help(ctx context.Context, userID string) (*Reply, error) {
	sess, err := a.authenticated(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sess != nil {
		return textReply(helpText(), MsgAlreadyAuthenticated), nil
	}
	return &Reply{
		Messages: []string{helpText(), MsgLoginToStart},
		Buttons:  []Button{{Label: "Login", Command: "/login"}, {Label: "Logout", Command: "/logout"}},
	}, nil
}

func (a *Agent) history(ctx context.Context, userID string) (*Reply, error) {
	sess, err := a.authenticated(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return textReply(flow.MsgLoginRequired), nil
	}
	records, err := a.machine.History(ctx, userID, a.historyLimit)
	if err != nil {
		return nil, err
	}
	return textReply(formatHistory(records)), nil
}

// handleText 依次尝试进行中的流程与意图解析流水线。
func (a *Agent) handleText(ctx context.Context, userID, text string) (*Reply, error) {
	replies, handled, err := a.machine.Handle(ctx, userID, text)
	if err != nil {
		return nil, err
	}
	if handled {
		return &Reply{Messages: replies}, nil
	}

	sess, err := a.authenticated(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return textReply(MsgLoginHint), nil
	}
	if text == "" {
		return textReply(MsgEmptyMessage), nil
	}
	return a.runIntent(ctx, sess, text)
}

// runIntent 检索文档、分类、调用钱包 API 并总结结果。无效或不完整的意图不会触达钱包 API。
func (a *Agent) runIntent(ctx context.Context, sess *session.Session, text string) (*Reply, error) {
	documentation, err := a.knowledge.Lookup(ctx, text)
	metrics.ObserveUpstream("knowledge", err)
	if err != nil {
		return nil, err
	}

	resolved, err := a.resolver.Classify(ctx, documentation, text)
	metrics.ObserveUpstream("llm", err)
	if err != nil {
		if xerrors.HasCode(err, xerrors.CodeIntentInvalid) {
			a.log.Info("意图无效", slog.String("user_id", sess.UserID), slog.Any("error", err))
			return textReply(MsgNotUnderstood), nil
		}
		return nil, err
	}
	if !resolved.ValidInfo {
		return textReply(MsgNotUnderstood), nil
	}
	if !resolved.UserProvidedAll {
		return textReply(MsgNeedMoreInfo + resolved.MissingData), nil
	}

	body, err := resolved.Body()
	if err != nil {
		return textReply(MsgNotUnderstood), nil
	}
	response, err := a.wallet.Invoke(ctx, resolved.URL, sess.Tokens.AuthToken, resolved.Request, body)
	metrics.ObserveUpstream("wallet", err)
	if err != nil {
		return nil, err
	}
	a.log.Info("钱包接口调用完成",
		slog.String("user_id", sess.UserID),
		slog.String("method", resolved.Request),
		slog.String("url", resolved.URL))

	summary, err := a.resolver.Summarize(ctx, response, text, resolved)
	metrics.ObserveUpstream("llm", err)
	if err != nil {
		return nil, err
	}
	return textReply(summary), nil
}
