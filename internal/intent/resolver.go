package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	xerrors "WalletChat/internal/errors"
	"WalletChat/internal/llm"
	"WalletChat/pkg/logger"
)

const (
	classifyTemperature  = 0
	summarizeTemperature = 0.7
	defaultMaxTokens     = 1000
	// maxResponseChars 限制写入总结提示词的 API 响应长度。
	maxResponseChars = 12000
)

const classifySystem = "You map wallet assistant requests to exactly one REST endpoint of the wallet API. " +
	"Respond with a single JSON object and nothing else."

const classifyTemplate = `Given the following API documentation:
%s

and the user's request:
%q

Pick exactly one endpoint from the documentation and describe the call in this JSON format:
{
    "url": "relative path of the endpoint, without scheme or host",
    "request": "GET or POST",
    "description": "what the call does",
    "body_is_there": true/false,
    "request_body": [{"name": "parameter", "value": "value taken from the request"}],
    "user_provided_all": true/false,
    "missing_data": "what the user still has to provide (only if user_provided_all is false)",
    "valid_info": true/false
}

Set valid_info to false when no endpoint matches the request. Only use values that appear in the user's request.`

const summarizeSystem = "You explain wallet API results to end users in a short, friendly way. " +
	"Do not expose tokens, internal identifiers or raw JSON."

const summarizeTemplate = `The user asked: %q

To answer it, the assistant called %s %s (%s) and received this response:
%s

Explain the result to the user in a few sentences of plain language.`

// Resolver 通过两次独立的大模型调用完成意图分类与结果总结，不保留跨轮上下文。
type Resolver struct {
	client    llm.Client
	maxTokens int
	timeout   time.Duration
	log       *slog.Logger
}

// Option 定义 Resolver 的可选配置。
type Option func(*Resolver)

// WithMaxTokens 设置每次调用的最大输出长度。
func WithMaxTokens(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.maxTokens = n
		}
	}
}

// WithTimeout 设置单次大模型调用的超时时间。
func WithTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// NewResolver 创建意图解析器。
func NewResolver(client llm.Client, opts ...Option) *Resolver {
	r := &Resolver{
		client:    client,
		maxTokens: defaultMaxTokens,
		log:       logger.Named("intent"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Classify 根据接口文档与用户消息得到一个经过校验的意图。
func (r *Resolver) Classify(ctx context.Context, documentation, message string) (*Intent, error) {
	content, err := r.generate(ctx, llm.Request{
		System:      classifySystem,
		Prompt:      fmt.Sprintf(classifyTemplate, strings.TrimSpace(documentation), message),
		Temperature: classifyTemperature,
		JSON:        true,
		MaxTokens:   r.maxTokens,
	})
	if err != nil {
		return nil, err
	}
	parsed, err := Parse(content)
	if err != nil {
		r.log.Warn("模型返回的意图无效", slog.Int("length", len(content)), slog.Any("error", err))
		return nil, err
	}
	r.log.Debug("意图解析完成",
		slog.String("url", parsed.URL),
		slog.String("method", parsed.Request),
		slog.Bool("valid_info", parsed.ValidInfo),
		slog.Bool("user_provided_all", parsed.UserProvidedAll))
	return parsed, nil
}

// Summarize 把 API 响应转换为面向用户的自然语言说明。
func (r *Resolver) Summarize(ctx context.Context, response any, message string, intent *Intent) (string, error) {
	if intent == nil {
		return "", xerrors.New(xerrors.CodeInvalidArgument, "缺少意图")
	}
	encoded, err := json.MarshalIndent(response, "", "  ")
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeInvalidArgument, err, "序列化 API 响应失败")
	}
	body := string(encoded)
	if len(body) > maxResponseChars {
		cut := maxResponseChars
		for cut > 0 && !utf8.RuneStart(body[cut]) {
			cut--
		}
		body = body[:cut] + "\n...(truncated)"
	}

	content, err := r.generate(ctx, llm.Request{
		System:      summarizeSystem,
		Prompt:      fmt.Sprintf(summarizeTemplate, message, intent.Request, intent.URL, intent.Description, body),
		Temperature: summarizeTemperature,
		MaxTokens:   r.maxTokens,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(content), nil
}

func (r *Resolver) generate(ctx context.Context, req llm.Request) (string, error) {
	if r.client == nil {
		return "", xerrors.New(xerrors.CodeInitializationFailure, "未配置大模型客户端")
	}
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	resp, err := r.client.Generate(ctx, req)
	if err != nil {
		return "", err
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return "", xerrors.New(xerrors.CodeUpstreamRejected, "大模型返回内容为空", xerrors.WithMetadata("service", "llm"))
	}
	return resp.Content, nil
}
