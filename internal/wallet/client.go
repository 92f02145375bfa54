package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	xerrors "WalletChat/internal/errors"
)

const (
	defaultBaseURL   = "https://sandbox-api.okto.tech/"
	defaultUserAgent = "NextJSDev/1.0"
	defaultReferer   = "http://localhost:3000"
	defaultTimeout   = 30 * time.Second

	pathEmailLogin     = "api/v1/authenticate/email"
	pathEmailVerify    = "api/v1/authenticate/email/verify"
	pathTransferTokens = "api/v1/transfer/tokens/execute"

	maxErrorBody = 4096
)

// Config 描述访问钱包后端所需的参数。
type Config struct {
	BaseURL   string
	APIKey    string
	UserAgent string
	Referer   string
	Timeout   time.Duration
}

// Client 是钱包后端 REST API 的轻量封装，不做任何重试。
type Client struct {
	baseURL    *url.URL
	apiKey     string
	userAgent  string
	referer    string
	httpClient *http.Client
}

// NewClient 根据配置创建钱包 API 客户端。
func NewClient(cfg Config) (*Client, error) {
	raw := strings.TrimSpace(cfg.BaseURL)
	if raw == "" {
		raw = defaultBaseURL
	}
	if !strings.HasSuffix(raw, "/") {
		raw += "/"
	}
	base, err := url.Parse(raw)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("钱包 API 地址无效: %q", cfg.BaseURL)
	}

	c := &Client{
		baseURL:    base,
		apiKey:     strings.TrimSpace(cfg.APIKey),
		userAgent:  cfg.UserAgent,
		referer:    cfg.Referer,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
	if c.userAgent == "" {
		c.userAgent = defaultUserAgent
	}
	if c.referer == "" {
		c.referer = defaultReferer
	}
	if c.httpClient.Timeout <= 0 {
		c.httpClient.Timeout = defaultTimeout
	}
	return c, nil
}

// credential 决定请求使用的鉴权头。
type credential struct {
	bearer string
	apiKey string
}

// Invoke 以 token 作为 Bearer 凭证调用任意相对路径，返回解析后的 JSON。
func (c *Client) Invoke(ctx context.Context, path, token, method string, body any) (any, error) {
	var decoded any
	if err := c.do(ctx, method, path, credential{bearer: token}, body, &decoded); err != nil {
		return nil, err
	}
	return decoded, nil
}

// RequestEmailOTP 向邮箱发送一次性验证码，返回后续校验所需的请求令牌。
func (c *Client) RequestEmailOTP(ctx context.Context, email string) (*OTPChallenge, error) {
	var env envelope[struct {
		Token   string `json:"token"`
		Message string `json:"message"`
	}]
	if err := c.do(ctx, http.MethodPost, pathEmailLogin, c.keyCredential(), map[string]string{"email": email}, &env); err != nil {
		return nil, err
	}
	if err := env.check(pathEmailLogin); err != nil {
		return nil, err
	}
	if env.Data.Token == "" {
		return nil, xerrors.New(xerrors.CodeUpstreamRejected, "登录响应缺少 token", xerrors.WithMetadata("path", pathEmailLogin))
	}
	return &OTPChallenge{Token: env.Data.Token}, nil
}

// VerifyEmailOTP 校验验证码并换取会话令牌。
func (c *Client) VerifyEmailOTP(ctx context.Context, email, otp, token string) (*AuthTokens, error) {
	var env envelope[AuthTokens]
	payload := map[string]string{"email": email, "otp": otp, "token": token}
	if err := c.do(ctx, http.MethodPost, pathEmailVerify, c.keyCredential(), payload, &env); err != nil {
		return nil, err
	}
	if err := env.check(pathEmailVerify); err != nil {
		return nil, err
	}
	if env.Data.AuthToken == "" {
		return nil, xerrors.New(xerrors.CodeUpstreamRejected, "校验响应缺少 auth_token", xerrors.WithMetadata("path", pathEmailVerify))
	}
	return &env.Data, nil
}

// ExecuteTransfer 提交一次代币转账。只有 2xx 响应视为成功。
func (c *Client) ExecuteTransfer(ctx context.Context, token string, req TransferRequest) (*TransferReceipt, error) {
	var env envelope[struct {
		OrderID string `json:"orderId"`
	}]
	if err := c.do(ctx, http.MethodPost, pathTransferTokens, credential{bearer: token}, req, &env); err != nil {
		return nil, err
	}
	if env.Status != "" && !strings.EqualFold(env.Status, statusSuccess) {
		return nil, env.rejection(pathTransferTokens)
	}
	return &TransferReceipt{OrderID: env.Data.OrderID}, nil
}

func (c *Client) keyCredential() credential {
	return credential{apiKey: c.apiKey}
}

// resolve 只接受相对路径，防止请求被引导到其他主机。
func (c *Client) resolve(path string) (*url.URL, error) {
	ref, err := url.Parse(strings.TrimLeft(strings.TrimSpace(path), "/"))
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "接口路径无效")
	}
	if ref.IsAbs() || ref.Host != "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "接口路径必须是相对路径", xerrors.WithMetadata("path", path))
	}
	return c.baseURL.ResolveReference(ref), nil
}

func (c *Client) do(ctx context.Context, method, path string, cred credential, body, out any) error {
	target, err := c.resolve(path)
	if err != nil {
		return err
	}
	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		method = http.MethodGet
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "序列化请求体失败")
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "构建钱包请求失败")
	}
	switch {
	case cred.bearer != "":
		req.Header.Set("Authorization", "Bearer "+cred.bearer)
	case cred.apiKey != "":
		req.Header.Set("X-Api-Key", cred.apiKey)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Referer", c.referer)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return xerrors.Wrap(xerrors.CodeTimeout, err, "钱包 API 请求超时", xerrors.WithMetadata("path", target.Path))
		}
		return xerrors.Wrap(xerrors.CodeUpstreamUnavailable, err, "请求钱包 API 失败", xerrors.WithMetadata("path", target.Path))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return newStatusError(target.Path, resp.StatusCode, raw)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeUpstreamUnavailable, err, "读取钱包 API 响应失败", xerrors.WithMetadata("path", target.Path))
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return xerrors.Wrap(xerrors.CodeUpstreamUnavailable, err, "钱包 API 返回了非 JSON 内容", xerrors.WithMetadata("path", target.Path))
	}
	return nil
}

func newStatusError(path string, status int, raw []byte) error {
	message := upstreamMessage(raw)
	if message == "" {
		message = http.StatusText(status)
	}
	return xerrors.New(xerrors.CodeUpstreamRejected, fmt.Sprintf("钱包 API 返回状态 %d", status),
		xerrors.WithMetadata("path", path),
		xerrors.WithMetadata("status", fmt.Sprint(status)),
		xerrors.WithMetadata(MetadataUpstreamMessage, message),
		// 5xx 是钱包服务自身故障，需要告警；4xx 属于用户输入被拒。
		xerrors.WithAlert(status >= http.StatusInternalServerError),
	)
}

// upstreamMessage 从错误响应中提取可读的错误说明。
func upstreamMessage(raw []byte) string {
	var body struct {
		Message string `json:"message"`
		Error   struct {
			Message string `json:"message"`
			Details string `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return ""
	}
	switch {
	case body.Error.Message != "":
		return body.Error.Message
	case body.Error.Details != "":
		return body.Error.Details
	default:
		return body.Message
	}
}
