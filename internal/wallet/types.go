package wallet

import (
	"fmt"
	"strings"

	xerrors "WalletChat/internal/errors"
)

const statusSuccess = "success"

// MetadataUpstreamMessage 是错误元数据中保存上游错误说明的键。
const MetadataUpstreamMessage = "upstream_message"

// OTPChallenge 是发送验证码后返回的请求令牌。
type OTPChallenge struct {
	Token string
}

// AuthTokens 是验证码校验成功后下发的三个令牌。
type AuthTokens struct {
	AuthToken    string `json:"auth_token"`
	RefreshToken string `json:"refresh_auth_token"`
	DeviceToken  string `json:"device_token"`
}

// TransferRequest 是代币转账的请求体，字段保持用户输入的原样。
type TransferRequest struct {
	NetworkName      string `json:"network_name"`
	TokenAddress     string `json:"token_address"`
	Quantity         string `json:"quantity"`
	RecipientAddress string `json:"recipient_address"`
}

// TransferReceipt 是转账提交成功后的回执。
type TransferReceipt struct {
	OrderID string
}

// envelope 是钱包 API 统一的响应外壳。
type envelope[T any] struct {
	Status string `json:"status"`
	Data   T      `json:"data"`
	Error  *struct {
		Code    any    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (e *envelope[T]) check(path string) error {
	if strings.EqualFold(e.Status, statusSuccess) {
		return nil
	}
	return e.rejection(path)
}

func (e *envelope[T]) rejection(path string) error {
	message := ""
	if e.Error != nil {
		message = e.Error.Message
	}
	if message == "" {
		message = fmt.Sprintf("status=%q", e.Status)
	}
	return xerrors.New(xerrors.CodeUpstreamRejected, "钱包 API 拒绝了请求",
		xerrors.WithMetadata("path", path),
		xerrors.WithMetadata(MetadataUpstreamMessage, message),
	)
}

// UpstreamMessage 返回上游给出的错误说明，没有时返回空字符串。
func UpstreamMessage(err error) string {
	if e, ok := xerrors.From(err); ok {
		return e.MetadataValue(MetadataUpstreamMessage)
	}
	return ""
}

// IsRejected 判断错误是否为上游明确拒绝，而不是网络或解析失败。
func IsRejected(err error) bool {
	return xerrors.HasCode(err, xerrors.CodeUpstreamRejected)
}
