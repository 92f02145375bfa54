package knowledge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	xerrors "WalletChat/internal/errors"
)

// PredictorProvider 调用远程预测服务，把自然语言映射为接口文档。
// 请求体为 {"input": message}，响应为 JSON 字符串或 {"output": string}。
type PredictorProvider struct {
	endpoint   string
	httpClient *http.Client
}

// NewPredictorProvider 创建远程预测服务客户端。
func NewPredictorProvider(endpoint string, timeout time.Duration) (*PredictorProvider, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("预测服务地址不能为空")
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &PredictorProvider{endpoint: endpoint, httpClient: &http.Client{Timeout: timeout}}, nil
}

// Lookup 实现 Provider 接口。
func (p *PredictorProvider) Lookup(ctx context.Context, message string) (string, error) {
	payload, err := json.Marshal(map[string]string{"input": message})
	if err != nil {
		return "", fmt.Errorf("序列化预测请求失败: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("构建预测请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeUpstreamUnavailable, err, "请求预测服务失败")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeUpstreamUnavailable, err, "读取预测服务响应失败")
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return "", xerrors.New(xerrors.CodeUpstreamUnavailable,
			fmt.Sprintf("预测服务返回错误状态 %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}

	text, err := decodePrediction(body)
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeUpstreamUnavailable, err, "解析预测服务响应失败")
	}
	if strings.TrimSpace(text) == "" {
		return "", xerrors.New(xerrors.CodeUpstreamUnavailable, "预测服务返回内容为空")
	}
	return text, nil
}

func decodePrediction(body []byte) (string, error) {
	var text string
	if err := json.Unmarshal(body, &text); err == nil {
		return text, nil
	}
	var wrapped struct {
		Output string `json:"output"`
	}
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return "", err
	}
	return wrapped.Output, nil
}

var _ Provider = (*PredictorProvider)(nil)
