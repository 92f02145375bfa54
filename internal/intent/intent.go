package intent

import (
	"bytes"
	"encoding/json"
	"net/url"
	"strings"

	xerrors "WalletChat/internal/errors"
)

// allowedMethods 是意图允许调用的 HTTP 方法。
var allowedMethods = map[string]struct{}{
	"GET":    {},
	"POST":   {},
	"PUT":    {},
	"PATCH":  {},
	"DELETE": {},
}

// Intent 是模型从用户消息中解析出的一次钱包 API 调用。
type Intent struct {
	URL             string          `json:"url"`
	Request         string          `json:"request"`
	Description     string          `json:"description"`
	BodyIsThere     bool            `json:"body_is_there"`
	RequestBody     json.RawMessage `json:"request_body,omitempty"`
	UserProvidedAll bool            `json:"user_provided_all"`
	MissingData     string          `json:"missing_data,omitempty"`
	ValidInfo       bool            `json:"valid_info"`
}

// Executable 表示意图有效且参数齐全，可以直接调用。
func (i *Intent) Executable() bool {
	return i != nil && i.ValidInfo && i.UserProvidedAll
}

// Parse 解析并校验模型输出。模型偶尔会用代码块包裹 JSON，这里会先去掉。
func Parse(raw string) (*Intent, error) {
	payload := extractObject(raw)
	if payload == "" {
		return nil, xerrors.New(xerrors.CodeIntentInvalid, "模型没有返回 JSON 对象")
	}
	var parsed Intent
	if err := json.Unmarshal([]byte(payload), &parsed); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeIntentInvalid, err, "解析意图 JSON 失败")
	}
	if err := parsed.normalize(); err != nil {
		return nil, err
	}
	return &parsed, nil
}

func extractObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end < start {
		return ""
	}
	return raw[start : end+1]
}

// normalize 只校验可执行的意图：URL 必须是相对路径，方法必须在白名单内。
func (i *Intent) normalize() error {
	i.Request = strings.ToUpper(strings.TrimSpace(i.Request))
	i.URL = strings.TrimSpace(i.URL)
	i.MissingData = strings.TrimSpace(i.MissingData)
	if !i.Executable() {
		return nil
	}

	if i.URL == "" {
		return xerrors.New(xerrors.CodeIntentInvalid, "意图缺少 URL")
	}
	if strings.HasPrefix(i.URL, "//") || strings.Contains(i.URL, "\\") {
		return invalidURL(i.URL)
	}
	parsed, err := url.Parse(i.URL)
	if err != nil || parsed.Scheme != "" || parsed.Host != "" || parsed.User != nil {
		return invalidURL(i.URL)
	}
	for _, segment := range strings.Split(parsed.Path, "/") {
		if segment == ".." {
			return invalidURL(i.URL)
		}
	}
	i.URL = strings.TrimLeft(i.URL, "/")

	if _, ok := allowedMethods[i.Request]; !ok {
		return xerrors.New(xerrors.CodeIntentInvalid, "意图的 HTTP 方法不受支持", xerrors.WithMetadata("method", i.Request))
	}
	return nil
}

func invalidURL(raw string) error {
	return xerrors.New(xerrors.CodeIntentInvalid, "意图 URL 必须是相对路径", xerrors.WithMetadata("url", raw))
}

// Body 根据 request_body 构造请求体：对象原样使用，{name, value} 列表转换为对象。
// 没有请求体时返回 nil。
func (i *Intent) Body() (any, error) {
	if i == nil || !i.BodyIsThere {
		return nil, nil
	}
	raw := bytes.TrimSpace(i.RequestBody)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	switch raw[0] {
	case '{':
		var object map[string]any
		if err := json.Unmarshal(raw, &object); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeIntentInvalid, err, "解析请求体失败")
		}
		return object, nil
	case '[':
		var params []map[string]any
		if err := json.Unmarshal(raw, &params); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeIntentInvalid, err, "解析请求参数列表失败")
		}
		body := make(map[string]any, len(params))
		for _, param := range params {
			name, _ := param["name"].(string)
			value, ok := param["value"]
			if name == "" || !ok {
				continue
			}
			body[name] = value
		}
		if len(body) == 0 {
			return nil, nil
		}
		return body, nil
	}
	return nil, xerrors.New(xerrors.CodeIntentInvalid, "请求体必须是对象或参数列表")
}
