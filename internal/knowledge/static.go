package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Provider 根据用户的自然语言请求返回候选接口的文档文本。
type Provider interface {
	Lookup(ctx context.Context, message string) (string, error)
}

// ProviderFunc 允许使用普通函数实现 Provider。
type ProviderFunc func(ctx context.Context, message string) (string, error)

// Lookup 实现 Provider 接口。
func (f ProviderFunc) Lookup(ctx context.Context, message string) (string, error) {
	return f(ctx, message)
}

// Passthrough 不做检索，直接把原始消息交给分类器。
var Passthrough Provider = ProviderFunc(func(_ context.Context, message string) (string, error) {
	return message, nil
})

// Parameter 描述接口的一个请求参数。
type Parameter struct {
	Name        string `json:"name" yaml:"name"`
	Type        string `json:"type" yaml:"type"`
	Required    bool   `json:"required" yaml:"required"`
	Description string `json:"description" yaml:"description"`
}

// Endpoint 描述钱包 API 中可供调用的一个接口。
type Endpoint struct {
	Name        string      `json:"name" yaml:"name"`
	Method      string      `json:"method" yaml:"method"`
	Path        string      `json:"path" yaml:"path"`
	Description string      `json:"description" yaml:"description"`
	Parameters  []Parameter `json:"parameters" yaml:"parameters"`
	Keywords    []string    `json:"keywords" yaml:"keywords"`
}

// Catalogue 是接口目录文件的根结构。
type Catalogue struct {
	Endpoints []Endpoint `json:"endpoints" yaml:"endpoints"`
}

// StaticProvider 基于本地接口目录进行关键词匹配。
type StaticProvider struct {
	items      []Endpoint
	maxResults int
}

// NewStaticProvider 创建静态接口目录实例。
func NewStaticProvider(items []Endpoint, maxResults int) *StaticProvider {
	if maxResults <= 0 {
		maxResults = 5
	}
	return &StaticProvider{items: items, maxResults: maxResults}
}

// LoadStaticProvider 从 YAML 或 JSON 文件加载接口目录。
func LoadStaticProvider(path string, maxResults int) (*StaticProvider, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("接口目录文件路径不能为空")
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取接口目录失败: %w", err)
	}

	var catalogue Catalogue
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(content, &catalogue)
	} else {
		err = yaml.Unmarshal(content, &catalogue)
	}
	if err != nil {
		return nil, fmt.Errorf("解析接口目录失败: %w", err)
	}
	if len(catalogue.Endpoints) == 0 {
		return nil, fmt.Errorf("接口目录 %s 为空", path)
	}
	return NewStaticProvider(catalogue.Endpoints, maxResults), nil
}

// Lookup 按关键词命中数排序返回最相关的接口文档。
// 没有任何命中时返回完整目录，由分类器自行判断请求是否有效。
func (p *StaticProvider) Lookup(_ context.Context, message string) (string, error) {
	if p == nil || len(p.items) == 0 {
		return "", fmt.Errorf("接口目录未加载")
	}
	return Render(p.Match(message)), nil
}

// Match 返回与消息匹配的接口列表。
func (p *StaticProvider) Match(message string) []Endpoint {
	text := strings.ToLower(message)

	type scored struct {
		endpoint Endpoint
		score    int
		index    int
	}
	hits := make([]scored, 0, len(p.items))
	for idx, item := range p.items {
		if n := keywordHits(item, text); n > 0 {
			hits = append(hits, scored{endpoint: item, score: n, index: idx})
		}
	}
	if len(hits) == 0 {
		return append([]Endpoint(nil), p.items...)
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].index < hits[j].index
	})
	if len(hits) > p.maxResults {
		hits = hits[:p.maxResults]
	}
	out := make([]Endpoint, len(hits))
	for i, hit := range hits {
		out[i] = hit.endpoint
	}
	return out
}

func keywordHits(endpoint Endpoint, text string) int {
	total := 0
	for _, keyword := range endpoint.Keywords {
		normalized := strings.ToLower(strings.TrimSpace(keyword))
		if normalized != "" && strings.Contains(text, normalized) {
			total++
		}
	}
	return total
}

// Render 将接口列表格式化为提供给分类器的文档文本。
func Render(endpoints []Endpoint) string {
	var b strings.Builder
	for idx, ep := range endpoints {
		if idx > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "[%d] %s\nurl: %s\nrequest: %s\n", idx+1, ep.Name, ep.Path, strings.ToUpper(ep.Method))
		if ep.Description != "" {
			fmt.Fprintf(&b, "description: %s\n", ep.Description)
		}
		if len(ep.Parameters) > 0 {
			b.WriteString("parameters:\n")
			for _, param := range ep.Parameters {
				required := "optional"
				if param.Required {
					required = "required"
				}
				fmt.Fprintf(&b, "  - %s (%s, %s): %s\n", param.Name, param.Type, required, param.Description)
			}
		}
	}
	return b.String()
}

var _ Provider = (*StaticProvider)(nil)
