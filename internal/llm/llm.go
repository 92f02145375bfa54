package llm

import "context"

// Request 描述一次对话补全调用。
type Request struct {
	// System 为系统提示词，可为空。
	System string
	// Prompt 为用户消息内容。
	Prompt string
	// Temperature 为采样温度，分类使用 0，总结使用 0.7。
	Temperature float64
	// JSON 要求模型以 JSON 对象返回。
	JSON bool
	// MaxTokens 为 0 时使用服务端默认值。
	MaxTokens int
}

// Response 是大模型返回的文本。
type Response struct {
	Content string
	Model   string
}

// Client 定义了调用大模型的统一接口。
type Client interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}

// ClientFunc 允许使用普通函数实现 Client。
type ClientFunc func(ctx context.Context, req Request) (*Response, error)

// Generate 实现 Client 接口。
func (f ClientFunc) Generate(ctx context.Context, req Request) (*Response, error) {
	return f(ctx, req)
}
