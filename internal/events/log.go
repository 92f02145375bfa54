package events

import (
	"context"
	"log/slog"

	"WalletChat/pkg/logger"
)

// LogPublisher 把事件写入审计日志。
type LogPublisher struct {
	logger *slog.Logger
}

// NewLogPublisher 创建日志投递器，logger 为空时使用审计日志。
func NewLogPublisher(l *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: l}
}

// Publish 实现 Publisher 接口。
func (p *LogPublisher) Publish(ctx context.Context, event Event) error {
	l := p.logger
	if l == nil {
		l = logger.Audit()
	}
	attrs := make([]any, 0, len(event.Attributes))
	for k, v := range event.Attributes {
		attrs = append(attrs, slog.String(k, v))
	}
	l.InfoContext(ctx, string(event.Type),
		slog.String("event_id", event.ID),
		slog.String("user_id", event.UserID),
		slog.String("flow_id", event.FlowID),
		slog.Time("occurred_at", event.OccurredAt),
		slog.Group("attributes", attrs...),
	)
	return nil
}

// Close 实现 Publisher 接口。
func (p *LogPublisher) Close() error { return nil }
