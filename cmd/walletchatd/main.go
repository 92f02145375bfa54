package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"WalletChat/internal/agent"
	"WalletChat/internal/api"
	"WalletChat/internal/config"
	"WalletChat/internal/events"
	"WalletChat/internal/flow"
	"WalletChat/internal/intent"
	"WalletChat/internal/knowledge"
	"WalletChat/internal/llm"
	"WalletChat/internal/llm/openai"
	"WalletChat/internal/llm/pythonbridge"
	"WalletChat/internal/observability/alerting"
	"WalletChat/internal/session"
	"WalletChat/internal/storage/mysql"
	storeredis "WalletChat/internal/storage/redis"
	"WalletChat/internal/wallet"
	"WalletChat/internal/web3/provider"
	"WalletChat/pkg/logger"

	goredis "github.com/redis/go-redis/v9"
)

// main 是 WalletChat 守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logger.L().Error("walletchatd 运行失败", slog.Any("error", err))
		_ = logger.Sync()
		os.Exit(1)
	}
	_ = logger.Sync()
}

// eventsMaxLen 是 Redis 事件列表保留的最大条数。
const eventsMaxLen = 10000

// closers 按注册的逆序释放资源。
type closers []io.Closer

func (c *closers) add(closer io.Closer) { *c = append(*c, closer) }

func (c closers) closeAll() {
	for i := len(c) - 1; i >= 0; i-- {
		if err := c[i].Close(); err != nil {
			logger.L().Warn("释放资源失败", slog.Any("error", err))
		}
	}
}

type closeFunc func()

func (f closeFunc) Close() error { f(); return nil }

func run(ctx context.Context) error {
	cfg, err := config.Load(config.PathFromEnv())
	if err != nil {
		return err
	}
	if err := logger.Init(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: cfg.Logging.Outputs,
		Audit: logger.AuditConfig{
			Enabled:    cfg.Logging.Audit.Enabled,
			Path:       cfg.Logging.Audit.Path,
			MaxSizeMB:  cfg.Logging.Audit.MaxSizeMB,
			MaxBackups: cfg.Logging.Audit.MaxBackups,
			MaxAgeDays: cfg.Logging.Audit.MaxAgeDays,
		},
	}); err != nil {
		return err
	}
	log := logger.Named("walletchatd")

	if err := os.MkdirAll(cfg.Runtime.DataDir, 0o755); err != nil {
		return err
	}

	var resources closers
	defer resources.closeAll()

	// Redis 连接只在至少一个组件使用时建立，由各组件共享。
	var redisClient *goredis.Client
	if cfg.Session.Driver == "redis" || cfg.Flow.Driver == "redis" || cfg.Events.Driver == "redis" {
		redisClient, err = storeredis.Open(ctx, storeredis.Config{
			Address:   cfg.Redis.Address,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
		})
		if err != nil {
			return err
		}
		resources.add(redisClient)
	}

	sessions := newSessionStore(cfg, redisClient)
	resources.add(sessions)

	flows, sweeper := newFlowStore(cfg, redisClient)
	resources.add(flows)
	if sweeper != nil {
		go sweeper.Run(ctx, config.Seconds(cfg.Flow.SweepIntervalSeconds))
	}

	publisher, err := newPublisher(cfg, redisClient)
	if err != nil {
		return err
	}
	resources.add(publisher)

	history, err := newHistory(ctx, cfg)
	if err != nil {
		return err
	}
	resources.add(history)

	walletClient, err := wallet.NewClient(wallet.Config{
		BaseURL:   cfg.Wallet.BaseURL,
		APIKey:    cfg.Wallet.APIKey,
		UserAgent: cfg.Wallet.UserAgent,
		Referer:   cfg.Wallet.Referer,
		Timeout:   config.Seconds(cfg.Wallet.TimeoutSeconds),
	})
	if err != nil {
		return err
	}
	if cfg.Wallet.APIKey == "" {
		log.Warn("未配置钱包 API Key，登录与转账将被上游拒绝", slog.String("env", cfg.Wallet.APIKeyEnv))
	}

	llmClient, err := newLLMClient(cfg)
	if err != nil {
		return err
	}
	docs, err := newKnowledgeProvider(cfg)
	if err != nil {
		return err
	}

	chains, err := provider.NewRegistry(ctx, cfg.Web3.ChainConfig, config.Seconds(cfg.Web3.TimeoutSeconds))
	if err != nil {
		return err
	}
	resources.add(closeFunc(chains.Close))

	alerts := newAlerts(cfg)

	machine := flow.NewMachine(flows, sessions, walletClient,
		flow.WithHistory(history),
		flow.WithPublisher(publisher),
		flow.WithAlerts(alerts),
		flow.WithInspector(chains),
		flow.WithTimeout(cfg.FlowTimeout()),
		flow.WithMaxAttempts(cfg.Flow.MaxAttempts),
		flow.WithNetworks(cfg.Flow.Networks),
	)
	resolver := intent.NewResolver(llmClient,
		intent.WithMaxTokens(cfg.LLM.OpenAI.MaxTokens),
		intent.WithTimeout(config.Seconds(cfg.LLM.OpenAI.TimeoutSeconds)),
	)
	router := agent.New(machine, sessions, walletClient, resolver,
		agent.WithKnowledgeProvider(docs),
		agent.WithAlerts(alerts),
	)

	serverOpts := []api.Option{
		api.WithChainReporter(chains),
		api.WithReadTimeout(config.Seconds(cfg.Server.ReadTimeoutSec)),
	}
	if cfg.Server.WebhookSecret != "" {
		serverOpts = append(serverOpts, api.WithWebhookSecret(cfg.Server.WebhookSecret))
	} else {
		log.Warn("未配置 webhook 密钥，/api/v1 接口不做鉴权")
	}

	log.Info("WalletChat 启动",
		slog.String("session_driver", cfg.Session.Driver),
		slog.String("flow_driver", cfg.Flow.Driver),
		slog.String("events_driver", cfg.Events.Driver),
		slog.String("history_driver", cfg.Storage.History.Driver),
		slog.String("llm_provider", cfg.LLM.Provider),
		slog.String("knowledge_provider", cfg.Knowledge.Provider),
		slog.Any("chains", chains.Chains()),
	)

	server := api.NewServer(cfg.Server.Address, router, serverOpts...)
	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("WalletChat 已停止")
	return nil
}

func newSessionStore(cfg *config.Config, client *goredis.Client) session.Store {
	if cfg.Session.Driver == "redis" {
		return session.NewRedisStore(client, cfg.Redis.KeyPrefix, session.WithRedisTTL(cfg.SessionTTL()))
	}
	return session.NewMemoryStore(cfg.SessionTTL())
}

// newFlowStore 在内存模式下同时返回后台清理器。
func newFlowStore(cfg *config.Config, client *goredis.Client) (flow.Store, *flow.MemoryStore) {
	if cfg.Flow.Driver == "redis" {
		return flow.NewRedisStore(client, cfg.Redis.KeyPrefix, cfg.FlowTimeout(), cfg.FlowRetention(), false), nil
	}
	store := flow.NewMemoryStore(cfg.FlowTimeout(), cfg.FlowRetention())
	return store, store
}

func newPublisher(cfg *config.Config, client *goredis.Client) (events.Publisher, error) {
	switch cfg.Events.Driver {
	case "redis":
		return events.NewRedisPublisher(client, storeredis.NewKeyspace(cfg.Redis.KeyPrefix).Key(cfg.Events.Queue), eventsMaxLen, false)
	case "rabbitmq":
		return events.NewRabbitMQPublisher(events.RabbitMQConfig{
			URL:     cfg.Events.RabbitMQ.URL,
			Queue:   cfg.Events.Queue,
			Durable: cfg.Events.RabbitMQ.Durable,
		})
	case "none":
		return events.Nop{}, nil
	default:
		return events.NewLogPublisher(logger.Audit()), nil
	}
}

func newHistory(ctx context.Context, cfg *config.Config) (mysql.TransferRepository, error) {
	switch cfg.Storage.History.Driver {
	case "mysql":
		return mysql.NewSQLTransferRepository(ctx, mysql.Config{
			DSN:             cfg.Storage.History.DSN,
			MaxOpenConns:    cfg.Storage.History.MaxOpenConns,
			MaxIdleConns:    cfg.Storage.History.MaxIdleConns,
			ConnMaxLifetime: config.Seconds(cfg.Storage.History.ConnMaxLifetime),
			AutoMigrate:     cfg.Storage.History.AutoMigrate,
		})
	case "memory":
		return mysql.NewFileTransferRepository("")
	default:
		return mysql.NewFileTransferRepository(cfg.Runtime.DataDir)
	}
}

func newLLMClient(cfg *config.Config) (llm.Client, error) {
	switch cfg.LLM.Provider {
	case "python_bridge":
		script := pythonbridge.ResolveScriptPath(cfg.LLM.Python.WorkingDir, cfg.LLM.Python.ScriptPath)
		return pythonbridge.NewClient(cfg.LLM.Python.PythonExecutable, script, cfg.LLM.Python.WorkingDir)
	default:
		return openai.NewClient(openai.Config{
			APIKey:    cfg.LLM.OpenAI.APIKey,
			BaseURL:   cfg.LLM.OpenAI.BaseURL,
			Model:     cfg.LLM.OpenAI.Model,
			Timeout:   config.Seconds(cfg.LLM.OpenAI.TimeoutSeconds),
			MaxTokens: cfg.LLM.OpenAI.MaxTokens,
		})
	}
}

func newKnowledgeProvider(cfg *config.Config) (knowledge.Provider, error) {
	switch cfg.Knowledge.Provider {
	case "predictor":
		return knowledge.NewPredictorProvider(cfg.Knowledge.PredictorURL, config.Seconds(cfg.Knowledge.TimeoutSeconds))
	case "none":
		return knowledge.Passthrough, nil
	default:
		if cfg.Knowledge.Source == "" {
			return nil, fmt.Errorf("knowledge.source 未配置，无法加载接口目录")
		}
		return knowledge.LoadStaticProvider(cfg.Knowledge.Source, cfg.Knowledge.MaxResults)
	}
}

func newAlerts(cfg *config.Config) alerting.Dispatcher {
	notifiers := []alerting.Notifier{&alerting.LogNotifier{}}
	if cfg.Alerting.WebhookURL != "" {
		notifiers = append(notifiers, alerting.NewWebhookNotifier(cfg.Alerting.WebhookURL, config.Seconds(cfg.Alerting.TimeoutSeconds)))
	}
	return alerting.NewFanout(notifiers...)
}
