package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvConfigPath 指定配置文件路径的环境变量。
const EnvConfigPath = "WALLETCHAT_CONFIG"

// DefaultPath 是未设置环境变量时使用的配置文件路径。
const DefaultPath = "configs/walletchat.yaml"

// Config 描述了 WalletChat 在启动阶段需要加载的核心配置。
type Config struct {
	Server    ServerConfig    `json:"server" yaml:"server"`
	Wallet    WalletConfig    `json:"wallet" yaml:"wallet"`
	LLM       LLMConfig       `json:"llm" yaml:"llm"`
	Knowledge KnowledgeConfig `json:"knowledge" yaml:"knowledge"`
	Flow      FlowConfig      `json:"flow" yaml:"flow"`
	Session   SessionConfig   `json:"session" yaml:"session"`
	Redis     RedisConfig     `json:"redis" yaml:"redis"`
	Events    EventsConfig    `json:"events" yaml:"events"`
	Storage   StorageConfig   `json:"storage" yaml:"storage"`
	Web3      Web3Config      `json:"web3" yaml:"web3"`
	Logging   LoggingConfig   `json:"logging" yaml:"logging"`
	Alerting  AlertingConfig  `json:"alerting" yaml:"alerting"`
	Runtime   RuntimeConfig   `json:"runtime" yaml:"runtime"`
}

// ServerConfig 控制 HTTP 入口的监听地址与鉴权。
type ServerConfig struct {
	Address          string `json:"address" yaml:"address"`
	WebhookSecret    string `json:"webhook_secret" yaml:"webhook_secret"`
	WebhookSecretEnv string `json:"webhook_secret_env" yaml:"webhook_secret_env"`
	ReadTimeoutSec   int    `json:"read_timeout_seconds" yaml:"read_timeout_seconds"`
}

// WalletConfig 描述钱包后端 API 的访问方式。
type WalletConfig struct {
	BaseURL        string `json:"base_url" yaml:"base_url"`
	APIKey         string `json:"api_key" yaml:"api_key"`
	APIKeyEnv      string `json:"api_key_env" yaml:"api_key_env"`
	UserAgent      string `json:"user_agent" yaml:"user_agent"`
	Referer        string `json:"referer" yaml:"referer"`
	TimeoutSeconds int    `json:"timeout_seconds" yaml:"timeout_seconds"`
}

// LLMConfig 用于配置大模型推理的调用方式。
type LLMConfig struct {
	Provider string             `json:"provider" yaml:"provider"`
	OpenAI   OpenAIConfig       `json:"openai" yaml:"openai"`
	Python   PythonBridgeConfig `json:"python_bridge" yaml:"python_bridge"`
}

// OpenAIConfig 描述兼容 OpenAI 协议的推理服务。
type OpenAIConfig struct {
	APIKey         string `json:"api_key" yaml:"api_key"`
	APIKeyEnv      string `json:"api_key_env" yaml:"api_key_env"`
	BaseURL        string `json:"base_url" yaml:"base_url"`
	Model          string `json:"model" yaml:"model"`
	TimeoutSeconds int    `json:"timeout_seconds" yaml:"timeout_seconds"`
	MaxTokens      int    `json:"max_tokens" yaml:"max_tokens"`
}

// PythonBridgeConfig 描述通过 Python 脚本完成推理时所需的信息。
type PythonBridgeConfig struct {
	PythonExecutable string `json:"python_executable" yaml:"python_executable"`
	ScriptPath       string `json:"script_path" yaml:"script_path"`
	WorkingDir       string `json:"working_dir" yaml:"working_dir"`
}

// KnowledgeConfig 描述自然语言到接口文档的检索方式。
type KnowledgeConfig struct {
	Provider       string `json:"provider" yaml:"provider"`
	Source         string `json:"source" yaml:"source"`
	MaxResults     int    `json:"max_results" yaml:"max_results"`
	PredictorURL   string `json:"predictor_url" yaml:"predictor_url"`
	TimeoutSeconds int    `json:"timeout_seconds" yaml:"timeout_seconds"`
}

// FlowConfig 控制登录与转账流程的限制。
type FlowConfig struct {
	Driver               string   `json:"driver" yaml:"driver"`
	TimeoutMinutes       int      `json:"timeout_minutes" yaml:"timeout_minutes"`
	MaxAttempts          int      `json:"max_attempts" yaml:"max_attempts"`
	Networks             []string `json:"networks" yaml:"networks"`
	RetentionMinutes     int      `json:"retention_minutes" yaml:"retention_minutes"`
	SweepIntervalSeconds int      `json:"sweep_interval_seconds" yaml:"sweep_interval_seconds"`
}

// SessionConfig 控制用户会话的存储位置。
type SessionConfig struct {
	Driver   string `json:"driver" yaml:"driver"`
	TTLHours int    `json:"ttl_hours" yaml:"ttl_hours"`
}

// RedisConfig 为会话、流程与事件共用的 Redis 连接参数。
type RedisConfig struct {
	Address   string `json:"address" yaml:"address"`
	Password  string `json:"password" yaml:"password"`
	DB        int    `json:"db" yaml:"db"`
	KeyPrefix string `json:"key_prefix" yaml:"key_prefix"`
}

// EventsConfig 控制审计事件的投递方式。
type EventsConfig struct {
	Driver   string         `json:"driver" yaml:"driver"`
	Queue    string         `json:"queue" yaml:"queue"`
	RabbitMQ RabbitMQConfig `json:"rabbitmq" yaml:"rabbitmq"`
}

// RabbitMQConfig 描述 RabbitMQ 连接参数。
type RabbitMQConfig struct {
	URL     string `json:"url" yaml:"url"`
	Durable bool   `json:"durable" yaml:"durable"`
}

// StorageConfig 统一描述持久化后端。
type StorageConfig struct {
	History HistoryConfig `json:"history" yaml:"history"`
}

// HistoryConfig 描述转账历史的存储方式。
type HistoryConfig struct {
	Driver          string `json:"driver" yaml:"driver"`
	DSN             string `json:"dsn" yaml:"dsn"`
	DSNEnv          string `json:"dsn_env" yaml:"dsn_env"`
	MaxOpenConns    int    `json:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns    int    `json:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetime int    `json:"conn_max_lifetime_seconds" yaml:"conn_max_lifetime_seconds"`
	AutoMigrate     bool   `json:"auto_migrate" yaml:"auto_migrate"`
}

// Web3Config 指向链节点定义文件。
type Web3Config struct {
	ChainConfig    string `json:"chain_config" yaml:"chain_config"`
	TimeoutSeconds int    `json:"timeout_seconds" yaml:"timeout_seconds"`
}

// LoggingConfig 映射到 pkg/logger 的配置。
type LoggingConfig struct {
	Level   string      `json:"level" yaml:"level"`
	Format  string      `json:"format" yaml:"format"`
	Outputs []string    `json:"outputs" yaml:"outputs"`
	Audit   AuditConfig `json:"audit" yaml:"audit"`
}

// AuditConfig 描述审计日志文件。
type AuditConfig struct {
	Enabled    bool   `json:"enabled" yaml:"enabled"`
	Path       string `json:"path" yaml:"path"`
	MaxSizeMB  int    `json:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `json:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `json:"max_age_days" yaml:"max_age_days"`
}

// AlertingConfig 描述告警通知渠道。
type AlertingConfig struct {
	WebhookURL     string `json:"webhook_url" yaml:"webhook_url"`
	TimeoutSeconds int    `json:"timeout_seconds" yaml:"timeout_seconds"`
}

// RuntimeConfig 用于放置运行时的通用参数。
type RuntimeConfig struct {
	DataDir string `json:"data_dir" yaml:"data_dir"`
}

// PathFromEnv 返回配置文件路径。
func PathFromEnv() string {
	if p := strings.TrimSpace(os.Getenv(EnvConfigPath)); p != "" {
		return p
	}
	return DefaultPath
}

// Load 解析指定路径的配置文件，根据扩展名选择 YAML 或 JSON。
// 文件不存在时返回默认配置。
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("配置文件路径为空")
	}

	var cfg Config
	content, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	default:
		if err := decode(path, content, &cfg); err != nil {
			return nil, err
		}
	}

	cfg.applyDefaults(filepath.Dir(path))
	cfg.resolveSecrets()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func decode(path string, content []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(content, cfg); err != nil {
			return fmt.Errorf("解析 JSON 配置失败: %w", err)
		}
	default:
		if err := yaml.Unmarshal(content, cfg); err != nil {
			return fmt.Errorf("解析 YAML 配置失败: %w", err)
		}
	}
	return nil
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.Server.ReadTimeoutSec <= 0 {
		c.Server.ReadTimeoutSec = 10
	}

	if c.Wallet.BaseURL == "" {
		c.Wallet.BaseURL = "https://sandbox-api.okto.tech/"
	}
	if c.Wallet.APIKeyEnv == "" {
		c.Wallet.APIKeyEnv = "OKTO_CLIENT_API_KEY"
	}
	if c.Wallet.UserAgent == "" {
		c.Wallet.UserAgent = "NextJSDev/1.0"
	}
	if c.Wallet.Referer == "" {
		c.Wallet.Referer = "http://localhost:3000"
	}
	if c.Wallet.TimeoutSeconds <= 0 {
		c.Wallet.TimeoutSeconds = 30
	}

	if c.LLM.Provider == "" {
		c.LLM.Provider = "openai"
	}
	if c.LLM.OpenAI.APIKeyEnv == "" {
		c.LLM.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
	}
	if c.LLM.OpenAI.TimeoutSeconds <= 0 {
		c.LLM.OpenAI.TimeoutSeconds = 60
	}
	if c.LLM.Python.PythonExecutable == "" {
		c.LLM.Python.PythonExecutable = "python3"
	}
	c.LLM.Python.WorkingDir = resolvePath(baseDir, c.LLM.Python.WorkingDir, baseDir)

	if c.Knowledge.Provider == "" {
		c.Knowledge.Provider = "static"
	}
	if c.Knowledge.MaxResults <= 0 {
		c.Knowledge.MaxResults = 5
	}
	if c.Knowledge.TimeoutSeconds <= 0 {
		c.Knowledge.TimeoutSeconds = 15
	}
	if c.Knowledge.Source != "" {
		c.Knowledge.Source = resolvePath(baseDir, c.Knowledge.Source, "")
	}

	if c.Flow.Driver == "" {
		c.Flow.Driver = "memory"
	}
	if c.Flow.TimeoutMinutes <= 0 {
		c.Flow.TimeoutMinutes = 15
	}
	if c.Flow.MaxAttempts <= 0 {
		c.Flow.MaxAttempts = 3
	}
	if len(c.Flow.Networks) == 0 {
		c.Flow.Networks = []string{"POLYGON", "ETHEREUM", "BSC"}
	}
	if c.Flow.RetentionMinutes <= 0 {
		c.Flow.RetentionMinutes = 60
	}
	if c.Flow.SweepIntervalSeconds <= 0 {
		c.Flow.SweepIntervalSeconds = 60
	}

	if c.Session.Driver == "" {
		c.Session.Driver = "memory"
	}

	if c.Redis.Address == "" {
		c.Redis.Address = "127.0.0.1:6379"
	}
	if c.Redis.KeyPrefix == "" {
		c.Redis.KeyPrefix = "walletchat"
	}

	if c.Events.Driver == "" {
		c.Events.Driver = "log"
	}
	if c.Events.Queue == "" {
		c.Events.Queue = "walletchat.events"
	}

	if c.Storage.History.Driver == "" {
		c.Storage.History.Driver = "file"
	}

	if c.Web3.ChainConfig != "" {
		c.Web3.ChainConfig = resolvePath(baseDir, c.Web3.ChainConfig, "")
	}
	if c.Web3.TimeoutSeconds <= 0 {
		c.Web3.TimeoutSeconds = 5
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	if c.Alerting.TimeoutSeconds <= 0 {
		c.Alerting.TimeoutSeconds = 5
	}

	c.Runtime.DataDir = resolvePath(baseDir, c.Runtime.DataDir, filepath.Join(baseDir, "data"))
	if c.Logging.Audit.Enabled && c.Logging.Audit.Path == "" {
		c.Logging.Audit.Path = filepath.Join(c.Runtime.DataDir, "audit.log")
	}
}

func resolvePath(baseDir, value, fallback string) string {
	switch {
	case value == "":
		return fallback
	case filepath.IsAbs(value):
		return value
	default:
		return filepath.Join(baseDir, value)
	}
}

// resolveSecrets 使用 *_env 指定的环境变量补全未在文件中填写的密钥。
func (c *Config) resolveSecrets() {
	fill := func(target *string, env string) {
		if *target != "" || env == "" {
			return
		}
		*target = strings.TrimSpace(os.Getenv(env))
	}
	fill(&c.Wallet.APIKey, c.Wallet.APIKeyEnv)
	fill(&c.LLM.OpenAI.APIKey, c.LLM.OpenAI.APIKeyEnv)
	fill(&c.Server.WebhookSecret, c.Server.WebhookSecretEnv)
	fill(&c.Storage.History.DSN, c.Storage.History.DSNEnv)
}

// Validate 检查驱动名称等枚举值。
func (c *Config) Validate() error {
	checks := []struct {
		field, value string
		allowed      []string
	}{
		{"llm.provider", c.LLM.Provider, []string{"openai", "python_bridge"}},
		{"knowledge.provider", c.Knowledge.Provider, []string{"static", "predictor", "none"}},
		{"flow.driver", c.Flow.Driver, []string{"memory", "redis"}},
		{"session.driver", c.Session.Driver, []string{"memory", "redis"}},
		{"events.driver", c.Events.Driver, []string{"log", "redis", "rabbitmq", "none"}},
		{"storage.history.driver", c.Storage.History.Driver, []string{"file", "mysql", "memory"}},
	}
	var errs []error
	for _, check := range checks {
		if !contains(check.allowed, check.value) {
			errs = append(errs, fmt.Errorf("%s 取值 %q 无效，可选 %s", check.field, check.value, strings.Join(check.allowed, "/")))
		}
	}
	if c.Knowledge.Provider == "predictor" && c.Knowledge.PredictorURL == "" {
		errs = append(errs, errors.New("knowledge.predictor_url 不能为空"))
	}
	if c.Storage.History.Driver == "mysql" && c.Storage.History.DSN == "" {
		errs = append(errs, errors.New("storage.history.dsn 不能为空"))
	}
	if c.Events.Driver == "rabbitmq" && c.Events.RabbitMQ.URL == "" {
		errs = append(errs, errors.New("events.rabbitmq.url 不能为空"))
	}
	return errors.Join(errs...)
}

func contains(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}

// FlowTimeout 返回流程超时时间。
func (c *Config) FlowTimeout() time.Duration {
	return time.Duration(c.Flow.TimeoutMinutes) * time.Minute
}

// FlowRetention 返回流程超时后继续保留的时间。
func (c *Config) FlowRetention() time.Duration {
	return time.Duration(c.Flow.RetentionMinutes) * time.Minute
}

// SessionTTL 返回会话的过期时间，0 表示永不过期。
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.Session.TTLHours) * time.Hour
}

// Seconds 将整数秒转换为 time.Duration。
func Seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
