package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

const (
	AskModeHTTP = "http"
	AskModeLLM  = "llm"

	StoreDriverSQLite = "sqlite"
	StoreDriverMemory = "memory"
)

// Config 聚合整个客户端的配置项。
type Config struct {
	Server     ServerConfig
	Ask        AskConfig
	AI         AIConfig
	Store      StoreConfig
	Typewriter TypewriterConfig
	Log        LogConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ask, err := loadAskConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	store, err := loadStoreConfig()
	if err != nil {
		return nil, err
	}

	typewriter, err := loadTypewriterConfig()
	if err != nil {
		return nil, err
	}

	log, err := loadLogConfig()
	if err != nil {
		return nil, err
	}

	if ask.Mode == AskModeLLM && !ai.Enabled() {
		return nil, fmt.Errorf("ASK_MODE=%s 需要 Ark 凭证：至少提供 ARK_API_KEY + Model 或 AK/SK 组合", AskModeLLM)
	}

	return &Config{
		Server:     server,
		Ask:        ask,
		AI:         ai,
		Store:      store,
		Typewriter: typewriter,
		Log:        log,
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// AskConfig 描述问答后端。
type AskConfig struct {
	Mode    string
	BaseURL string
	Timeout time.Duration
}

func loadAskConfig() (AskConfig, error) {
	mode, err := parseChoiceEnv("ASK_MODE", AskModeHTTP, AskModeHTTP, AskModeLLM)
	if err != nil {
		return AskConfig{}, err
	}

	timeout, err := parsePositiveIntEnv("ASK_TIMEOUT_SECONDS", 60)
	if err != nil {
		return AskConfig{}, err
	}

	return AskConfig{
		Mode:    mode,
		BaseURL: getEnvOrDefault("ASK_BASE_URL", "http://localhost:8000"),
		Timeout: time.Duration(timeout) * time.Second,
	}, nil
}

// AIConfig 描述大模型相关配置，仅在 ASK_MODE=llm 时使用。
type AIConfig struct {
	APIKey      string
	AccessKey   string
	SecretKey   string
	Model       string
	BaseURL     string
	Region      string
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
}

// Enabled 表示是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置创建一个模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("Ark 凭证或模型配置缺失，至少提供 ARK_API_KEY + Model 或 AK/SK 组合")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	return AIConfig{
		APIKey:      strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:   strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:   strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:       strings.TrimSpace(os.Getenv("Model")),
		BaseURL:     getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:      getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature: temperature,
		TopP:        topP,
		MaxTokens:   maxTokens,
	}, nil
}

// StoreConfig 描述会话持久化。
type StoreConfig struct {
	Driver string
	Path   string
}

func loadStoreConfig() (StoreConfig, error) {
	driver, err := parseChoiceEnv("STORE_DRIVER", StoreDriverSQLite, StoreDriverSQLite, StoreDriverMemory)
	if err != nil {
		return StoreConfig{}, err
	}
	return StoreConfig{
		Driver: driver,
		Path:   getEnvOrDefault("STORE_PATH", "medrag-chat.db"),
	}, nil
}

// TypewriterConfig 描述逐字显示效果。
type TypewriterConfig struct {
	Interval  time.Duration
	MaxLength int
}

func loadTypewriterConfig() (TypewriterConfig, error) {
	interval, err := parsePositiveIntEnv("TYPEWRITER_INTERVAL_MS", 15)
	if err != nil {
		return TypewriterConfig{}, err
	}

	maxLength, err := parsePositiveIntEnv("TYPEWRITER_MAX_LENGTH", 1200)
	if err != nil {
		return TypewriterConfig{}, err
	}

	return TypewriterConfig{
		Interval:  time.Duration(interval) * time.Millisecond,
		MaxLength: maxLength,
	}, nil
}

// LogConfig 描述日志输出。
type LogConfig struct {
	Level  string
	Format string
}

func loadLogConfig() (LogConfig, error) {
	format, err := parseChoiceEnv("LOG_FORMAT", "json", "json", "console")
	if err != nil {
		return LogConfig{}, err
	}
	return LogConfig{
		Level:  strings.ToLower(getEnvOrDefault("LOG_LEVEL", "info")),
		Format: format,
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseChoiceEnv(key, defaultValue string, allowed ...string) (string, error) {
	value := strings.ToLower(getEnvOrDefault(key, defaultValue))
	for _, candidate := range allowed {
		if value == candidate {
			return value, nil
		}
	}
	return "", fmt.Errorf("invalid %s value %q: expected one of %s", key, value, strings.Join(allowed, ", "))
}

func parsePositiveIntEnv(key string, defaultValue int) (int, error) {
	val, err := parseOptionalIntEnv(key)
	if err != nil {
		return 0, err
	}
	if val == nil {
		return defaultValue, nil
	}
	if *val <= 0 {
		return 0, fmt.Errorf("invalid %s value %d: must be positive", key, *val)
	}
	return *val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
