package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config 聊天客户端与中继服务的全部配置
type Config struct {
	Env    string       `yaml:"env"`
	Relay  RelayConfig  `yaml:"relay"`
	Client ClientConfig `yaml:"client"`
	Log    LogConfig    `yaml:"log"`
}

// RelayConfig 中继服务（WebSocket + 历史记录 API）
type RelayConfig struct {
	Port         string   `yaml:"port"`
	DatabaseDSN  string   `yaml:"database_dsn"` // 为空时使用内存存储
	AllowOrigins []string `yaml:"allow_origins"`
	PingInterval Duration `yaml:"ping_interval"`
	PongTimeout  Duration `yaml:"pong_timeout"`
	HistoryLimit int      `yaml:"history_limit"`
}

// ClientConfig 同步层客户端
type ClientConfig struct {
	ServerURL           string   `yaml:"server_url"`
	APIBaseURL          string   `yaml:"api_base_url"`
	ParticipantID       string   `yaml:"participant_id"`
	GroupID             string   `yaml:"group_id"`
	TypingTTL           Duration `yaml:"typing_ttl"`
	TypingThrottle      Duration `yaml:"typing_throttle"`
	DedupWindow         Duration `yaml:"dedup_window"`
	OptimisticGroupSend bool     `yaml:"optimistic_group_send"`
	HistoryTimeout      Duration `yaml:"history_timeout"`
	ReconnectMin        Duration `yaml:"reconnect_min"`
	ReconnectMax        Duration `yaml:"reconnect_max"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Duration accepts "2s"-style strings or plain numbers (seconds).
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*d = 0
		return nil
	}
	v, err := parseDuration(node.Value)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) Duration() time.Duration { return time.Duration(d) }

func parseDuration(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	if td, err := time.ParseDuration(raw); err == nil {
		return td, nil
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return time.Duration(f * float64(time.Second)), nil
	}
	return 0, fmt.Errorf("invalid duration value: %q", raw)
}

// Default 返回开发环境默认值
func Default() *Config {
	return &Config{
		Env: "development",
		Relay: RelayConfig{
			Port:         "8082",
			AllowOrigins: []string{"*"},
			PingInterval: Duration(10 * time.Second),
			PongTimeout:  Duration(15 * time.Second),
			HistoryLimit: 200,
		},
		Client: ClientConfig{
			ServerURL:      "ws://localhost:8082/ws",
			APIBaseURL:     "http://localhost:8082",
			GroupID:        "doctors",
			TypingTTL:      Duration(2 * time.Second),
			TypingThrottle: Duration(500 * time.Millisecond),
			DedupWindow:    Duration(time.Second),
			ReconnectMin:   Duration(500 * time.Millisecond),
			ReconnectMax:   Duration(15 * time.Second),
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Load 依次读取 .env、CHAT_CONFIG 指定的 YAML 文件以及环境变量
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug("no .env file loaded")
	}

	cfg := Default()
	if path := os.Getenv("CHAT_CONFIG"); path != "" {
		if err := LoadFile(path, cfg); err != nil {
			return nil, err
		}
	}
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile overlays the YAML file at path onto cfg.
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	setString(&cfg.Env, "ENV")
	setString(&cfg.Relay.Port, "PORT")
	setString(&cfg.Relay.DatabaseDSN, "DATABASE_DSN")
	setString(&cfg.Client.ServerURL, "CHAT_SERVER_URL")
	setString(&cfg.Client.APIBaseURL, "CHAT_API_URL")
	setString(&cfg.Client.ParticipantID, "CHAT_PARTICIPANT_ID")
	setString(&cfg.Client.GroupID, "CHAT_GROUP_ID")
	setString(&cfg.Log.Level, "LOG_LEVEL")
	setString(&cfg.Log.Format, "LOG_FORMAT")

	if v := os.Getenv("CHAT_ALLOW_ORIGINS"); v != "" {
		cfg.Relay.AllowOrigins = strings.Split(v, ",")
	}
	if v := os.Getenv("CHAT_OPTIMISTIC_GROUP"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("CHAT_OPTIMISTIC_GROUP: %w", err)
		}
		cfg.Client.OptimisticGroupSend = b
	}

	durations := map[string]*Duration{
		"CHAT_TYPING_TTL":      &cfg.Client.TypingTTL,
		"CHAT_TYPING_THROTTLE": &cfg.Client.TypingThrottle,
		"CHAT_DEDUP_WINDOW":    &cfg.Client.DedupWindow,
		"CHAT_HISTORY_TIMEOUT": &cfg.Client.HistoryTimeout,
		"CHAT_RECONNECT_MIN":   &cfg.Client.ReconnectMin,
		"CHAT_RECONNECT_MAX":   &cfg.Client.ReconnectMax,
		"RELAY_PING_INTERVAL":  &cfg.Relay.PingInterval,
		"RELAY_PONG_TIMEOUT":   &cfg.Relay.PongTimeout,
	}
	for key, dst := range durations {
		v := os.Getenv(key)
		if v == "" {
			continue
		}
		d, err := parseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = Duration(d)
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}
