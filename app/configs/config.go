package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

type Config struct {
	Agent    AgentConfig    `json:"agent"`
	Server   ServerConfig   `json:"server"`
	Google   GoogleConfig   `json:"google"`
	LLM      LLMConfig      `json:"llm"`
	Calendar CalendarConfig `json:"calendar"`
	Telegram TelegramConfig `json:"telegram"`
	Storage  StorageConfig  `json:"storage"`
	Trace    TraceConfig    `json:"trace"`
}

type AgentConfig struct {
	Name      string `json:"name"`
	CLIUserID string `json:"cli_user_id"`
	EnableCLI bool   `json:"enable_cli"`
}

type ServerConfig struct {
	Port            int    `json:"port"`
	BaseURL         string `json:"base_url"`
	SessionSecret   string `json:"session_secret"`
	ResponseTimeout int    `json:"response_timeout_sec"`
}

type GoogleConfig struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	RedirectURL  string `json:"redirect_url"`
}

type LLMConfig struct {
	APIKey          string `json:"api_key"`
	BaseURL         string `json:"base_url"`
	Model           string `json:"model"`
	TranscribeModel string `json:"transcribe_model"`
}

type CalendarConfig struct {
	TimeZone           string `json:"time_zone"`
	DefaultDurationMin int    `json:"default_duration_min"`
	MaxResults         int    `json:"max_results"`
}

type TelegramConfig struct {
	BotToken        string `json:"bot_token"`
	PollIntervalSec int    `json:"poll_interval_sec"`
	TimeoutSeconds  int    `json:"timeout_seconds"`
}

type StorageConfig struct {
	DataDir string `json:"data_dir"`
	LogDir  string `json:"log_dir"`
}

type TraceConfig struct {
	RetentionDays int `json:"retention_days"`
}

type Manager struct {
	path string
	mu   sync.RWMutex
	cfg  Config
}

func DefaultPath() string {
	return filepath.Join("config", "config.json")
}

func NewManager(path string) (*Manager, error) {
	cfg := defaultConfig()
	mgr := &Manager{
		path: path,
		cfg:  cfg,
	}
	if err := mgr.load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	}
	if err := mgr.save(); err != nil {
		return nil, err
	}
	return mgr, nil
}

func (m *Manager) Get() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

func (m *Manager) Update(apply func(*Config)) (Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	apply(&m.cfg)
	applyDefaults(&m.cfg)
	if err := m.saveLocked(); err != nil {
		return Config{}, err
	}
	return m.cfg, nil
}

func (m *Manager) load() error {
	data, err := os.ReadFile(m.path)
	if err != nil {
		return err
	}
	var fileCfg Config
	if err := json.Unmarshal(data, &fileCfg); err != nil {
		return err
	}
	m.cfg = fileCfg
	applyDefaults(&m.cfg)
	applyEnv(&m.cfg)
	return nil
}

func (m *Manager) save() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveLocked()
}

func (m *Manager) saveLocked() error {
	if err := os.MkdirAll(filepath.Dir(m.path), 0755); err != nil {
		return err
	}
	// Secrets live in the environment; never write them back to disk.
	redacted := m.cfg
	redacted.Google.ClientSecret = ""
	redacted.LLM.APIKey = ""
	redacted.Server.SessionSecret = ""
	redacted.Telegram.BotToken = ""
	data, err := json.MarshalIndent(redacted, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(m.path, data, 0644)
}

func defaultConfig() Config {
	cfg := Config{
		Agent: AgentConfig{
			Name:      "CalAgent",
			CLIUserID: "local_user",
		},
	}
	applyDefaults(&cfg)
	applyEnv(&cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Agent.Name) == "" {
		cfg.Agent.Name = "CalAgent"
	}
	if strings.TrimSpace(cfg.Agent.CLIUserID) == "" {
		cfg.Agent.CLIUserID = "local_user"
	}
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 10000
	}
	if strings.TrimSpace(cfg.Server.BaseURL) == "" {
		cfg.Server.BaseURL = "http://localhost:10000"
	}
	if cfg.Server.ResponseTimeout <= 0 {
		cfg.Server.ResponseTimeout = 60
	}
	if strings.TrimSpace(cfg.Google.RedirectURL) == "" {
		cfg.Google.RedirectURL = strings.TrimRight(cfg.Server.BaseURL, "/") + "/oauth2callback"
	}
	if strings.TrimSpace(cfg.LLM.BaseURL) == "" {
		cfg.LLM.BaseURL = "https://api.groq.com/openai/v1"
	}
	if strings.TrimSpace(cfg.LLM.Model) == "" {
		cfg.LLM.Model = "llama-3.3-70b-versatile"
	}
	if strings.TrimSpace(cfg.LLM.TranscribeModel) == "" {
		cfg.LLM.TranscribeModel = "whisper-large-v3"
	}
	if strings.TrimSpace(cfg.Calendar.TimeZone) == "" {
		cfg.Calendar.TimeZone = "Local"
	}
	if cfg.Calendar.DefaultDurationMin <= 0 {
		cfg.Calendar.DefaultDurationMin = 60
	}
	if cfg.Calendar.MaxResults <= 0 {
		cfg.Calendar.MaxResults = 50
	}
	if cfg.Telegram.PollIntervalSec <= 0 {
		cfg.Telegram.PollIntervalSec = 2
	}
	if cfg.Telegram.TimeoutSeconds <= 0 {
		cfg.Telegram.TimeoutSeconds = 20
	}
	if strings.TrimSpace(cfg.Storage.DataDir) == "" {
		cfg.Storage.DataDir = filepath.Join("output", "db")
	}
	if strings.TrimSpace(cfg.Storage.LogDir) == "" {
		cfg.Storage.LogDir = filepath.Join("output", "logs")
	}
	if cfg.Trace.RetentionDays <= 0 {
		cfg.Trace.RetentionDays = 30
	}
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("GOOGLE_CLIENT_ID"); v != "" {
		cfg.Google.ClientID = v
	}
	if v := os.Getenv("GOOGLE_CLIENT_SECRET"); v != "" {
		cfg.Google.ClientSecret = v
	}
	if v := os.Getenv("GOOGLE_REDIRECT_URL"); v != "" {
		cfg.Google.RedirectURL = v
	}
	if v := os.Getenv("GROQ_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("LLM_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("SESSION_SECRET"); v != "" {
		cfg.Server.SessionSecret = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.BotToken = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			cfg.Server.Port = port
		}
	}
}
