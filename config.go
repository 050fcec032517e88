package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type appConfig struct {
	BaseDir       string `yaml:"base_dir"`
	ScriptFile    string `yaml:"script_file"`
	DependencyDir string `yaml:"dependency_dir"`
	ProjectRoot   string `yaml:"project_root"`
	RuntimeHome   string `yaml:"runtime_home"`

	RequestCount   int           `yaml:"request_count"`
	RequestStagger time.Duration `yaml:"request_stagger"`
	DrainTimeout   time.Duration `yaml:"drain_timeout"`

	HTTPEnabled bool   `yaml:"http_enabled"`
	ServerPort  string `yaml:"server_port"`

	RedisEnabled   bool   `yaml:"redis_enabled"`
	RedisHost      string `yaml:"redis_host"`
	RedisPort      int    `yaml:"redis_port"`
	RequestQueue   string `yaml:"request_queue"`
	OutcomeChannel string `yaml:"outcome_channel"`

	StorageType string `yaml:"storage_type"`
	StoragePath string `yaml:"storage_path"`
	ScriptKey   string `yaml:"script_key"`

	XRayEnabled    bool   `yaml:"xray_enabled"`
	XRayDaemonAddr string `yaml:"xray_daemon_addr"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

func defaultConfig() appConfig {
	return appConfig{
		BaseDir:        ".",
		ScriptFile:     "scripts/agent.js",
		DependencyDir:  "node_modules",
		RequestCount:   5,
		RequestStagger: 100 * time.Millisecond,
		DrainTimeout:   30 * time.Second,
		HTTPEnabled:    true,
		ServerPort:     "8080",
		RedisHost:      "localhost",
		RedisPort:      6379,
		RequestQueue:   "agent_requests",
		OutcomeChannel: "agent_outcomes",
		ScriptKey:      "scripts/agent.js",
		XRayDaemonAddr: "127.0.0.1:2000",
		LogLevel:       "info",
		LogFormat:      "json",
	}
}

// loadConfig starts from defaults, applies CONFIG_FILE when set and lets
// environment variables override both.
func loadConfig() (appConfig, error) {
	cfg := defaultConfig()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.BaseDir = getEnv("BASE_DIR", cfg.BaseDir)
	cfg.ScriptFile = getEnv("SCRIPT_FILE", cfg.ScriptFile)
	cfg.DependencyDir = getEnv("DEPENDENCY_DIR", cfg.DependencyDir)
	cfg.ProjectRoot = getEnv("PROJECT_ROOT", cfg.ProjectRoot)
	cfg.RuntimeHome = getEnv("RUNTIME_HOME", cfg.RuntimeHome)

	cfg.RequestCount = getEnvInt("REQUEST_COUNT", cfg.RequestCount)
	cfg.RequestStagger = getEnvDuration("REQUEST_STAGGER", cfg.RequestStagger)
	cfg.DrainTimeout = getEnvDuration("DRAIN_TIMEOUT", cfg.DrainTimeout)

	cfg.HTTPEnabled = getEnvBool("HTTP_ENABLED", cfg.HTTPEnabled)
	cfg.ServerPort = getEnv("SERVER_PORT", cfg.ServerPort)

	cfg.RedisEnabled = getEnvBool("REDIS_ENABLED", cfg.RedisEnabled)
	cfg.RedisHost = getEnv("REDIS_HOST", cfg.RedisHost)
	cfg.RedisPort = getEnvInt("REDIS_PORT", cfg.RedisPort)
	cfg.RequestQueue = getEnv("REQUEST_QUEUE", cfg.RequestQueue)
	cfg.OutcomeChannel = getEnv("OUTCOME_CHANNEL", cfg.OutcomeChannel)

	cfg.StorageType = getEnv("STORAGE_TYPE", cfg.StorageType)
	cfg.StoragePath = getEnv("STORAGE_PATH", cfg.StoragePath)
	cfg.ScriptKey = getEnv("SCRIPT_KEY", cfg.ScriptKey)

	cfg.XRayEnabled = getEnvBool("XRAY_ENABLED", cfg.XRayEnabled)
	cfg.XRayDaemonAddr = getEnv("XRAY_DAEMON_ADDR", cfg.XRayDaemonAddr)

	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnv("LOG_FORMAT", cfg.LogFormat)

	if cfg.RequestCount < 0 {
		cfg.RequestCount = 0
	}
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvBool(key string, defaultValue bool) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return defaultValue
	}
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil || d < 0 {
		return defaultValue
	}
	return d
}
