package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is resolved once at startup and passed by value into the
// components that need it. Nothing mutates it afterwards.
type Config struct {
	EnginePath string `yaml:"engine_path"`

	Username string `yaml:"username"`
	Password string `yaml:"password"`

	BaseURL  string `yaml:"base_url"`
	Headless bool   `yaml:"headless"`

	LogMoves       bool   `yaml:"log_moves"`
	MaxMoves       int    `yaml:"max_moves"`
	ContinuousPlay bool   `yaml:"continuous_play"`
	LogDir         string `yaml:"log_dir"`
	SnapshotDir    string `yaml:"snapshot_dir"`

	MoveTimeMillis int `yaml:"move_time_ms"`
	SkillLevel     int `yaml:"skill_level"`
	Threads        int `yaml:"threads"`
	HashMB         int `yaml:"hash_mb"`

	RedisURL string `yaml:"redis_url"`
}

const (
	defaultBaseURL  = "https://www.chess.com"
	defaultMaxMoves = 100
	defaultMoveTime = 1000
	defaultSkill    = 15
	defaultThreads  = 1
	defaultHashMB   = 16
	defaultLogDir   = "games"
)

// Load builds the configuration from an optional YAML file (TRAINER_CONFIG)
// with environment variables taking precedence.
func Load() (*Config, error) {
	cfg := &Config{
		BaseURL:        defaultBaseURL,
		Headless:       false,
		LogMoves:       true,
		MaxMoves:       defaultMaxMoves,
		MoveTimeMillis: defaultMoveTime,
		SkillLevel:     defaultSkill,
		Threads:        defaultThreads,
		HashMB:         defaultHashMB,
		LogDir:         defaultLogDir,
	}

	if path := strings.TrimSpace(os.Getenv("TRAINER_CONFIG")); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if cfg.EnginePath == "" {
		return nil, errors.New("ENGINE_PATH is required")
	}
	if cfg.MaxMoves <= 0 {
		return nil, fmt.Errorf("max_moves must be positive: %d", cfg.MaxMoves)
	}
	if cfg.SkillLevel < 0 || cfg.SkillLevel > 20 {
		return nil, fmt.Errorf("skill_level %d out of range 0-20", cfg.SkillLevel)
	}
	if cfg.LogDir == "" {
		cfg.LogDir = defaultLogDir
	}

	return cfg, nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.EnginePath, "ENGINE_PATH")
	setString(&cfg.Username, "TRAINER_USERNAME")
	setString(&cfg.Password, "TRAINER_PASSWORD")
	setString(&cfg.BaseURL, "BASE_URL")
	setString(&cfg.LogDir, "LOG_DIR")
	setString(&cfg.SnapshotDir, "SNAPSHOT_DIR")
	setString(&cfg.RedisURL, "REDIS_URL")

	setBool(&cfg.Headless, "HEADLESS")
	setBool(&cfg.LogMoves, "LOG_MOVES")
	setBool(&cfg.ContinuousPlay, "CONTINUOUS_PLAY")

	setInt(&cfg.MaxMoves, "MAX_MOVES")
	setInt(&cfg.MoveTimeMillis, "MOVE_TIME_MS")
	setInt(&cfg.SkillLevel, "SKILL_LEVEL")
	setInt(&cfg.Threads, "THREADS")
	setInt(&cfg.HashMB, "HASH_MB")
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setInt(dst *int, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
