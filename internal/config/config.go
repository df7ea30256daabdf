package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Auth struct {
		Secret string `yaml:"secret"`
	} `yaml:"auth"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Rabbit struct {
		URL string `yaml:"url"`
	} `yaml:"rabbit"`
	Grader struct {
		URL     string `yaml:"url"`
		Timeout string `yaml:"timeout"`
	} `yaml:"grader"`
	Content struct {
		TTL string `yaml:"ttl"`
	} `yaml:"content"`
	Game struct {
		QuizRoundDuration string `yaml:"quizRoundDuration"`
		CodeRoundDuration string `yaml:"codeRoundDuration"`
		SettleDelay       string `yaml:"settleDelay"`
		GetReadyDelay     string `yaml:"getReadyDelay"`
		AutoCloseGrace    string `yaml:"autoCloseGrace"`
		BasePoints        int    `yaml:"basePoints"`
		DecayStep         int    `yaml:"decayStep"`
		FloorPoint        int    `yaml:"floorPoint"`
		TopN              int    `yaml:"topN"`
		BonusXP           int    `yaml:"bonusXp"`
	} `yaml:"game"`
}

// Load reads YAML config from path.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
