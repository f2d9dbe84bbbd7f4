package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/sethvargo/go-envconfig"
	log "github.com/sirupsen/logrus"
)

type (
	Config struct {
		TelegramAPIToken string `env:"TOKEN,required"`
		LogLevel         int    `env:"LOG_LEVEL,default=4"`
		DotPath          string `env:"DOT_PATH,default=~/.guardbot"`
		RulesPath        string `env:"RULES_PATH,default=rules.yml"`
		MetricsAddr      string `env:"METRICS_ADDR,default=:2112"`
		Workers          int    `env:"WORKERS,default=16"`
		LLM              LLM
		Flood            Flood
		Moderation       Moderation
	}

	LLM struct {
		APIKey            string        `env:"LLM_API_KEY"`
		Model             string        `env:"LLM_API_MODEL,default=gpt-4o-mini"`
		BaseURL           string        `env:"LLM_API_URL,default=https://api.openai.com/v1"`
		Type              string        `env:"LLM_API_TYPE,default=openai"`
		Timeout           time.Duration `env:"LLM_TIMEOUT,default=5s"`
		SpamThreshold     float64       `env:"LLM_SPAM_THRESHOLD,default=0.7"`
		ToxicityThreshold float64       `env:"LLM_TOXICITY_THRESHOLD,default=0.8"`
	}

	Flood struct {
		Window    time.Duration `env:"FLOOD_WINDOW,default=60s"`
		Threshold int           `env:"FLOOD_THRESHOLD,default=5"`
	}

	Moderation struct {
		MaxWarnings         int           `env:"MAX_WARNINGS,default=3"`
		SimilarityThreshold float64       `env:"SIMILARITY_THRESHOLD,default=0.8"`
		HistoryDepth        int           `env:"HISTORY_DEPTH,default=5"`
		ReconcileInterval   time.Duration `env:"RECONCILE_INTERVAL,default=60s"`
		NoticeTTL           time.Duration `env:"NOTICE_TTL,default=10s"`
	}
)

var (
	once         sync.Once
	globalConfig = &Config{}
	globalErr    error
)

func Load() (Config, error) {
	once.Do(func() {
		cfg := &Config{}
		envcfg := envconfig.Config{
			Lookuper: envconfig.PrefixLookuper("GB_", envconfig.OsLookuper()),
			Target:   cfg,
		}
		if err := envconfig.ProcessWith(context.Background(), &envcfg); err != nil {
			globalErr = fmt.Errorf("process env config: %w", err)
			return
		}
		home, err := os.UserHomeDir()
		if err != nil {
			globalErr = fmt.Errorf("get user home directory: %w", err)
			return
		}
		cfg.DotPath = strings.Replace(cfg.DotPath, "~", home, 1)
		log.Traceln("loaded config")
		globalConfig = cfg
	})
	return *globalConfig, globalErr
}

func Get() Config {
	cfg, err := Load()
	if err != nil {
		log.WithField("error", err.Error()).Error("cant load config")
	}
	return cfg
}
