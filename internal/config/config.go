// Package config loads and hot-reloads the workflow-service's configuration:
// a YAML file with environment overrides, watched via a single fsnotify
// watcher on the file's directory and re-decoded on write (spec.md §5
// ambient concerns).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/ledgerflow/workflowengine/pkg/retention"
)

// Config is the full, process-wide configuration shape.
type Config struct {
	LogLevel string `yaml:"log_level"`

	HTTP struct {
		Addr         string        `yaml:"addr"`
		ReadTimeout  time.Duration `yaml:"read_timeout"`
		WriteTimeout time.Duration `yaml:"write_timeout"`
	} `yaml:"http"`

	Postgres struct {
		DSN         string `yaml:"dsn"`
		MaxConns    int    `yaml:"max_conns"`
		AutoMigrate bool   `yaml:"auto_migrate"`
	} `yaml:"postgres"`

	Redis struct {
		Addr string        `yaml:"addr"`
		TTL  time.Duration `yaml:"ttl"`
	} `yaml:"redis"`

	Scheduler struct {
		GlobalParallelism int `yaml:"global_parallelism"`
	} `yaml:"scheduler"`

	AI struct {
		AnthropicAPIKey   string  `yaml:"anthropic_api_key"`
		AnthropicModel    string  `yaml:"anthropic_model"`
		BedrockModelID    string  `yaml:"bedrock_model_id"`
		RequestsPerSecond float64 `yaml:"requests_per_second"`
	} `yaml:"ai"`

	MarketData struct {
		BaseURL           string  `yaml:"base_url"`
		RequestsPerSecond float64 `yaml:"requests_per_second"`
	} `yaml:"marketdata"`

	Slack struct {
		Token   string `yaml:"token"`
		Channel string `yaml:"channel"`
	} `yaml:"slack"`

	Retention struct {
		Horizon       time.Duration `yaml:"horizon"`
		SweepInterval time.Duration `yaml:"sweep_interval"`
	} `yaml:"retention"`
}

func withDefaults(c Config) Config {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	if c.HTTP.ReadTimeout == 0 {
		c.HTTP.ReadTimeout = 30 * time.Second
	}
	if c.HTTP.WriteTimeout == 0 {
		c.HTTP.WriteTimeout = 30 * time.Second
	}
	if c.Postgres.MaxConns == 0 {
		c.Postgres.MaxConns = 10
	}
	if c.Redis.TTL == 0 {
		c.Redis.TTL = 5 * time.Minute
	}
	if c.Scheduler.GlobalParallelism == 0 {
		c.Scheduler.GlobalParallelism = 64
	}
	if c.AI.RequestsPerSecond == 0 {
		c.AI.RequestsPerSecond = 5
	}
	if c.MarketData.RequestsPerSecond == 0 {
		c.MarketData.RequestsPerSecond = 5
	}
	if c.Retention.Horizon == 0 {
		c.Retention.Horizon = retention.DefaultHorizon
	}
	if c.Retention.SweepInterval == 0 {
		c.Retention.SweepInterval = retention.DefaultInterval
	}
	return c
}

// applyEnvOverrides lets a handful of secrets and deployment-specific values
// come from the environment instead of the checked-in YAML file
// (WORKFLOWENGINE_ANTHROPIC_API_KEY, WORKFLOWENGINE_POSTGRES_DSN,
// WORKFLOWENGINE_REDIS_ADDR, WORKFLOWENGINE_SLACK_TOKEN,
// WORKFLOWENGINE_SCHEDULER_GLOBAL_PARALLELISM).
func applyEnvOverrides(c Config) Config {
	if v := os.Getenv("WORKFLOWENGINE_ANTHROPIC_API_KEY"); v != "" {
		c.AI.AnthropicAPIKey = v
	}
	if v := os.Getenv("WORKFLOWENGINE_POSTGRES_DSN"); v != "" {
		c.Postgres.DSN = v
	}
	if v := os.Getenv("WORKFLOWENGINE_REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("WORKFLOWENGINE_SLACK_TOKEN"); v != "" {
		c.Slack.Token = v
	}
	if v := os.Getenv("WORKFLOWENGINE_SCHEDULER_GLOBAL_PARALLELISM"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Scheduler.GlobalParallelism = n
		}
	}
	return c
}

func parse(raw []byte) (Config, error) {
	var c Config
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}
	return applyEnvOverrides(withDefaults(c)), nil
}

// Loader owns the current decoded Config and the hot-reload watcher.
type Loader struct {
	path string
	log  *logrus.Logger

	mu  sync.RWMutex
	cur Config

	watcher *fsnotify.Watcher
}

// Load reads path into a Loader and starts watching its containing
// directory for changes (watching the directory, not the file, survives the
// atomic rename most editors and ConfigMap mounts use to update a file).
func Load(path string, log *logrus.Logger) (*Loader, error) {
	if log == nil {
		log = logrus.New()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	cfg, err := parse(raw)
	if err != nil {
		return nil, err
	}

	l := &Loader{path: path, log: log, cur: cfg}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating config watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watching config directory: %w", err)
	}
	l.watcher = watcher
	go l.watch()

	return l, nil
}

func (l *Loader) watch() {
	base := filepath.Base(l.path)
	for event := range l.watcher.Events {
		if filepath.Base(event.Name) != base {
			continue
		}
		if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
			continue
		}
		l.reload()
	}
}

func (l *Loader) reload() {
	raw, err := os.ReadFile(l.path)
	if err != nil {
		l.log.WithError(err).Warn("config reload: read failed, keeping previous config")
		return
	}
	cfg, err := parse(raw)
	if err != nil {
		l.log.WithError(err).Warn("config reload: invalid config, keeping previous config")
		return
	}
	l.mu.Lock()
	l.cur = cfg
	l.mu.Unlock()
	l.log.Info("config reloaded")
}

// Current returns a snapshot of the currently-loaded configuration, safe to
// call concurrently with a reload in progress.
func (l *Loader) Current() Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cur
}

// Close stops the background watcher.
func (l *Loader) Close() error {
	if l.watcher == nil {
		return nil
	}
	return l.watcher.Close()
}
