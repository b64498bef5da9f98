// Copyright (C) ConfigHub, Inc.
// SPDX-License-Identifier: MIT

// Package config resolves cub-deploy settings from flags, CUB_DEPLOY_*
// environment variables and an optional config file, in that order of
// precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/confighub/cub-deploy/internal/logging"
	"github.com/confighub/cub-deploy/internal/state"
)

// EnvPrefix prefixes every environment variable, e.g. CUB_DEPLOY_AI_URL.
const EnvPrefix = "CUB_DEPLOY"

// Keys understood in the config file and environment.
const (
	KeyLogLevel        = "log-level"
	KeyNamespace       = "namespace"
	KeyKubeconfig      = "kubeconfig"
	KeyContext         = "context"
	KeyAIURL           = "ai.url"
	KeyAIToken         = "ai.token"
	KeyAITimeout       = "ai.timeout"
	KeyStatePath       = "state.path"
	KeyTrackerInterval = "tracker.interval"
	KeyTrackerTimeout  = "tracker.timeout"
	KeyListTimeout     = "list.timeout"
	KeyProdPatterns    = "prod-patterns"
)

// DefaultProdPatterns are namespace segments treated as production.
var DefaultProdPatterns = []string{"prod", "production", "prd", "live"}

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"log-level":  KeyLogLevel,
	"namespace":  KeyNamespace,
	"kubeconfig": KeyKubeconfig,
	"context":    KeyContext,
	"ai-url":     KeyAIURL,
	"ai-token":   KeyAIToken,
	"state-path": KeyStatePath,
}

// Config is the resolved configuration.
type Config struct {
	LogLevel     string
	// Namespace overrides the saved editor namespace when set.
	Namespace    string
	Kubeconfig   string
	Context      string
	AI           AIConfig
	StatePath    string
	Tracker      TrackerConfig
	ListTimeout  time.Duration
	ProdPatterns []string
}

// AIConfig selects the review service.
type AIConfig struct {
	URL     string
	Token   string
	Timeout time.Duration
}

// TrackerConfig holds health tracking timings.
type TrackerConfig struct {
	Interval time.Duration
	Timeout  time.Duration
}

// Loader reads configuration. Create one per process.
type Loader struct {
	v            *viper.Viper
	explicitPath string
}

// NewLoader prepares a loader. explicitPath, or $CUB_DEPLOY_CONFIG when
// empty, names a config file that must exist; otherwise config.yaml is
// looked up in the user config directories and may be absent.
func NewLoader(explicitPath string) *Loader {
	if explicitPath == "" {
		explicitPath = os.Getenv(EnvPrefix + "_CONFIG")
	}
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	setDefaults(v)
	configureConfigFile(v, explicitPath)
	return &Loader{v: v, explicitPath: explicitPath}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyAITimeout, 60*time.Second)
	v.SetDefault(KeyTrackerInterval, 3*time.Second)
	v.SetDefault(KeyTrackerTimeout, 60*time.Second)
	v.SetDefault(KeyListTimeout, 35*time.Second)
	v.SetDefault(KeyProdPatterns, DefaultProdPatterns)
}

// BindFlags binds the known flags present in fs. Flags the user did not
// set fall back to the environment, then the config file.
func (l *Loader) BindFlags(fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := l.v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind --%s: %w", name, err)
		}
	}
	return nil
}

// Load reads the config file and resolves every key.
func (l *Loader) Load() (Config, error) {
	if err := readConfigFile(l.v, l.explicitPath != ""); err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	cfg := Config{
		LogLevel:   l.v.GetString(KeyLogLevel),
		Namespace:  l.v.GetString(KeyNamespace),
		Kubeconfig: l.v.GetString(KeyKubeconfig),
		Context:    l.v.GetString(KeyContext),
		AI: AIConfig{
			URL:     l.v.GetString(KeyAIURL),
			Token:   l.v.GetString(KeyAIToken),
			Timeout: l.v.GetDuration(KeyAITimeout),
		},
		StatePath: l.v.GetString(KeyStatePath),
		Tracker: TrackerConfig{
			Interval: l.v.GetDuration(KeyTrackerInterval),
			Timeout:  l.v.GetDuration(KeyTrackerTimeout),
		},
		ListTimeout:  l.v.GetDuration(KeyListTimeout),
		ProdPatterns: l.v.GetStringSlice(KeyProdPatterns),
	}
	if cfg.StatePath == "" {
		path, err := state.DefaultPath()
		if err != nil {
			return Config{}, fmt.Errorf("locate state file: %w", err)
		}
		cfg.StatePath = path
	}
	return cfg, cfg.validate()
}

// ConfigFileUsed returns the path of the file that was read, if any.
func (l *Loader) ConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

func (c Config) validate() error {
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	for key, d := range map[string]time.Duration{
		KeyAITimeout:       c.AI.Timeout,
		KeyTrackerInterval: c.Tracker.Interval,
		KeyTrackerTimeout:  c.Tracker.Timeout,
		KeyListTimeout:     c.ListTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", key, d)
		}
	}
	if c.Tracker.Interval > c.Tracker.Timeout {
		return fmt.Errorf("%s (%s) exceeds %s (%s)", KeyTrackerInterval, c.Tracker.Interval, KeyTrackerTimeout, c.Tracker.Timeout)
	}
	return nil
}

// IsProdNamespace reports whether any dash, dot or underscore separated
// segment of namespace matches one of the production patterns.
func (c Config) IsProdNamespace(namespace string) bool {
	return IsProdNamespace(namespace, c.ProdPatterns)
}

// IsProdNamespace matches namespace segments case-insensitively. Empty
// patterns fall back to DefaultProdPatterns.
func IsProdNamespace(namespace string, patterns []string) bool {
	if len(patterns) == 0 {
		patterns = DefaultProdPatterns
	}
	segments := strings.FieldsFunc(strings.ToLower(namespace), func(r rune) bool {
		return r == '-' || r == '.' || r == '_'
	})
	for _, p := range patterns {
		p = strings.ToLower(p)
		for _, seg := range segments {
			if seg == p {
				return true
			}
		}
	}
	return false
}

func configureConfigFile(v *viper.Viper, explicitPath string) {
	if explicitPath != "" {
		v.SetConfigFile(explicitPath)
		return
	}
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, dir := range configSearchDirs() {
		v.AddConfigPath(dir)
	}
}

func readConfigFile(v *viper.Viper, strict bool) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) && !strict {
			return nil
		}
		return err
	}
	return nil
}

func configSearchDirs() []string {
	var dirs []string
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		dirs = append(dirs, filepath.Join(xdg, "cub-deploy"))
	}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		dir := filepath.Join(home, ".config", "cub-deploy")
		if len(dirs) == 0 || dirs[0] != dir {
			dirs = append(dirs, dir)
		}
	}
	return dirs
}
