// Package config loads application configuration from file, environment,
// and defaults via viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/aliendevit/minuteone/internal/score"
)

// Config is the full application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Store     StoreConfig     `mapstructure:"store"`
	Scoring   ScoringConfig   `mapstructure:"scoring"`
	Guards    GuardConfig     `mapstructure:"guards"`
	PlanPacks PlanPackConfig  `mapstructure:"planpacks"`
	Extractor ExtractorConfig `mapstructure:"extractor"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type StoreConfig struct {
	DBPath        string        `mapstructure:"db_path"`
	ContextWindow time.Duration `mapstructure:"context_window"`
	Retention     time.Duration `mapstructure:"retention"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

type ScoringConfig struct {
	Weights    score.Weights    `mapstructure:"weights"`
	Thresholds score.Thresholds `mapstructure:"thresholds"`
	RiskBumps  score.RiskBumps  `mapstructure:"risk_bumps"`
}

type GuardConfig struct {
	RenalCreatinineMax float64 `mapstructure:"renal_creatinine_max"`
}

type PlanPackConfig struct {
	Dir string `mapstructure:"dir"`
}

type ExtractorConfig struct {
	Provider       string `mapstructure:"provider"` // rules | model
	APIKey         string `mapstructure:"api_key"`
	Model          string `mapstructure:"model"`
	OntologySource string `mapstructure:"ontology_source"` // lexical | embedding
	EmbeddingURL   string `mapstructure:"embedding_url"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json | console
}

// Load reads configuration from the given file path (optional), environment
// variables prefixed MINUTEONE_, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	v.SetEnvPrefix("MINUTEONE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("store.db_path", "minuteone.db")
	v.SetDefault("store.context_window", 72*time.Hour)
	v.SetDefault("store.retention", 7*24*time.Hour)
	v.SetDefault("store.sweep_interval", time.Hour)

	w := score.DefaultWeights()
	v.SetDefault("scoring.weights.rule_hit", w.RuleHit)
	v.SetDefault("scoring.weights.p_model", w.Model)
	v.SetDefault("scoring.weights.asr", w.ASR)
	v.SetDefault("scoring.weights.ontology", w.Ontology)
	v.SetDefault("scoring.weights.context", w.Context)

	t := score.DefaultThresholds()
	v.SetDefault("scoring.thresholds.auto_accept", t.AutoAccept)
	v.SetDefault("scoring.thresholds.soft_confirm", t.SoftConfirm)
	v.SetDefault("scoring.thresholds.must_confirm", t.MustConfirm)

	b := score.DefaultRiskBumps()
	v.SetDefault("scoring.risk_bumps.high", b.High)
	v.SetDefault("scoring.risk_bumps.medium", b.Medium)

	v.SetDefault("guards.renal_creatinine_max", 2.0)

	v.SetDefault("planpacks.dir", "planpacks")

	v.SetDefault("extractor.provider", "rules")
	v.SetDefault("extractor.ontology_source", "lexical")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}
