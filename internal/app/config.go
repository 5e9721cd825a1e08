package app

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/devDhrubo/MXB2026-Dhaka-Mind-Havoc-EduSense-AI/internal/data/db"
	"github.com/devDhrubo/MXB2026-Dhaka-Mind-Havoc-EduSense-AI/internal/jobs/checkpoint"
	"github.com/devDhrubo/MXB2026-Dhaka-Mind-Havoc-EduSense-AI/internal/learner/knowledge"
	"github.com/devDhrubo/MXB2026-Dhaka-Mind-Havoc-EduSense-AI/internal/learner/policy"
	"github.com/devDhrubo/MXB2026-Dhaka-Mind-Havoc-EduSense-AI/internal/platform/envutil"
	"github.com/devDhrubo/MXB2026-Dhaka-Mind-Havoc-EduSense-AI/internal/platform/logger"
)

type Config struct {
	Port        string
	ServiceName string
	Environment string
	Version     string

	DB            db.Config
	SnapshotKeep  int
	RedisEnabled  bool
	ShutdownGrace time.Duration

	CheckpointCron        string
	CheckpointConcurrency int
	CheckpointTimeout     time.Duration

	Knowledge    knowledge.Params
	PolicyTuning map[string]policy.Tuning
}

// policyFile is the POLICY_CONFIG_PATH document:
//
//	policies:
//	  content_selection: {epsilon: 0.2, alpha: 0.1, gamma: 0.9}
//	knowledge: {p_init: 0.25}
type policyFile struct {
	Policies  map[string]policy.Tuning `yaml:"policies"`
	Knowledge *struct {
		PInit       *float64 `yaml:"p_init"`
		PTransition *float64 `yaml:"p_transition"`
		PCorrect    *float64 `yaml:"p_correct"`
		PGuess      *float64 `yaml:"p_guess"`
	} `yaml:"knowledge"`
}

func LoadConfig(log *logger.Logger) (Config, error) {
	cfg := Config{
		Port:        envutil.String("PORT", "8080"),
		ServiceName: envutil.String("OTEL_SERVICE_NAME", "edusense-learner"),
		Environment: envutil.String("APP_ENV", "development"),
		Version:     envutil.String("APP_VERSION", "dev"),

		DB:            db.ConfigFromEnv(),
		SnapshotKeep:  envutil.Int("SNAPSHOT_KEEP", 10),
		RedisEnabled:  strings.TrimSpace(os.Getenv("REDIS_ADDR")) != "",
		ShutdownGrace: envutil.Duration("SHUTDOWN_GRACE", 15*time.Second),

		CheckpointCron:        envutil.String("CHECKPOINT_CRON", checkpoint.DefaultSchedule),
		CheckpointConcurrency: envutil.Int("CHECKPOINT_CONCURRENCY", 4),
		CheckpointTimeout:     envutil.Duration("CHECKPOINT_TIMEOUT", time.Minute),

		Knowledge: knowledge.Params{
			PInit:       envutil.Float("BKT_P_INIT", knowledge.DefaultPInit),
			PTransition: envutil.Float("BKT_P_TRANSITION", knowledge.DefaultPTransition),
			PCorrect:    envutil.Float("BKT_P_CORRECT", knowledge.DefaultPCorrect),
			PGuess:      envutil.Float("BKT_P_GUESS", knowledge.DefaultPGuess),
		},
	}

	if path := strings.TrimSpace(os.Getenv("POLICY_CONFIG_PATH")); path != "" {
		if err := cfg.applyPolicyFile(path); err != nil {
			return Config{}, err
		}
		log.Info("policy config loaded", "path", path, "policies", len(cfg.PolicyTuning))
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyPolicyFile overlays the YAML file. Its knowledge block wins over the
// BKT_P_* variables.
func (c *Config) applyPolicyFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read policy config: %w", err)
	}
	var f policyFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("parse policy config %s: %w", path, err)
	}
	c.PolicyTuning = f.Policies
	if k := f.Knowledge; k != nil {
		if k.PInit != nil {
			c.Knowledge.PInit = *k.PInit
		}
		if k.PTransition != nil {
			c.Knowledge.PTransition = *k.PTransition
		}
		if k.PCorrect != nil {
			c.Knowledge.PCorrect = *k.PCorrect
		}
		if k.PGuess != nil {
			c.Knowledge.PGuess = *k.PGuess
		}
	}
	return nil
}

func (c Config) validate() error {
	for name, v := range map[string]float64{
		"p_init":       c.Knowledge.PInit,
		"p_transition": c.Knowledge.PTransition,
		"p_correct":    c.Knowledge.PCorrect,
		"p_guess":      c.Knowledge.PGuess,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("knowledge %s = %v outside [0,1]", name, v)
		}
	}
	if _, err := checkpoint.ParseSchedule(c.CheckpointCron); err != nil {
		return fmt.Errorf("CHECKPOINT_CRON: %w", err)
	}
	if c.CheckpointConcurrency < 1 {
		return fmt.Errorf("CHECKPOINT_CONCURRENCY must be positive, got %d", c.CheckpointConcurrency)
	}
	return nil
}
