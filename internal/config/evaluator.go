package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// EvaluatorConfig tunes the group move evaluator loop.
type EvaluatorConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	RunInterval time.Duration `mapstructure:"runInterval"`
	BatchSize   int           `mapstructure:"batchSize"`
	RunTimeout  time.Duration `mapstructure:"runTimeout"`
}

func DefaultEvaluatorConfig() EvaluatorConfig {
	return EvaluatorConfig{
		Enabled:     true,
		RunInterval: 30 * time.Second,
		BatchSize:   100,
		RunTimeout:  30 * time.Second,
	}
}

type EvaluatorConfigHolder struct {
	current atomic.Value // holds EvaluatorConfig
}

// NewStaticEvaluatorConfigHolder returns a holder that never reloads.
func NewStaticEvaluatorConfigHolder(cfg EvaluatorConfig) *EvaluatorConfigHolder {
	holder := &EvaluatorConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewEvaluatorConfigHolder() (*EvaluatorConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("evaluator")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/partnerflow/config")
	v.AddConfigPath("/etc/partnerflow")
	v.AddConfigPath(".")

	v.SetEnvPrefix("PARTNERFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultEvaluatorConfig()
	v.SetDefault("evaluator.enabled", defaults.Enabled)
	v.SetDefault("evaluator.runInterval", defaults.RunInterval)
	v.SetDefault("evaluator.batchSize", defaults.BatchSize)
	v.SetDefault("evaluator.runTimeout", defaults.RunTimeout)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileLoaded = false
	}

	cfg, err := decodeEvaluatorConfig(v)
	if err != nil {
		return nil, err
	}
	if err := validateEvaluatorConfig(cfg); err != nil {
		return nil, err
	}

	holder := &EvaluatorConfigHolder{}
	holder.current.Store(cfg)

	if fileLoaded {
		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			updated, err := decodeEvaluatorConfig(v)
			if err != nil {
				log.Printf("[evaluator-config] reload failed: %v", err)
				return
			}
			if err := validateEvaluatorConfig(updated); err != nil {
				log.Printf("[evaluator-config] invalid config ignored: %v", err)
				return
			}
			holder.current.Store(updated)
			log.Printf("[evaluator-config] reloaded from %s", e.Name)
		})
	}

	return holder, nil
}

func (h *EvaluatorConfigHolder) Get() EvaluatorConfig {
	if h == nil {
		return DefaultEvaluatorConfig()
	}
	cfg, ok := h.current.Load().(EvaluatorConfig)
	if !ok {
		return DefaultEvaluatorConfig()
	}
	return cfg
}

// decodeEvaluatorConfig unmarshals the full settings tree so defaults are
// merged under keys the file leaves out.
func decodeEvaluatorConfig(v *viper.Viper) (EvaluatorConfig, error) {
	var wrapper struct {
		Evaluator EvaluatorConfig `mapstructure:"evaluator"`
	}
	if err := v.Unmarshal(&wrapper); err != nil {
		return EvaluatorConfig{}, err
	}
	return wrapper.Evaluator, nil
}

func validateEvaluatorConfig(cfg EvaluatorConfig) error {
	if cfg.RunInterval <= 0 {
		return errors.New("evaluator.runInterval must be positive")
	}
	if cfg.BatchSize <= 0 {
		return errors.New("evaluator.batchSize must be positive")
	}
	if cfg.RunTimeout <= 0 {
		return errors.New("evaluator.runTimeout must be positive")
	}
	return nil
}
