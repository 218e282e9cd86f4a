package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const dateLayout = "2006-01-02"

// StateMapping translates one source pass state into the reporting vocabulary.
// It is a list rather than a map because viper lowercases map keys.
type StateMapping struct {
	From string `mapstructure:"from"`
	To   string `mapstructure:"to"`
}

// ImportConfig tunes a pipeline run. It is re-read on file change, so every
// run takes a fresh copy through ImportConfigHolder.Get.
type ImportConfig struct {
	HistoricalFloor         string         `mapstructure:"historicalFloor"`
	BatchSize               int            `mapstructure:"batchSize"`
	StatementSize           int            `mapstructure:"statementSize"`
	Lanes                   int            `mapstructure:"lanes"`
	Interval                time.Duration  `mapstructure:"interval"`
	StateVocabulary         []StateMapping `mapstructure:"stateVocabulary"`
	Entities                []string       `mapstructure:"entities"`
	UncategorizedSampleSize int            `mapstructure:"uncategorizedSampleSize"`
}

func DefaultImportConfig() ImportConfig {
	return ImportConfig{
		HistoricalFloor: "2018-01-01",
		BatchSize:       500,
		StatementSize:   100,
		Lanes:           1,
		Interval:        6 * time.Hour,
		StateVocabulary: []StateMapping{
			{From: "Active", To: "Valid Now"},
			{From: "Trialing", To: "In Trial"},
		},
		UncategorizedSampleSize: 5,
	}
}

// Floor is the first day fetched for a report type that was never imported.
func (c ImportConfig) Floor() time.Time {
	t, err := time.Parse(dateLayout, strings.TrimSpace(c.HistoricalFloor))
	if err != nil {
		return time.Date(2018, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	return t
}

func (c ImportConfig) Vocabulary() map[string]string {
	out := make(map[string]string, len(c.StateVocabulary))
	for _, m := range c.StateVocabulary {
		out[m.From] = m.To
	}
	return out
}

// EntityEnabled reports whether an entity type should run. An empty list
// enables all of them.
func (c ImportConfig) EntityEnabled(entity string) bool {
	if len(c.Entities) == 0 {
		return true
	}
	for _, e := range c.Entities {
		if strings.EqualFold(strings.TrimSpace(e), entity) {
			return true
		}
	}
	return false
}

type ImportConfigHolder struct {
	current atomic.Value // holds ImportConfig
}

// NewStaticImportConfigHolder serves a fixed config, for tests and one-off runs.
func NewStaticImportConfigHolder(cfg ImportConfig) *ImportConfigHolder {
	holder := &ImportConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewImportConfigHolder(logger *zap.Logger) (*ImportConfigHolder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("config.import")
	v := viper.New()

	v.SetConfigName("import")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/studiosync")
	v.AddConfigPath(".")

	v.SetEnvPrefix("STUDIOSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultImportConfig()
	v.SetDefault("import.historicalFloor", defaults.HistoricalFloor)
	v.SetDefault("import.batchSize", defaults.BatchSize)
	v.SetDefault("import.statementSize", defaults.StatementSize)
	v.SetDefault("import.lanes", defaults.Lanes)
	v.SetDefault("import.interval", defaults.Interval)
	v.SetDefault("import.stateVocabulary", defaults.StateVocabulary)
	v.SetDefault("import.uncategorizedSampleSize", defaults.UncategorizedSampleSize)

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileFound = false
	}

	cfg, err := decodeImportConfig(v)
	if err != nil {
		return nil, err
	}

	holder := &ImportConfigHolder{}
	holder.current.Store(cfg)

	if fileFound {
		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			updated, err := decodeImportConfig(v)
			if err != nil {
				logger.Warn("config.import.invalid", zap.Error(err))
				return
			}
			holder.current.Store(updated)
			logger.Info("config.import.reloaded", zap.String("file", e.Name))
		})
	}

	return holder, nil
}

func (h *ImportConfigHolder) Get() ImportConfig {
	return h.current.Load().(ImportConfig)
}

// decodeImportConfig unmarshals the whole tree so that keys missing from the
// file still pick up their defaults.
func decodeImportConfig(v *viper.Viper) (ImportConfig, error) {
	var file struct {
		Import ImportConfig `mapstructure:"import"`
	}
	if err := v.Unmarshal(&file); err != nil {
		return ImportConfig{}, err
	}
	if err := validateImportConfig(file.Import); err != nil {
		return ImportConfig{}, err
	}
	return file.Import, nil
}

func validateImportConfig(cfg ImportConfig) error {
	if _, err := time.Parse(dateLayout, strings.TrimSpace(cfg.HistoricalFloor)); err != nil {
		return fmt.Errorf("import.historicalFloor: %w", err)
	}
	if cfg.BatchSize <= 0 {
		return errors.New("import.batchSize must be positive")
	}
	if cfg.StatementSize <= 0 {
		return errors.New("import.statementSize must be positive")
	}
	if cfg.Lanes <= 0 {
		return errors.New("import.lanes must be positive")
	}
	if cfg.Interval < time.Minute {
		return errors.New("import.interval must be at least 1m")
	}
	return nil
}
