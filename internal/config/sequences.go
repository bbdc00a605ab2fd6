package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// SequenceDefaults fills the fields an admin leaves blank when creating a sequence.
type SequenceDefaults struct {
	Padding     int                       `mapstructure:"padding" validate:"gte=1,lte=20"`
	StepSize    int64                     `mapstructure:"step_size" validate:"gte=1"`
	ResetPeriod string                    `mapstructure:"reset_period" validate:"oneof=never daily monthly yearly count"`
	Presets     map[string]SequencePreset `mapstructure:"presets" validate:"dive"`
}

// SequencePreset is keyed by sequence name, e.g. "invoice" or "purchase_order".
type SequencePreset struct {
	Pattern     string `mapstructure:"pattern" validate:"required"`
	Padding     int    `mapstructure:"padding" validate:"omitempty,gte=1,lte=20"`
	StepSize    int64  `mapstructure:"step_size" validate:"omitempty,gte=1"`
	ResetPeriod string `mapstructure:"reset_period" validate:"omitempty,oneof=never daily monthly yearly count"`
	ResetLimit  *int64 `mapstructure:"reset_limit" validate:"omitempty,gte=1"`
}

func DefaultSequenceDefaults() SequenceDefaults {
	return SequenceDefaults{
		Padding:     4,
		StepSize:    1,
		ResetPeriod: "never",
		Presets: map[string]SequencePreset{
			"invoice":        {Pattern: "INV-{YEAR}{MONTH}-{COUNTER:5}", ResetPeriod: "monthly"},
			"purchase_order": {Pattern: "PO-{YEAR}-{COUNTER}", ResetPeriod: "yearly"},
			"quotation":      {Pattern: "QT-{COUNTER:4}", ResetPeriod: "monthly"},
		},
	}
}

// Preset returns the preset for name merged over the global defaults.
func (d SequenceDefaults) Preset(name string) (SequencePreset, bool) {
	p, ok := d.Presets[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return SequencePreset{}, false
	}
	if p.Padding == 0 {
		p.Padding = d.Padding
	}
	if p.StepSize == 0 {
		p.StepSize = d.StepSize
	}
	if p.ResetPeriod == "" {
		p.ResetPeriod = d.ResetPeriod
	}
	return p, true
}

type SequenceDefaultsHolder struct {
	current atomic.Value // holds SequenceDefaults
}

// NewStaticSequenceDefaults wraps fixed defaults, used by tests and when no file is mounted.
func NewStaticSequenceDefaults(d SequenceDefaults) *SequenceDefaultsHolder {
	h := &SequenceDefaultsHolder{}
	h.current.Store(d)
	return h
}

func NewSequenceDefaultsHolder(cfg Config, log *zap.Logger) (*SequenceDefaultsHolder, error) {
	log = log.Named("config.sequences")
	v := viper.New()

	if cfg.Sequence.DefaultsPath != "" {
		v.SetConfigFile(cfg.Sequence.DefaultsPath)
	} else {
		v.SetConfigName("sequences")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/erpcore")
		v.AddConfigPath(".")
	}

	defaults := DefaultSequenceDefaults()
	v.SetDefault("sequences.padding", defaults.Padding)
	v.SetDefault("sequences.step_size", defaults.StepSize)
	v.SetDefault("sequences.reset_period", defaults.ResetPeriod)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfg.Sequence.DefaultsPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read sequence defaults: %w", err)
		}
		fileLoaded = false
	}

	parsed, err := decodeSequenceDefaults(v)
	if err != nil {
		return nil, err
	}
	if !fileLoaded {
		parsed.Presets = defaults.Presets
	}

	holder := NewStaticSequenceDefaults(parsed)
	if !fileLoaded {
		log.Info("no sequences.yml found, using built-in defaults")
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodeSequenceDefaults(v)
		if err != nil {
			log.Warn("invalid sequence defaults ignored", zap.String("file", e.Name), zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("sequence defaults reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *SequenceDefaultsHolder) Get() SequenceDefaults {
	return h.current.Load().(SequenceDefaults)
}

func decodeSequenceDefaults(v *viper.Viper) (SequenceDefaults, error) {
	var out SequenceDefaults
	if err := v.UnmarshalKey("sequences", &out); err != nil {
		return SequenceDefaults{}, err
	}
	if out.Presets == nil {
		out.Presets = map[string]SequencePreset{}
	} else {
		normalized := make(map[string]SequencePreset, len(out.Presets))
		for name, p := range out.Presets {
			normalized[strings.ToLower(name)] = p
		}
		out.Presets = normalized
	}
	if err := validate.Struct(out); err != nil {
		return SequenceDefaults{}, fmt.Errorf("sequences: %w", err)
	}
	return out, nil
}
