// Package config loads store configuration from YAML.
//
// A file is decoded with yaml.v3 and unified with the embedded CUE schema,
// which rejects unknown keys and out-of-range values and fills in defaults.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"

	"github.com/roach88/gridkernel/internal/index"
	"github.com/roach88/gridkernel/internal/sched"
)

//go:embed schema.cue
var schemaSource string

// Mode selects the gate implementation.
type Mode string

const (
	ModeKernel Mode = "kernel"
	ModeDirect Mode = "direct"
)

// Config is the store configuration.
type Config struct {
	Mode          Mode    `json:"mode" yaml:"mode"`
	Label         string  `json:"label" yaml:"label"`
	Cadence       string  `json:"cadence" yaml:"cadence"`
	BusStrategy   string  `json:"bus_strategy" yaml:"bus_strategy"`
	FrameInterval string  `json:"frame_interval" yaml:"frame_interval"`
	Guard         bool    `json:"guard" yaml:"guard"`
	Offload       bool    `json:"offload" yaml:"offload"`
	BatchMax      int     `json:"batch_max" yaml:"batch_max"`
	Index         Index   `json:"index" yaml:"index"`
	Journal       Journal `json:"journal" yaml:"journal"`
	Metrics       bool    `json:"metrics" yaml:"metrics"`
}

// Index configures the column index.
type Index struct {
	Whitelist  []string `json:"whitelist" yaml:"whitelist"`
	Eager      bool     `json:"eager" yaml:"eager"`
	MaxColumns int      `json:"max_columns" yaml:"max_columns"`
}

// Journal configures the commit journal. An empty path disables it.
type Journal struct {
	Path  string `json:"path" yaml:"path"`
	Codec string `json:"codec" yaml:"codec"`
}

// Default returns the configuration an empty file produces.
func Default() Config {
	return Config{
		Mode:          ModeKernel,
		Label:         "kernel",
		Cadence:       string(sched.Deferred),
		BusStrategy:   string(sched.Deferred),
		FrameInterval: "16ms",
		Guard:         true,
		BatchMax:      sched.DefaultBatchMax,
		Index: Index{
			MaxColumns: index.DefaultMaxColumns,
		},
		Journal: Journal{Codec: "zstd"},
	}
}

// Error is a configuration validation failure.
type Error struct {
	Field   string
	Message string
}

func (e *Error) Error() string {
	if e.Field == "" {
		return "config: " + e.Message
	}
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// Load reads and validates the file at path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse validates YAML data against the schema and returns the defaulted
// configuration.
func Parse(data []byte) (Config, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Config{}, &Error{Message: err.Error()}
	}
	if raw == nil {
		raw = map[string]any{}
	}
	if _, ok := raw.(map[string]any); !ok {
		return Config{}, &Error{Message: "top level must be a mapping"}
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return Config{}, fmt.Errorf("compile config schema: %w", err)
	}
	v := schema.LookupPath(cue.ParsePath("#Config")).Unify(ctx.Encode(raw))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return Config{}, convertCUEError(err)
	}

	var cfg Config
	if err := v.Decode(&cfg); err != nil {
		return Config{}, convertCUEError(err)
	}
	if len(cfg.Index.Whitelist) == 0 {
		cfg.Index.Whitelist = nil
	}
	if _, err := cfg.FrameDuration(); err != nil {
		return Config{}, &Error{Field: "frame_interval", Message: err.Error()}
	}
	return cfg, nil
}

func convertCUEError(err error) error {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return &Error{Message: err.Error()}
	}
	first := errs[0]
	format, args := first.Msg()
	return &Error{Field: strings.Join(first.Path(), "."), Message: fmt.Sprintf(format, args...)}
}

// CommitCadence returns the parsed commit cadence.
func (c Config) CommitCadence() (sched.Cadence, error) {
	return sched.ParseCadence(c.Cadence)
}

// BusCadence returns the parsed diff bus strategy.
func (c Config) BusCadence() (sched.Cadence, error) {
	return sched.ParseCadence(c.BusStrategy)
}

// FrameDuration returns the parsed frame interval.
func (c Config) FrameDuration() (time.Duration, error) {
	if c.FrameInterval == "" {
		return 0, nil
	}
	return time.ParseDuration(c.FrameInterval)
}

// IndexOptions converts the index section to store options.
func (c Config) IndexOptions() []index.Option {
	var opts []index.Option
	if len(c.Index.Whitelist) > 0 {
		opts = append(opts, index.WithWhitelist(c.Index.Whitelist...))
	}
	if c.Index.Eager {
		opts = append(opts, index.WithEager())
	}
	if c.Index.MaxColumns > 0 {
		opts = append(opts, index.WithMaxColumns(c.Index.MaxColumns))
	}
	return opts
}
