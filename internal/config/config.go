package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueyaml "cuelang.org/go/encoding/yaml"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"

	"github.com/roach88/sidecar/internal/msg"
	"github.com/roach88/sidecar/internal/radar"
)

//go:embed schema.cue
var schemaSource string

// Defaults applied to fields the file omits.
const (
	DefaultControlAddress = "127.0.0.1:8780"
	DefaultNATSPrefix     = "sidecar"
	DefaultLogRingSize    = 200
	DefaultStatusInterval = 2 * time.Second
	DefaultInitialState   = "Run"
)

// Channel names one stage input or output and the kind it carries.
type Channel struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

// TypeKey resolves the channel's kind.
func (c Channel) TypeKey() msg.TypeKey {
	k, _ := msg.ParseTypeKey(c.Type)
	return k
}

// Stage configures one processing stage.
type Stage struct {
	Name       string         `yaml:"name"`
	Kind       string         `yaml:"kind"`
	Inputs     []Channel      `yaml:"inputs"`
	Outputs    []Channel      `yaml:"outputs"`
	Parameters map[string]any `yaml:"parameters"`
}

// Pipeline configures one stream of stages.
type Pipeline struct {
	Name          string  `yaml:"name"`
	InboxCapacity int     `yaml:"inbox_capacity"`
	Stages        []Stage `yaml:"stages"`
}

// Config is the runner configuration.
type Config struct {
	Name           string        `yaml:"name"`
	ControlAddress string        `yaml:"control_address"`
	NATSURL        string        `yaml:"nats_url"`
	NATSPrefix     string        `yaml:"nats_prefix"`
	LogRingSize    int           `yaml:"log_ring_size"`
	StatusInterval time.Duration `yaml:"status_interval"`
	InitialState   string        `yaml:"initial_state"`
	RecordingsDB   string        `yaml:"recordings_db"`
	Radar          radar.Config  `yaml:"radar"`
	Pipelines      []Pipeline    `yaml:"pipelines"`
}

// Load reads and validates the configuration file at path.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(path, b)
}

// Parse validates src against the schema and decodes it. filename is
// used in error positions only.
func Parse(filename string, src []byte) (*Config, error) {
	if err := validateSchema(filename, src); err != nil {
		return nil, err
	}

	cfg := &Config{Radar: radar.Default()}
	dec := yaml.NewDecoder(bytes.NewReader(src))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, &ValidationError{Field: "config", Message: err.Error()}
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validateSchema(filename string, src []byte) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}

	file, err := cueyaml.Extract(filename, src)
	if err != nil {
		return formatCUEError(err)
	}
	doc := ctx.BuildFile(file)
	if err := doc.Err(); err != nil {
		return formatCUEError(err)
	}

	runner := schema.LookupPath(cue.ParsePath("#Runner"))
	return formatCUEError(runner.Unify(doc).Validate(cue.Concrete(true)))
}

func (c *Config) applyDefaults() {
	if c.ControlAddress == "" {
		c.ControlAddress = DefaultControlAddress
	}
	if c.NATSPrefix == "" {
		c.NATSPrefix = DefaultNATSPrefix
	}
	if c.LogRingSize == 0 {
		c.LogRingSize = DefaultLogRingSize
	}
	if c.StatusInterval == 0 {
		c.StatusInterval = DefaultStatusInterval
	}
	if c.InitialState == "" {
		c.InitialState = DefaultInitialState
	}
	c.Name = norm.NFC.String(c.Name)
	for i := range c.Pipelines {
		p := &c.Pipelines[i]
		p.Name = norm.NFC.String(p.Name)
		for j := range p.Stages {
			p.Stages[j].Name = norm.NFC.String(p.Stages[j].Name)
		}
	}
}

// Validate checks what the schema cannot: unique names and radar geometry.
func (c *Config) Validate() error {
	if err := c.Radar.Validate(); err != nil {
		return &ValidationError{Field: "radar", Message: err.Error()}
	}

	pipelines := make(map[string]bool, len(c.Pipelines))
	for i, p := range c.Pipelines {
		if pipelines[p.Name] {
			return &ValidationError{
				Field:   fmt.Sprintf("pipelines.%d.name", i),
				Message: fmt.Sprintf("duplicate pipeline name %q", p.Name),
			}
		}
		pipelines[p.Name] = true

		stages := make(map[string]bool, len(p.Stages))
		for j, s := range p.Stages {
			field := fmt.Sprintf("pipelines.%d.stages.%d", i, j)
			if stages[s.Name] {
				return &ValidationError{Field: field + ".name", Message: fmt.Sprintf("duplicate stage name %q", s.Name)}
			}
			stages[s.Name] = true

			for _, ch := range append(append([]Channel(nil), s.Inputs...), s.Outputs...) {
				if k := ch.TypeKey(); !k.Valid() {
					return &ValidationError{Field: field, Message: fmt.Sprintf("channel %q has unknown type %q", ch.Name, ch.Type)}
				}
			}
		}
	}
	return nil
}
