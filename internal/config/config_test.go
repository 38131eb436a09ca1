package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sidecar/internal/msg"
	"github.com/roach88/sidecar/internal/radar"
)

const validConfig = `
name: east-runner
nats_url: nats://127.0.0.1:4222
status_interval: 500ms
radar:
  gate_count_max: 2048
  range_max: 150
pipelines:
  - name: tspi
    inbox_capacity: 64
    stages:
      - name: frames
        kind: tspi-frame
        outputs:
          - {name: tracks, type: TSPI}
  - name: video
    stages:
      - name: threshold
        kind: extract
        inputs:
          - {name: video, type: Video}
        outputs:
          - {name: plots, type: Extractions}
        parameters:
          threshold: 40
          tag: east
`

func TestParseValid(t *testing.T) {
	cfg, err := Parse("runner.yaml", []byte(validConfig))
	require.NoError(t, err)

	assert.Equal(t, "east-runner", cfg.Name)
	assert.Equal(t, DefaultControlAddress, cfg.ControlAddress)
	assert.Equal(t, DefaultNATSPrefix, cfg.NATSPrefix)
	assert.Equal(t, DefaultLogRingSize, cfg.LogRingSize)
	assert.Equal(t, 500*time.Millisecond, cfg.StatusInterval)
	assert.Equal(t, "Run", cfg.InitialState)

	want := radar.Default()
	want.GateCountMax = 2048
	want.RangeMax = 150
	assert.Equal(t, want, cfg.Radar, "omitted radar fields keep their defaults")

	require.Len(t, cfg.Pipelines, 2)
	assert.Equal(t, 64, cfg.Pipelines[0].InboxCapacity)
	stage := cfg.Pipelines[1].Stages[0]
	assert.Equal(t, "extract", stage.Kind)
	assert.Equal(t, msg.TypeVideo, stage.Inputs[0].TypeKey())
	assert.Equal(t, msg.TypeExtractions, stage.Outputs[0].TypeKey())
	assert.Equal(t, map[string]any{"threshold": 40, "tag": "east"}, stage.Parameters)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runner.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validConfig), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "east-runner", cfg.Name)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestParseSchemaErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"missing pipelines", "name: r\n"},
		{"empty pipelines", "name: r\npipelines: []\n"},
		{"unknown field", "name: r\nbogus: 1\npipelines:\n  - name: p\n    stages:\n      - {name: s, kind: passthrough}\n"},
		{"unknown stage kind", "name: r\npipelines:\n  - name: p\n    stages:\n      - {name: s, kind: magic}\n"},
		{"unknown channel type", "name: r\npipelines:\n  - name: p\n    stages:\n      - name: s\n        kind: passthrough\n        inputs: [{name: a, type: Sonar}]\n"},
		{"bad interval", "name: r\nstatus_interval: soon\npipelines:\n  - name: p\n    stages:\n      - {name: s, kind: passthrough}\n"},
		{"latitude out of range", "name: r\nradar: {site_latitude: 91}\npipelines:\n  - name: p\n    stages:\n      - {name: s, kind: passthrough}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse("runner.yaml", []byte(tt.src))
			require.Error(t, err)
			var verr *ValidationError
			assert.True(t, errors.As(err, &verr), "got %T: %v", err, err)
		})
	}
}

func TestParseSchemaErrorHasPosition(t *testing.T) {
	src := "name: r\nlog_ring_size: -1\npipelines:\n  - name: p\n    stages:\n      - {name: s, kind: passthrough}\n"
	_, err := Parse("runner.yaml", []byte(src))
	require.Error(t, err)

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.True(t, verr.Pos.IsValid())
	assert.Contains(t, verr.Field, "log_ring_size")
}

func TestValidateDuplicateNames(t *testing.T) {
	dupPipeline := "name: r\npipelines:\n" +
		"  - name: p\n    stages:\n      - {name: s, kind: passthrough}\n" +
		"  - name: p\n    stages:\n      - {name: s, kind: passthrough}\n"
	_, err := Parse("runner.yaml", []byte(dupPipeline))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `duplicate pipeline name "p"`)

	dupStage := "name: r\npipelines:\n" +
		"  - name: p\n    stages:\n      - {name: s, kind: passthrough}\n      - {name: s, kind: extract}\n"
	_, err = Parse("runner.yaml", []byte(dupStage))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `duplicate stage name "s"`)
}

func TestValidateRadarGeometry(t *testing.T) {
	src := "name: r\nradar: {range_min: 10, range_max: 5}\npipelines:\n  - name: p\n    stages:\n      - {name: s, kind: passthrough}\n"
	_, err := Parse("runner.yaml", []byte(src))
	require.Error(t, err)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "radar", verr.Field)
}
