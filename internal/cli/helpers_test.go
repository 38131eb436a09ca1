package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sidecar/internal/msg"
	"github.com/roach88/sidecar/internal/payload"
	"github.com/roach88/sidecar/internal/radar"
	"github.com/roach88/sidecar/internal/testutil"
)

const testConfig = `
name: east-runner
status_interval: 100ms
pipelines:
  - name: tspi
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

var start = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// writeFile writes content into a fresh temp dir and returns its path.
func writeFile(t *testing.T, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, content, 0o644))
	return path
}

// execute runs cmd with args and returns everything it printed.
func execute(cmd *cobra.Command, args ...string) (string, error) {
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

// testCodec stamps every envelope as emitted five seconds after start.
func testCodec(t *testing.T) *msg.Codec {
	t.Helper()
	clock := testutil.NewClock(start.Add(5 * time.Second))
	c, err := payload.NewCodec(radar.Default(), msg.WithClock(clock.Now))
	require.NoError(t, err)
	return c
}

// plots builds an Extractions message holding one plot due north.
func plots(seq uint32, when, rng float64, correlations uint32) *payload.Extractions {
	h := msg.NewHeader(msg.NewGUID("extract", msg.TypeExtractions, seq), start.Add(time.Duration(seq-1)*time.Second), nil)
	x := payload.NewExtractions(h, "east")
	e := payload.NewExtraction(when, rng, 0, 0)
	e.Correlated = correlations > 0
	e.NumCorrelations = correlations
	x.Append(e)
	return x
}
