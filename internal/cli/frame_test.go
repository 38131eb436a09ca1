package cli

import (
	"encoding/hex"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sidecar/internal/msg"
	"github.com/roach88/sidecar/internal/payload"
	"github.com/roach88/sidecar/internal/radar"
)

// frameHex renders a frame for a report 20 km out on the default radar.
func frameHex(t *testing.T, systemID uint16) string {
	t.Helper()
	cfg := radar.Default()
	h := msg.NewHeader(msg.NewGUID("sim", msg.TypeTSPI, 0), start, nil)
	report := payload.MakeRAE(h, cfg.Origin(), "sim", 1500, 20000, 0.5, 0.05)
	return hex.EncodeToString(payload.EncodeFrame(systemID, report))
}

func TestFrameDecodesKnownSystem(t *testing.T) {
	out, err := execute(NewFrameCommand(&RootOptions{Format: "text"}), frameHex(t, 0x1201))
	require.NoError(t, err)
	assert.Contains(t, out, "type: TSPI")
	assert.Contains(t, out, "producer: frame")
	assert.Contains(t, out, "tag: RFA")
	assert.Contains(t, out, "when: 1500")
	assert.Contains(t, out, "0x1201")
}

func TestFrameAcceptsSpacedHex(t *testing.T) {
	h := frameHex(t, 0x1044)
	spaced := h[:2] + " " + h[2:6] + "\n" + h[6:]

	out, err := execute(NewFrameCommand(&RootOptions{Format: "json"}), spaced, "--producer", "bench")
	require.NoError(t, err)

	var resp struct {
		Status string      `json:"status"`
		Data   FrameReport `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "MRB", resp.Data.Tag)
	assert.Equal(t, "0x1044", resp.Data.SystemID)
	assert.Contains(t, resp.Data.Text, "producer: bench")
}

func TestFrameRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		arg  string
		exit int
	}{
		{"not hex", "zz01", ExitCommandError},
		{"too short", "0112010000", ExitFailure},
		{"wrong marker", "02" + frameHex(t, 0x1201)[2:], ExitFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(NewFrameCommand(&RootOptions{Format: "text"}), tt.arg)
			require.Error(t, err)
			assert.Equal(t, tt.exit, GetExitCode(err))
		})
	}
}
