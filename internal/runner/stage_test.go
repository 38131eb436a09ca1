package runner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sidecar/internal/config"
	"github.com/roach88/sidecar/internal/control"
	"github.com/roach88/sidecar/internal/msg"
	"github.com/roach88/sidecar/internal/payload"
	"github.com/roach88/sidecar/internal/radar"
)

func TestPassthroughForwardsAndStamps(t *testing.T) {
	s, sink := newTestStream(t, passthrough())
	setState(s, control.StateRun)

	b := tspiEnvelope(t, s.codec)
	s.process(b)
	s.process(b)

	got := sink.all()
	require.Len(t, got, 2)
	assert.Equal(t, "east", got[0].pipeline)
	assert.Equal(t, "out", got[0].channel)
	assert.Equal(t, msg.TypeTSPI, got[0].key)

	for i, p := range got {
		m, err := s.codec.Decode(p.b)
		require.NoError(t, err)
		assert.Equal(t, uint32(i+1), m.Header().GUID.Sequence)
	}
}

func TestFrameStageDecodesDeviceFrames(t *testing.T) {
	pc := config.Pipeline{
		Name: "frames",
		Stages: []config.Stage{{
			Name:    "frame",
			Kind:    KindTSPIFrame,
			Outputs: []config.Channel{ch("tspi", "TSPI")},
		}},
	}
	s, sink := newTestStream(t, pc)
	setState(s, control.StateRun)

	origin := radar.Default().Origin()
	report := payload.MakeEFG(msg.Header{}, origin, "x", 10, radar.EFG{E: 10000, F: -5000, G: 2500})
	s.process(payload.EncodeFrame(0x1201, report))
	s.process([]byte{0x02, 0x00})

	got := sink.all()
	require.Len(t, got, 1)
	m, err := s.codec.Decode(got[0].b)
	require.NoError(t, err)
	tspi, ok := m.(*payload.TSPI)
	require.True(t, ok)
	assert.Equal(t, "RFA", tspi.Tag)
	assert.Equal(t, "frame", tspi.Header().GUID.Producer)
	assert.InDelta(t, 10000, tspi.EFG().E, 1.0/256)

	counters := s.stages[0].counters()
	assert.Equal(t, uint64(2), counters[CounterReceived])
	assert.Equal(t, uint64(1), counters[CounterDropped])
	assert.Equal(t, uint64(1), counters["sent.tspi"])
}

func TestFrameStageFiltersBySystemID(t *testing.T) {
	pc := config.Pipeline{
		Name: "frames",
		Stages: []config.Stage{{
			Name:       "frame",
			Kind:       KindTSPIFrame,
			Outputs:    []config.Channel{ch("tspi", "TSPI")},
			Parameters: map[string]any{"system_id": 0x1202},
		}},
	}
	s, sink := newTestStream(t, pc)
	setState(s, control.StateRun)

	origin := radar.Default().Origin()
	report := payload.MakeEFG(msg.Header{}, origin, "x", 10, radar.EFG{E: 1, F: 2, G: 3})
	s.process(payload.EncodeFrame(0x1201, report))
	s.process(payload.EncodeFrame(0x1202, report))

	got := sink.all()
	require.Len(t, got, 1)
	m, err := s.codec.Decode(got[0].b)
	require.NoError(t, err)
	assert.Equal(t, "RFB", m.(*payload.TSPI).Tag)
}

func TestExtractStageThresholdsVideo(t *testing.T) {
	pc := config.Pipeline{
		Name: "plots",
		Stages: []config.Stage{{
			Name:       "extract",
			Kind:       KindExtract,
			Inputs:     []config.Channel{ch("video", "Video")},
			Outputs:    []config.Channel{ch("plots", "Extractions")},
			Parameters: map[string]any{"threshold": 100, "tag": "north"},
		}},
	}
	s, sink := newTestStream(t, pc)
	setState(s, control.StateRun)

	s.process(videoEnvelope(t, s.codec, []int16{0, 150, 50, 200}))
	s.process(videoEnvelope(t, s.codec, []int16{1, 2, 3}))

	got := sink.all()
	require.Len(t, got, 1, "a pulse with nothing above threshold emits nothing")
	m, err := s.codec.Decode(got[0].b)
	require.NoError(t, err)
	x := m.(*payload.Extractions)
	assert.Equal(t, "north", x.Tag)
	require.Equal(t, 2, x.Len())
	assert.InDelta(t, 1.5, x.Records[0].Range, 1e-9)
	assert.InDelta(t, 2.5, x.Records[1].Range, 1e-9)
	assert.InDelta(t, 12.5, x.Records[0].When, 1e-9)
	assert.InDelta(t, radar.Default().Azimuth(16384), x.Records[0].Azimuth, 1e-9)
}

func TestSendPastLastOutputIsNotCounted(t *testing.T) {
	s, sink := newTestStream(t, passthrough())
	st := s.stages[0]

	m, err := s.codec.Decode(tspiEnvelope(t, s.codec))
	require.NoError(t, err)

	assert.True(t, st.send(m, 1))
	assert.Empty(t, sink.all())

	c := st.counters()
	assert.Equal(t, uint64(0), c[CounterEmitted])
	assert.Equal(t, uint64(0), c["sent.out"])

	assert.True(t, st.send(m, 0))
	assert.Equal(t, uint64(1), st.counters()[CounterEmitted])
}

func TestNewStageRejectsBadWiring(t *testing.T) {
	tests := []struct {
		name  string
		stage config.Stage
		want  string
	}{
		{
			name:  "unknown kind",
			stage: config.Stage{Name: "s", Kind: "median"},
			want:  "unknown kind",
		},
		{
			name:  "passthrough without outputs",
			stage: config.Stage{Name: "s", Kind: KindPassthrough, Inputs: []config.Channel{ch("in", "TSPI")}},
			want:  "needs an output",
		},
		{
			name: "extract output of wrong type",
			stage: config.Stage{Name: "s", Kind: KindExtract,
				Inputs:  []config.Channel{ch("in", "Video")},
				Outputs: []config.Channel{ch("out", "TSPI")}},
			want: "want Extractions",
		},
		{
			name: "extract without a video input",
			stage: config.Stage{Name: "s", Kind: KindExtract,
				Inputs:  []config.Channel{ch("in", "TSPI")},
				Outputs: []config.Channel{ch("out", "Extractions")}},
			want: "no input channel carries Video",
		},
		{
			name: "frame stage with inputs",
			stage: config.Stage{Name: "s", Kind: KindTSPIFrame,
				Inputs:  []config.Channel{ch("in", "TSPI")},
				Outputs: []config.Channel{ch("out", "TSPI")}},
			want: "takes no inputs",
		},
		{
			name: "unknown parameter",
			stage: config.Stage{Name: "s", Kind: KindPassthrough,
				Outputs:    []config.Channel{ch("out", "TSPI")},
				Parameters: map[string]any{"gain": 2}},
			want: `unknown parameter "gain"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pc := config.Pipeline{Name: "p", Stages: []config.Stage{tt.stage}}
			_, err := NewStream(pc, radar.Default(), testCodec(t), WithStreamLogger(discard()))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestStageParameters(t *testing.T) {
	st := &Stage{defaults: extractParameters("x"), params: extractParameters("x")}

	require.NoError(t, st.apply(map[string]any{"threshold": 7}))
	assert.Equal(t, float64(7), st.params["threshold"])
	assert.Equal(t, map[string]any{"threshold": float64(7)}, st.changed())

	err := st.apply(map[string]any{"threshold": 9, "tag": 3})
	require.Error(t, err)
	assert.Equal(t, float64(7), st.params["threshold"], "a rejected change applies nothing")

	require.Error(t, st.apply(map[string]any{"threshold": []int{1}}))

	require.NoError(t, st.apply(map[string]any{"threshold": 100.0}))
	assert.Empty(t, st.changed())
}
