package runner

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/sidecar/internal/config"
	"github.com/roach88/sidecar/internal/control"
	"github.com/roach88/sidecar/internal/msg"
	"github.com/roach88/sidecar/internal/payload"
	"github.com/roach88/sidecar/internal/radar"
)

var start = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return start }

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type published struct {
	pipeline string
	channel  string
	key      msg.TypeKey
	b        []byte
}

// capture is a Sink that keeps everything published to it.
type capture struct {
	mu  sync.Mutex
	got []published
}

func (c *capture) Publish(pipeline, channel string, m msg.Message, b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.got = append(c.got, published{pipeline: pipeline, channel: channel, key: m.TypeKey(), b: b})
	return nil
}

func (c *capture) all() []published {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]published(nil), c.got...)
}

func testCodec(t *testing.T) *msg.Codec {
	t.Helper()
	c, err := payload.NewCodec(radar.Default(), msg.WithClock(clock))
	require.NoError(t, err)
	return c
}

func ch(name, typ string) config.Channel { return config.Channel{Name: name, Type: typ} }

func newTestStream(t *testing.T, pc config.Pipeline, opts ...StreamOption) (*Stream, *capture) {
	t.Helper()
	sink := &capture{}
	opts = append([]StreamOption{
		WithSinks(sink),
		WithStreamLogger(discard()),
		WithStreamClock(clock),
	}, opts...)
	s, err := NewStream(pc, radar.Default(), testCodec(t), opts...)
	require.NoError(t, err)
	return s, sink
}

func setState(s *Stream, st control.ProcessingState) {
	m := control.NewStateChange(st)
	s.handle(m)
	m.Release()
}

func tspiEnvelope(t *testing.T, c *msg.Codec) []byte {
	t.Helper()
	h := msg.NewHeader(msg.NewGUID("sensor", msg.TypeTSPI, 1), start, nil)
	m := payload.MakeRAE(h, radar.Default().Origin(), "T1", 1, 25000, 0.75, 0.05)
	b, err := c.Encode(m)
	require.NoError(t, err)
	return b
}

func videoEnvelope(t *testing.T, c *msg.Codec, samples []int16) []byte {
	t.Helper()
	cfg := radar.Default()
	riu := payload.RIU{
		MsgDesc:       payload.DescAzimuthValid | payload.DescPRIValid,
		ShaftEncoding: 16384,
		IRIGTime:      12.5,
		RangeMin:      1,
		RangeFactor:   0.5,
	}
	h := msg.NewHeader(msg.NewGUID("sensor", msg.TypeVideo, 1), start, nil)
	b, err := c.Encode(payload.NewVideo(h, cfg, riu, samples))
	require.NoError(t, err)
	return b
}

func passthrough() config.Pipeline {
	return config.Pipeline{
		Name: "east",
		Stages: []config.Stage{{
			Name:    "relay",
			Kind:    KindPassthrough,
			Inputs:  []config.Channel{ch("in", "TSPI")},
			Outputs: []config.Channel{ch("out", "TSPI")},
		}},
	}
}
