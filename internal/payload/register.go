package payload

import (
	"fmt"

	"github.com/roach88/sidecar/internal/msg"
	"github.com/roach88/sidecar/internal/radar"
)

// Register installs every payload kind on c. cfg supplies the site origin
// for TSPI views and the range scaling for legacy RIU layouts.
func Register(c *msg.Codec, cfg radar.Config) error {
	tspi, err := tspiSchema(cfg.Origin())
	if err != nil {
		return err
	}
	extractions, err := extractionsSchema()
	if err != nil {
		return err
	}
	video, err := priSchema(msg.TypeVideo, cfg, int16Elements)
	if err != nil {
		return err
	}
	binary, err := priSchema(msg.TypeBinaryVideo, cfg, boolElements)
	if err != nil {
		return err
	}
	complexVideo, err := priSchema(msg.TypeComplex, cfg, complexElements)
	if err != nil {
		return err
	}
	raw, err := priSchema(msg.TypeRawVideo, cfg, int32Elements)
	if err != nil {
		return err
	}

	for _, s := range []msg.Schema{tspi, extractions, video, binary, complexVideo, raw} {
		if err := c.Register(s); err != nil {
			return fmt.Errorf("register %s: %w", s.TypeKey(), err)
		}
	}
	return nil
}

// NewCodec returns a codec with every payload kind registered.
func NewCodec(cfg radar.Config, opts ...msg.CodecOption) (*msg.Codec, error) {
	c := msg.NewCodec(opts...)
	if err := Register(c, cfg); err != nil {
		return nil, err
	}
	return c, nil
}

// DerivedSchema returns a schema for float-valued pulse products under a
// kind the caller assigns. Derived products share the RIU version history.
func DerivedSchema(key msg.TypeKey, cfg radar.Config) (msg.Schema, error) {
	s, err := priSchema(key, cfg, floatElements)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// NewDerived creates a float-valued pulse product of kind key.
func NewDerived(key msg.TypeKey, h msg.Header, cfg radar.Config, riu RIU, samples []float32) *PRI[float32] {
	return newPRI(key, h, cfg, riu, samples)
}
