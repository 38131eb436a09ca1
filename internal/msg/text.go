package msg

import (
	"bytes"
	"fmt"
	"time"

	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

// textEnvelope is the diagnostic rendering of a header plus payload. The
// payload section is produced by the payload type's yaml.Marshaler.
type textEnvelope struct {
	Type     string    `yaml:"type"`
	Producer string    `yaml:"producer"`
	Sequence uint32    `yaml:"sequence"`
	Created  time.Time `yaml:"created,omitempty"`
	Emitted  time.Time `yaml:"emitted,omitempty"`
	Payload  any       `yaml:"payload"`
}

type textEnvelopeIn struct {
	Type     string    `yaml:"type"`
	Producer string    `yaml:"producer"`
	Sequence uint32    `yaml:"sequence"`
	Created  time.Time `yaml:"created"`
	Emitted  time.Time `yaml:"emitted"`
	Payload  yaml.Node `yaml:"payload"`
}

// EncodeText renders m as a YAML diagnostic document. Unlike Encode it
// does not stamp EmittedAt.
func (c *Codec) EncodeText(m Message) ([]byte, error) {
	if _, err := c.schema(m.TypeKey()); err != nil {
		return nil, err
	}
	h := m.Header()
	doc := textEnvelope{
		Type:     m.TypeKey().String(),
		Producer: h.GUID.Producer,
		Sequence: h.GUID.Sequence,
		Created:  h.CreatedAt,
		Emitted:  h.EmittedAt,
		Payload:  m,
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, &CodecError{Code: ErrCodeEncode, Message: "render text", Section: m.TypeKey().String(), Err: err}
	}
	if err := enc.Close(); err != nil {
		return nil, &CodecError{Code: ErrCodeEncode, Message: "render text", Section: m.TypeKey().String(), Err: err}
	}
	return buf.Bytes(), nil
}

// DecodeText parses a document produced by EncodeText.
func (c *Codec) DecodeText(b []byte) (Message, error) {
	var doc textEnvelopeIn
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, NewDecodeError("text", "parse document", fmt.Errorf("%v: %w", err, ErrMalformed))
	}
	key, ok := ParseTypeKey(doc.Type)
	if !ok {
		return nil, &CodecError{Code: ErrCodeUnknownType, Message: fmt.Sprintf("unknown type %q", doc.Type), Section: "text"}
	}
	s, err := c.schema(key)
	if err != nil {
		return nil, err
	}

	m := s.New()
	*m.Header() = Header{
		GUID:      GUID{Producer: norm.NFC.String(doc.Producer), TypeKey: key, Sequence: doc.Sequence},
		CreatedAt: doc.Created,
		EmittedAt: doc.Emitted,
	}
	if doc.Payload.Kind != 0 {
		if err := doc.Payload.Decode(m); err != nil {
			return nil, NewDecodeError(key.String(), "parse payload", fmt.Errorf("%v: %w", err, ErrMalformed))
		}
	}
	return m, nil
}
