package payload

import (
	"maps"
	"math"

	"gopkg.in/yaml.v3"

	"github.com/roach88/sidecar/internal/msg"
	"github.com/roach88/sidecar/internal/radar"
)

// Extraction is one plot. Range is in km, angles in radians. X and Y are
// the nautical projection of range and azimuth and are never stored.
type Extraction struct {
	When            float64
	Range           float64
	Azimuth         float64
	Elevation       float64
	X               float64
	Y               float64
	Correlated      bool
	NumCorrelations uint32
	Attributes      map[string]string
}

// NewExtraction creates a plot and derives X and Y.
func NewExtraction(when, rng, az, el float64) Extraction {
	e := Extraction{
		When:       when,
		Range:      rng,
		Azimuth:    az,
		Elevation:  el,
		Attributes: map[string]string{},
	}
	e.project()
	return e
}

func (e *Extraction) project() {
	e.X = e.Range * math.Sin(e.Azimuth)
	e.Y = e.Range * math.Cos(e.Azimuth)
}

// Extractions is an ordered plot list produced by one detection pass.
type Extractions struct {
	header msg.Header

	Tag     string
	Records []Extraction
}

// NewExtractions creates an empty plot list.
func NewExtractions(h msg.Header, tag string) *Extractions {
	h.GUID.TypeKey = msg.TypeExtractions
	return &Extractions{header: h, Tag: tag, Records: []Extraction{}}
}

func (x *Extractions) Header() *msg.Header  { return &x.header }
func (x *Extractions) TypeKey() msg.TypeKey { return msg.TypeExtractions }

// Append adds a plot.
func (x *Extractions) Append(e Extraction) { x.Records = append(x.Records, e) }

// Len returns the number of plots.
func (x *Extractions) Len() int { return len(x.Records) }

const (
	extractionV1Size = 4 * 8
	extractionV2Min  = extractionV1Size + 1 + 4 + 4
)

func writeExtractions(w *msg.Writer, x *Extractions) error {
	w.String(x.Tag)
	w.Uint32(uint32(len(x.Records)))
	for _, e := range x.Records {
		w.Float64(e.When)
		w.Float64(e.Range)
		w.Float64(e.Azimuth)
		w.Float64(e.Elevation)
		w.Bool(e.Correlated)
		w.Uint32(e.NumCorrelations)
		w.StringMap(e.Attributes)
	}
	return nil
}

// v1 carried bare measurements with no tag or correlation state.
func readExtractionsV1(r *msg.Reader, x *Extractions) error {
	n := r.Count(extractionV1Size)
	x.Tag = ""
	x.Records = make([]Extraction, n)
	for i := range x.Records {
		x.Records[i] = NewExtraction(r.Float64(), r.Float64(), r.Float64(), r.Float64())
	}
	return nil
}

func readExtractionsV2(r *msg.Reader, x *Extractions) error {
	x.Tag = r.String()
	n := r.Count(extractionV2Min)
	x.Records = make([]Extraction, n)
	for i := range x.Records {
		e := NewExtraction(r.Float64(), r.Float64(), r.Float64(), r.Float64())
		e.Correlated = r.Bool()
		e.NumCorrelations = r.Uint32()
		e.Attributes = r.StringMap()
		x.Records[i] = e
	}
	return nil
}

func extractionsSchema() (*msg.PayloadSchema[*Extractions], error) {
	s := msg.NewPayloadSchema(msg.TypeExtractions, func() *Extractions {
		return NewExtractions(msg.Header{}, "")
	}, writeExtractions)
	if err := s.Add(1, readExtractionsV1); err != nil {
		return nil, err
	}
	if err := s.Add(2, readExtractionsV2); err != nil {
		return nil, err
	}
	return s, nil
}

type extractionText struct {
	When            float64           `yaml:"when"`
	Range           float64           `yaml:"range"`
	Azimuth         float64           `yaml:"azimuth"`
	Elevation       float64           `yaml:"elevation"`
	Correlated      bool              `yaml:"correlated"`
	NumCorrelations uint32            `yaml:"correlations"`
	Attributes      map[string]string `yaml:"attributes,omitempty"`
}

type extractionsText struct {
	Tag     string           `yaml:"tag"`
	Records []extractionText `yaml:"records"`
}

// MarshalYAML implements yaml.Marshaler.
func (x *Extractions) MarshalYAML() (any, error) {
	doc := extractionsText{Tag: x.Tag, Records: make([]extractionText, len(x.Records))}
	for i, e := range x.Records {
		doc.Records[i] = extractionText{
			When:            e.When,
			Range:           e.Range,
			Azimuth:         radar.RadiansToDegrees(e.Azimuth),
			Elevation:       radar.RadiansToDegrees(e.Elevation),
			Correlated:      e.Correlated,
			NumCorrelations: e.NumCorrelations,
			Attributes:      e.Attributes,
		}
	}
	return doc, nil
}

// UnmarshalYAML implements yaml.Unmarshaler. X and Y are recomputed.
func (x *Extractions) UnmarshalYAML(value *yaml.Node) error {
	var doc extractionsText
	if err := value.Decode(&doc); err != nil {
		return err
	}
	x.Tag = doc.Tag
	x.Records = make([]Extraction, len(doc.Records))
	for i, t := range doc.Records {
		e := NewExtraction(t.When, t.Range,
			radar.DegreesToRadians(t.Azimuth), radar.DegreesToRadians(t.Elevation))
		e.Correlated = t.Correlated
		e.NumCorrelations = t.NumCorrelations
		if t.Attributes != nil {
			e.Attributes = maps.Clone(t.Attributes)
		}
		x.Records[i] = e
	}
	return nil
}
