package radar

import (
	"errors"
	"fmt"
	"math"
	"time"
)

const twoPi = 2 * math.Pi

// Config describes one radar installation.
type Config struct {
	Name             string  `yaml:"name" json:"name"`
	GateCountMax     uint32  `yaml:"gate_count_max" json:"gate_count_max"`
	ShaftEncodingMax uint32  `yaml:"shaft_encoding_max" json:"shaft_encoding_max"`
	RotationRate     float64 `yaml:"rotation_rate" json:"rotation_rate"`   // revolutions per minute
	RangeMin         float64 `yaml:"range_min" json:"range_min"`           // km
	RangeMax         float64 `yaml:"range_max" json:"range_max"`           // km
	BeamWidth        float64 `yaml:"beam_width" json:"beam_width"`         // radians
	SiteLatitude     float64 `yaml:"site_latitude" json:"site_latitude"`   // degrees
	SiteLongitude    float64 `yaml:"site_longitude" json:"site_longitude"` // degrees
	SiteHeight       float64 `yaml:"site_height" json:"site_height"`       // meters
}

// Default returns the configuration used when none is supplied.
func Default() Config {
	return Config{
		Name:             "Default",
		GateCountMax:     4000,
		ShaftEncodingMax: 65535,
		RotationRate:     6.0,
		RangeMin:         1.0,
		RangeMax:         300.0,
		BeamWidth:        0.001544,
		SiteLatitude:     37.0 + 49.0/60.0 + 7.83477/3600.0,
		SiteLongitude:    -(116.0 + 31.0/60.0 + 53.51066/3600.0),
		SiteHeight:       0.0,
	}
}

// Validate reports the first inconsistent field.
func (c Config) Validate() error {
	switch {
	case c.GateCountMax < 2:
		return fmt.Errorf("gate_count_max must be at least 2, got %d", c.GateCountMax)
	case c.ShaftEncodingMax == 0:
		return errors.New("shaft_encoding_max must be positive")
	case c.RotationRate <= 0:
		return fmt.Errorf("rotation_rate must be positive, got %g", c.RotationRate)
	case c.RangeMax <= c.RangeMin:
		return fmt.Errorf("range_max %g must exceed range_min %g", c.RangeMax, c.RangeMin)
	case c.BeamWidth <= 0 || c.BeamWidth >= twoPi:
		return fmt.Errorf("beam_width %g out of range", c.BeamWidth)
	case c.SiteLatitude < -90 || c.SiteLatitude > 90:
		return fmt.Errorf("site_latitude %g out of range", c.SiteLatitude)
	case c.SiteLongitude < -180 || c.SiteLongitude > 180:
		return fmt.Errorf("site_longitude %g out of range", c.SiteLongitude)
	}
	return nil
}

// RangeFactor is the distance between adjacent range gates in km.
func (c Config) RangeFactor() float64 {
	return (c.RangeMax - c.RangeMin) / float64(c.GateCountMax-1)
}

// RangeAt returns the range of a gate index in km.
func (c Config) RangeAt(gate int) float64 {
	return c.RangeMin + float64(gate)*c.RangeFactor()
}

// Azimuth converts a shaft encoder value to radians.
func (c Config) Azimuth(shaft uint32) float64 {
	return twoPi * float64(shaft) / (float64(c.ShaftEncodingMax) + 1.0)
}

// AzimuthEnd is the azimuth at the trailing edge of the beam.
func (c Config) AzimuthEnd(shaft uint32) float64 {
	return NormalizeRadians(c.Azimuth(shaft) + c.BeamWidth)
}

// ShaftEncoding converts an azimuth in radians to a shaft encoder value.
// This is the inverse used when reading layouts that stored azimuths.
func (c Config) ShaftEncoding(azimuth float64) uint32 {
	return uint32(azimuth / twoPi * float64(c.ShaftEncodingMax))
}

// RotationDuration is the time for one antenna revolution.
func (c Config) RotationDuration() time.Duration {
	return time.Duration(60.0 / c.RotationRate * float64(time.Second))
}

// Origin returns the geodetic origin at the radar site.
func (c Config) Origin() *Origin {
	return NewOrigin(LLH{
		Lat:    DegreesToRadians(c.SiteLatitude),
		Lon:    DegreesToRadians(c.SiteLongitude),
		Height: c.SiteHeight,
	})
}

// NormalizeRadians maps a into [0, 2pi).
func NormalizeRadians(a float64) float64 {
	a = math.Mod(a, twoPi)
	if a < 0 {
		a += twoPi
	}
	if a >= twoPi {
		a = 0
	}
	return a
}

func DegreesToRadians(d float64) float64 { return d * math.Pi / 180.0 }
func RadiansToDegrees(r float64) float64 { return r * 180.0 / math.Pi }
