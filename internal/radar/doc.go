// Package radar holds the radar site configuration and the geodetic
// transforms anchored at the radar site.
//
// Config is a read-only value. Codecs that need radar constants (legacy
// PRI layouts fall back to the configured range scaling, TSPI views need the
// site origin) receive a Config or an *Origin when they are built, so decode
// results depend only on their inputs.
//
// Angles are radians everywhere except where a field name says Degrees.
// Distances in Origin are meters; range values in Config are kilometers, the
// unit of the radar range gates.
package radar
