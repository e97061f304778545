// Package probe provides ffprobe-based media inspection. A single JSON call
// per recording yields the [MediaCharacteristics] the tier classifier
// consumes. Every numeric field arrives as a string on the wire and is
// parsed leniently, because DVR firmware pads or omits fields freely.
package probe
