// Package data defines the uniform tagged measurement record exchanged
// between analytics over named logical channels.
package data

import (
	"encoding/json"
	"fmt"
	"maps"
)

// Type classifies a Data record
type Type string

// Record types
const (
	// TypeRaw marks a record produced by an external source
	TypeRaw Type = "raw"
	// TypeComputed marks a record derived by an analytic
	TypeComputed Type = "computed"
	// TypeAnomaly marks a record signaling a detector condition was met
	TypeAnomaly Type = "anomaly"
)

// Valid reports whether t is a known record type
func (t Type) Valid() bool {
	switch t {
	case TypeRaw, TypeComputed, TypeAnomaly:
		return true
	default:
		return false
	}
}

// Well-known param keys attached by detectors
const (
	ParamDuration      = "duration"
	ParamDirection     = "direction"
	ParamAnomalySource = "anomalySource"
)

// Data is the uniform measurement record flowing between analytics.
//
// StreamName is rebound by each analytic to its output channel before
// emission. SourceID partitions independent logical sources sharing a
// channel. Timestamp is in seconds, monotonic by convention but not
// enforced. Records are immutable once sent: clone before mutate.
type Data struct {
	StreamName string            `json:"streamName"`
	Type       Type              `json:"type"`
	SourceID   string            `json:"sourceId"`
	Timestamp  float64           `json:"timestamp"`
	DValue     float64           `json:"dValue"`
	SValue     string            `json:"sValue,omitempty"`
	XValue     float64           `json:"xValue,omitempty"`
	YValue     float64           `json:"yValue,omitempty"`
	ZValue     float64           `json:"zValue,omitempty"`
	Params     map[string]string `json:"params,omitempty"`
}

// New creates a raw record for the given channel, source and value
func New(streamName, sourceID string, timestamp, dValue float64) *Data {
	return &Data{
		StreamName: streamName,
		Type:       TypeRaw,
		SourceID:   sourceID,
		Timestamp:  timestamp,
		DValue:     dValue,
	}
}

// Clone returns a deep copy of the record, including params.
// Params propagate downstream by convention unless explicitly overwritten.
func (d *Data) Clone() *Data {
	c := *d
	if d.Params != nil {
		c.Params = maps.Clone(d.Params)
	}
	return &c
}

// WithStream returns a clone rebound to the given output channel
func (d *Data) WithStream(streamName string) *Data {
	c := d.Clone()
	c.StreamName = streamName
	return c
}

// SetParam sets a param on the record, allocating the map on first use
func (d *Data) SetParam(key, value string) {
	if d.Params == nil {
		d.Params = make(map[string]string)
	}
	d.Params[key] = value
}

// Param returns the named param and whether it is present
func (d *Data) Param(key string) (string, bool) {
	v, ok := d.Params[key]
	return v, ok
}

// Validate checks the record satisfies the wire contract
func (d *Data) Validate() error {
	if d.StreamName == "" {
		return fmt.Errorf("data record missing stream name")
	}
	if !d.Type.Valid() {
		return fmt.Errorf("data record has unknown type %q", d.Type)
	}
	return nil
}

// Marshal encodes the record for the wire
func (d *Data) Marshal() ([]byte, error) {
	return json.Marshal(d)
}

// Unmarshal decodes a wire record
func Unmarshal(raw []byte) (*Data, error) {
	var d Data
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("decode data record: %w", err)
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

// String implements fmt.Stringer for log output
func (d *Data) String() string {
	return fmt.Sprintf("Data(%s/%s %s t=%.3f d=%g)", d.StreamName, d.SourceID, d.Type, d.Timestamp, d.DValue)
}
