package codec

import "github.com/venicegeo/fusion/pkg/errors"

// Well-known envelope fields recognized by the reactor and rendezvous.
const (
	FieldReturnTopic   = "return-topic"
	FieldResponseTopic = "response-topic"
	FieldData          = "data"
	FieldArgs          = "args"
)

// Envelope wraps a decoded message value, exposing typed accessors for the
// fields the reactor cares about while keeping every other key reachable
// via Raw so unrecognized fields survive a decode/re-encode round trip.
type Envelope struct {
	raw map[string]any
}

// NewEnvelope returns an empty envelope.
func NewEnvelope() *Envelope {
	return &Envelope{raw: make(map[string]any)}
}

// EnvelopeFromValue wraps a decoded value as an Envelope. v must be a
// map[string]any (the shape produced by Decode for any JSON object) or
// nil, which yields an empty envelope; any other shape returns a
// CodeMalformedPayload error.
func EnvelopeFromValue(v any) (*Envelope, error) {
	m, ok := v.(map[string]any)
	if !ok {
		if v == nil {
			return &Envelope{raw: make(map[string]any)}, nil
		}
		return nil, errors.New(CodeMalformedPayload, "envelope value is not an object", nil)
	}
	return &Envelope{raw: m}, nil
}

// Value returns the underlying map, suitable for passing to Encode.
func (e *Envelope) Value() map[string]any {
	return e.raw
}

// Raw returns every field in the envelope, including ones not recognized
// by the typed accessors below.
func (e *Envelope) Raw() map[string]any {
	return e.raw
}

// ReturnTopic returns the return-topic field, if present.
func (e *Envelope) ReturnTopic() (string, bool) {
	return stringField(e.raw, FieldReturnTopic)
}

// SetReturnTopic sets the return-topic field.
func (e *Envelope) SetReturnTopic(topic string) {
	e.raw[FieldReturnTopic] = topic
}

// ResponseTopic returns the response-topic field, if present.
func (e *Envelope) ResponseTopic() (string, bool) {
	return stringField(e.raw, FieldResponseTopic)
}

// SetResponseTopic sets the response-topic field.
func (e *Envelope) SetResponseTopic(topic string) {
	e.raw[FieldResponseTopic] = topic
}

// Data returns the data field, if present.
func (e *Envelope) Data() (any, bool) {
	v, ok := e.raw[FieldData]
	return v, ok
}

// SetData sets the data field.
func (e *Envelope) SetData(v any) {
	e.raw[FieldData] = v
}

// Args returns the args field as a slice, if present.
func (e *Envelope) Args() ([]any, bool) {
	v, ok := e.raw[FieldArgs]
	if !ok {
		return nil, false
	}
	args, ok := v.([]any)
	return args, ok
}

// SetArgs sets the args field.
func (e *Envelope) SetArgs(args []any) {
	e.raw[FieldArgs] = args
}

func stringField(m map[string]any, key string) (string, bool) {
	v, ok := m[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}
