// Package codec translates between broker-carried bytes and the
// structured values the reactor operates on.
//
// Decoded values are plain Go values produced by encoding/json: maps,
// slices, strings, float64, bool, nil. Envelope wraps the subset of
// shapes the reactor and rendezvous packages recognize (return-topic,
// response-topic, data, args) while preserving every other key for
// round-tripping.
package codec

import (
	"encoding/json"

	"github.com/venicegeo/fusion/pkg/errors"
)

// CodeMalformedPayload is returned when Decode cannot parse its input.
const CodeMalformedPayload = "MALFORMED_PAYLOAD"

// Encode serializes v to its wire representation.
func Encode(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, errors.New(CodeMalformedPayload, "failed to encode value", err)
	}
	return b, nil
}

// Decode parses data into a structured value: a map[string]any, []any, a
// scalar, or nil. It returns a *errors.AppError with CodeMalformedPayload
// if data is not valid JSON.
func Decode(data []byte) (any, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, errors.New(CodeMalformedPayload, "failed to decode payload", err)
	}
	return v, nil
}
