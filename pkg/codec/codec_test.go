package codec_test

import (
	"testing"

	"github.com/venicegeo/fusion/pkg/codec"
	"github.com/venicegeo/fusion/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	cases := []any{
		float64(7),
		"hello",
		true,
		nil,
		[]any{float64(1), float64(2), float64(3)},
		map[string]any{"a": float64(1), "b": []any{"x", "y"}},
	}

	for _, v := range cases {
		encoded, err := codec.Encode(v)
		require.NoError(t, err)

		decoded, err := codec.Decode(encoded)
		require.NoError(t, err)

		assert.Equal(t, v, decoded)
	}
}

func TestDecodeMalformedPayload(t *testing.T) {
	_, err := codec.Decode([]byte("{not json"))
	require.Error(t, err)
	assert.Equal(t, codec.CodeMalformedPayload, errors.CodeOf(err))
}

func TestEnvelopeRecognizedFields(t *testing.T) {
	raw := map[string]any{
		"return-topic":   "out",
		"response-topic": "r-1",
		"data":           float64(7),
		"extra":          "passthrough",
	}

	env, err := codec.EnvelopeFromValue(raw)
	require.NoError(t, err)

	rt, ok := env.ReturnTopic()
	assert.True(t, ok)
	assert.Equal(t, "out", rt)

	respTopic, ok := env.ResponseTopic()
	assert.True(t, ok)
	assert.Equal(t, "r-1", respTopic)

	data, ok := env.Data()
	assert.True(t, ok)
	assert.Equal(t, float64(7), data)

	assert.Equal(t, "passthrough", env.Raw()["extra"])
}

func TestEnvelopeRoundTripPreservesUnrecognizedFields(t *testing.T) {
	env := codec.NewEnvelope()
	env.SetResponseTopic("r-2")
	env.SetArgs([]any{float64(1), float64(2)})
	env.Raw()["trace-id"] = "abc123"

	encoded, err := codec.Encode(env.Value())
	require.NoError(t, err)

	decoded, err := codec.Decode(encoded)
	require.NoError(t, err)

	roundTripped, err := codec.EnvelopeFromValue(decoded)
	require.NoError(t, err)

	respTopic, ok := roundTripped.ResponseTopic()
	assert.True(t, ok)
	assert.Equal(t, "r-2", respTopic)
	assert.Equal(t, "abc123", roundTripped.Raw()["trace-id"])

	args, ok := roundTripped.Args()
	assert.True(t, ok)
	assert.Equal(t, []any{float64(1), float64(2)}, args)
}

func TestEnvelopeFromNonObjectValue(t *testing.T) {
	_, err := codec.EnvelopeFromValue("not an object")
	require.Error(t, err)
	assert.Equal(t, codec.CodeMalformedPayload, errors.CodeOf(err))
}
