package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetails_BytesNil(t *testing.T) {
	var d Details
	assert.Equal(t, "{}", string(d.Bytes()))
}

func TestDetails_RoundTripThroughColumn(t *testing.T) {
	d := Details{"identifier": "a@x.com", "count": 3}

	parsed, err := ParseDetails(d.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", parsed["identifier"])
	// JSON numbers decode as float64
	assert.Equal(t, float64(3), parsed["count"])
}

func TestParseDetails_NullColumn(t *testing.T) {
	parsed, err := ParseDetails(nil)
	require.NoError(t, err)
	assert.NotNil(t, parsed)
	assert.Empty(t, parsed)

	parsed, err = ParseDetails([]byte("null"))
	require.NoError(t, err)
	assert.NotNil(t, parsed)
}

func TestParseDetails_Invalid(t *testing.T) {
	_, err := ParseDetails([]byte("{not json"))
	assert.Error(t, err)
}
