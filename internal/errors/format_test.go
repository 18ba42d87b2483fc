package errors

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatJSON_RoundTripsFields(t *testing.T) {
	// Given: a detailed error with a cause
	err := New(ErrCodeQueryTooShort, "query too short", errors.New("len 1")).
		WithDetail("query", "a")

	// When: formatting as JSON
	data, jerr := FormatJSON(err)
	require.NoError(t, jerr)

	// Then: the document carries code, category and cause
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, ErrCodeQueryTooShort, decoded["code"])
	assert.Equal(t, string(CategoryValidation), decoded["category"])
	assert.Equal(t, "len 1", decoded["cause"])
	assert.Equal(t, map[string]any{"query": "a"}, decoded["details"])
}

func TestLogAttrs(t *testing.T) {
	assert.Nil(t, LogAttrs(nil))
	assert.Len(t, LogAttrs(errors.New("plain")), 1)

	attrs := LogAttrs(New(ErrCodeSourceTimeout, "timeout", errors.New("deadline")).WithDetail("source", "p1"))
	assert.Len(t, attrs, 5)
}
