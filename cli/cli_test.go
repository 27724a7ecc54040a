// ABOUTME: Tests for CLI flag parsing helpers
// ABOUTME: Covers filter flags and due-date parsing
package cli

import (
	"flag"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breakhq/outreach/pipeline"
)

func TestParseFilters(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	f := parseFilters(fs, []string{"--range", "30", "--owner", "Sam", "--archived"})
	assert.Equal(t, pipeline.Filters{RangeDays: 30, Owner: "Sam", ShowArchived: true}, f)

	fs = flag.NewFlagSet("test", flag.ContinueOnError)
	f = parseFilters(fs, nil)
	assert.Equal(t, pipeline.Filters{}, f)
}

func TestParseDue(t *testing.T) {
	got, err := parseDue("")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = parseDue("2026-09-15")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 15, got.Day())

	got, err = parseDue("2026-09-15T14:30")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 14, got.Hour())

	rfc := time.Now().UTC().Format(time.RFC3339)
	got, err = parseDue(rfc)
	require.NoError(t, err)
	require.NotNil(t, got)

	_, err = parseDue("next tuesday")
	assert.Error(t, err)
}
