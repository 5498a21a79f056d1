package system

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClockNowIsUTC(t *testing.T) {
	t.Parallel()

	before := time.Now().Add(-time.Second)
	got := New().Now()
	after := time.Now().Add(time.Second)

	assert.Equal(t, time.UTC, got.Location())
	assert.WithinRange(t, got, before, after)
}

func TestScrapedAtFormatting(t *testing.T) {
	t.Parallel()

	// Rows carry RFC 3339 UTC timestamps with a Z suffix.
	got := New().Now().Format(time.RFC3339)
	assert.Regexp(t, `^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}Z$`, got)
}
