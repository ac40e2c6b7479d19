package system

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNowIsUTC(t *testing.T) {
	t.Parallel()

	before := time.Now().Add(-time.Second)
	got := New().Now()
	after := time.Now().Add(time.Second)

	require.Equal(t, time.UTC, got.Location())
	require.True(t, got.After(before) && got.Before(after), "now %v outside [%v, %v]", got, before, after)
}

// Deadlines are compared in Seoul, so a UTC evening is already the next
// calendar day there.
func TestNowConvertsToRunZone(t *testing.T) {
	t.Parallel()

	seoul := time.FixedZone("KST", 9*60*60)
	got := New().Now().In(seoul)
	_, offset := got.Zone()
	require.Equal(t, 9*60*60, offset)

	evening := time.Date(2025, time.March, 9, 20, 0, 0, 0, time.UTC)
	require.Equal(t, 10, evening.In(seoul).Day())
}
