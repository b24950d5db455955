package timeframe

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Valid(t *testing.T) {
	spec, err := Parse("240m")
	require.NoError(t, err)
	assert.Equal(t, Spec{Raw: "240m", Value: 240, Unit: Minute}, spec)

	spec, err = Parse("1d")
	require.NoError(t, err)
	assert.Equal(t, Spec{Raw: "1d", Value: 1, Unit: Day}, spec)
}

func TestParse_Invalid(t *testing.T) {
	cases := []string{"", "0m", "-5m", "5x", "m", "5"}
	for _, c := range cases {
		_, err := Parse(c)
		assert.Errorf(t, err, "expected error for %q", c)
	}
}

func TestToDuration(t *testing.T) {
	m := MustParse("5m")
	d, err := m.ToDuration()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, d)

	month := MustParse("1M")
	_, err = month.ToDuration()
	assert.Error(t, err)
}

func TestSortKey_Orders(t *testing.T) {
	assert.True(t, Less(MustParse("1m"), MustParse("5m")))
	assert.True(t, Less(MustParse("240m"), MustParse("1d")))
	assert.True(t, Less(MustParse("1d"), MustParse("1w")))
	assert.True(t, Less(MustParse("1w"), MustParse("1M")))
	assert.True(t, Less(MustParse("1M"), MustParse("1y")))
}

func TestCanAggregate(t *testing.T) {
	assert.True(t, CanAggregate(MustParse("1m"), MustParse("5m")))
	assert.True(t, CanAggregate(MustParse("5m"), MustParse("15m")))
	assert.False(t, CanAggregate(MustParse("5m"), MustParse("7m")))
	assert.False(t, CanAggregate(MustParse("5m"), MustParse("5m")))
	assert.False(t, CanAggregate(MustParse("15m"), MustParse("5m")))
	assert.True(t, CanAggregate(MustParse("1d"), MustParse("1M")))
	assert.True(t, CanAggregate(MustParse("1d"), MustParse("1y")))
	assert.False(t, CanAggregate(MustParse("1w"), MustParse("1M")))
}

func TestAlign(t *testing.T) {
	loc := time.UTC
	tf := MustParse("5m")
	ts := time.Date(2024, 1, 1, 10, 23, 45, 0, loc)
	got, err := Align(ts, tf)
	require.NoError(t, err)
	want := time.Date(2024, 1, 1, 10, 20, 0, 0, loc)
	assert.Equal(t, want, got)
}
