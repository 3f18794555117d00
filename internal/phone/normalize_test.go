package phone

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeLocalTarget(t *testing.T) {
	t.Parallel()

	profile := NewProfile("+234", 10, FormatLocal)

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "already local", raw: "08031234567", want: "08031234567"},
		{name: "bare national", raw: "8031234567", want: "08031234567"},
		{name: "country code prefix", raw: "2348031234567", want: "08031234567"},
		{name: "plus country code", raw: "+2348031234567", want: "08031234567"},
		{name: "spaces and dashes", raw: "0803 123-4567", want: "08031234567"},
		{name: "parentheses", raw: "(0803) 123 4567", want: "08031234567"},
		{name: "short unrecognized gets prefixed", raw: "12345", want: "012345"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := profile.Normalize(tt.raw)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeInternationalTarget(t *testing.T) {
	t.Parallel()

	profile := NewProfile("234", 10, FormatInternational)

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "country code prefix", raw: "2348031234567", want: "+2348031234567"},
		{name: "plus country code", raw: "+2348031234567", want: "+2348031234567"},
		{name: "trunk prefix stripped", raw: "08031234567", want: "+2348031234567"},
		{name: "bare national length", raw: "8031234567", want: "+2348031234567"},
		{name: "unrecognized kept verbatim", raw: "447911123456", want: "+447911123456"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := profile.Normalize(tt.raw)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeRejectsInputWithoutDigits(t *testing.T) {
	t.Parallel()

	profile := NewProfile("+234", 10, FormatLocal)
	for _, raw := range []string{"", "   ", "n/a", "---", "phone"} {
		_, ok := profile.Normalize(raw)
		assert.False(t, ok, "input %q should be rejected", raw)
	}
}

func TestNormalizeIsDeterministic(t *testing.T) {
	t.Parallel()

	for _, target := range []Format{FormatLocal, FormatInternational} {
		profile := NewProfile("+234", 10, target)
		first, ok := profile.Normalize("+234 803 123 4567")
		require.True(t, ok)
		for i := 0; i < 10; i++ {
			again, ok := profile.Normalize("+234 803 123 4567")
			require.True(t, ok)
			assert.Equal(t, first, again)
		}
	}
}

func TestNormalizeCanonicalMarker(t *testing.T) {
	t.Parallel()

	local := NewProfile("+234", 10, FormatLocal)
	intl := NewProfile("+234", 10, FormatInternational)

	inputs := []string{"08031234567", "8031234567", "2348031234567", "+234-803-1234-567", "99"}
	for _, raw := range inputs {
		got, ok := local.Normalize(raw)
		require.True(t, ok)
		assert.Equal(t, byte('0'), got[0], "local form of %q", raw)

		got, ok = intl.Normalize(raw)
		require.True(t, ok)
		assert.Equal(t, byte('+'), got[0], "international form of %q", raw)
	}
}

func TestForCountry(t *testing.T) {
	t.Parallel()

	base := NewProfile("+234", 10, FormatLocal)

	tests := []struct {
		cell string
		want string
	}{
		{cell: "gh", want: "233"},
		{cell: "GH", want: "233"},
		{cell: "Ghana (Accra)", want: "233"},
		{cell: "ng", want: "234"},
		{cell: "Nigeria", want: "234"},
		{cell: "", want: "234"},
		{cell: "somewhere else", want: "234"},
	}
	for _, tt := range tests {
		got := ForCountry(tt.cell, base)
		assert.Equal(t, tt.want, got.CountryCode, "cell %q", tt.cell)
		assert.Equal(t, base.Target, got.Target)
	}
}

func TestNewProfileDefaults(t *testing.T) {
	t.Parallel()

	profile := NewProfile("", 0, Format("bogus"))
	assert.Equal(t, "234", profile.CountryCode)
	assert.Equal(t, "0", profile.TrunkPrefix)
	assert.Equal(t, 10, profile.NationalLength)
	assert.Equal(t, FormatLocal, profile.Target)
}
