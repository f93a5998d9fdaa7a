package plate_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/BrandonDHaskell/gatelog/internal/gatelog/plate"
)

func TestIsValid_AcceptsCanonicalPlates(t *testing.T) {
	for _, p := range []string{"TG01AB1234", "DL05CD5678", "UP14YZ9012", "AA00AA0000", "ZZ99ZZ9999"} {
		assert.True(t, plate.IsValid(p), "expected %q to be valid", p)
	}
}

func TestIsValid_RejectsEveryPositionMutation(t *testing.T) {
	base := "TG01AB1234"

	// Swap the character class at each position: letters become digits,
	// digits become letters.
	for i := range base {
		b := []byte(base)
		if b[i] >= 'A' && b[i] <= 'Z' {
			b[i] = '7'
		} else {
			b[i] = 'Q'
		}
		assert.False(t, plate.IsValid(string(b)), "class swap at %d: %q", i, b)
	}

	// Lowercase at each letter position.
	for i := range base {
		if base[i] < 'A' || base[i] > 'Z' {
			continue
		}
		b := []byte(base)
		b[i] = b[i] + ('a' - 'A')
		assert.False(t, plate.IsValid(string(b)), "lowercase at %d: %q", i, b)
	}
}

func TestIsValid_RejectsWrongLength(t *testing.T) {
	cases := []string{
		"",
		"TG01AB123",
		"TG01AB12345",
		"TG1AB1234",
		" TG01AB1234",
		"TG01AB1234 ",
		"TG-01-AB-1234",
		"TG01 AB1234",
		"INVALIDPLATE12",
		"ABCD12345678",
		"bad-plate",
	}
	for _, c := range cases {
		assert.False(t, plate.IsValid(c), "expected %q to be invalid", c)
	}
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "TG01AB1234", plate.Normalize("  tg01ab1234 "))
	assert.True(t, plate.IsValid(plate.Normalize("dl05cd5678")))
	assert.Equal(t, "", plate.Normalize("   "))
}
