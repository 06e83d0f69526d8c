package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve_Deterministic(t *testing.T) {
	a := Resolve("a.mp4", 1000, 1000)
	b := Resolve("a.mp4", 1000, 1000)

	assert.Equal(t, a, b, "same triple must yield the same fingerprint")
	assert.Len(t, a, HexLength)
}

func TestResolve_DistinctTriples(t *testing.T) {
	base := Resolve("a.mp4", 1000, 1000)

	tests := []struct {
		name         string
		fileName     string
		size         int64
		lastModified int64
	}{
		{"different name", "b.mp4", 1000, 1000},
		{"different size", "a.mp4", 1001, 1000},
		{"different last modified", "a.mp4", 1000, 1001},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotEqual(t, base, Resolve(tt.fileName, tt.size, tt.lastModified))
		})
	}
}

func TestResolve_SeparatorNotAmbiguous(t *testing.T) {
	// The hash input is delimited, so shifting digits between fields must
	// not collide.
	assert.NotEqual(t, Resolve("a.mp41", 0, 0), Resolve("a.mp4", 10, 0))
}

func TestObjectKeyRoundTrip(t *testing.T) {
	fp := Resolve("a.mp4", 1000, 1000)
	key := ObjectKey("owner@example.com", fp, "a.mp4")

	owner, gotFP, name, err := ParseObjectKey(key)
	require.NoError(t, err)
	assert.Equal(t, "owner@example.com", owner)
	assert.Equal(t, fp, gotFP)
	assert.Equal(t, "a.mp4", name)
}

func TestObjectKeyRoundTrip_NameWithDashes(t *testing.T) {
	fp := Resolve("my-clip-final.mp4", 42, 7)
	key := ObjectKey("u1", fp, "my-clip-final.mp4")

	_, _, name, err := ParseObjectKey(key)
	require.NoError(t, err)
	assert.Equal(t, "my-clip-final.mp4", name)
}

func TestParseObjectKey_Malformed(t *testing.T) {
	tests := []struct {
		name string
		key  string
	}{
		{"empty", ""},
		{"no owner", "/abc-def"},
		{"no slash", "abcdef"},
		{"short fingerprint", "owner/abc-a.mp4"},
		{"non-hex fingerprint", "owner/ZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZ-a.mp4"},
		{"missing name", "owner/0123456789abcdef0123456789abcdef"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, _, err := ParseObjectKey(tt.key)
			assert.Error(t, err)
		})
	}
}

func TestResultKey(t *testing.T) {
	assert.Equal(t, "u1/0123abc.json", ResultKey("u1", "0123abc"))
}
