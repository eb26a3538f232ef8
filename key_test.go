package mappack

import (
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		entries []NormalizedEntry
		want    ContentKey
	}{
		{
			name: "two entries",
			entries: []NormalizedEntry{
				{URL: "https://osu.ppy.sh/b/1", Slot: "HD1"},
				{URL: "https://osu.ppy.sh/b/2", Slot: "NM1"},
			},
			want: "c013e36396b0c317c6595aa41e578d6731b259c7103a298050fa4a47e13a95ea",
		},
		{
			name: "html characters are not escaped",
			entries: []NormalizedEntry{
				{URL: "https://osu.ppy.sh/b/3?m=0&x=<y>", Slot: "NM1"},
			},
			want: "d432ec2a25e47ccdf9067bee80019dbcaa69ea0388353038e4d454719814b388",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, DeriveKey(tt.entries))
		})
	}
}

func TestCanonical(t *testing.T) {
	t.Parallel()

	got := Canonical([]NormalizedEntry{{URL: "https://osu.ppy.sh/b/3?a=1&b=2", Slot: "NM1"}})
	assert.Equal(t, `[{"url":"https://osu.ppy.sh/b/3?a=1&b=2","slot":"NM1"}]`, string(got))
	assert.Equal(t, "[]", string(Canonical(nil)))
}

func TestDeriveKeyDeterministic(t *testing.T) {
	t.Parallel()

	a := Normalize([]PoolEntry{
		{URL: "https://osu.ppy.sh/b/1", Slot: "NM1"},
		{URL: "https://osu.ppy.sh/b/2", Slot: "HD1"},
	})
	b := Normalize([]PoolEntry{
		{URL: "  https://osu.ppy.sh/b/2", Slot: "hd1 "},
		{URL: "https://osu.ppy.sh/b/1 ", Slot: " nm1"},
	})
	c := Normalize([]PoolEntry{
		{URL: "https://osu.ppy.sh/b/1", Slot: "NM1"},
		{URL: "https://osu.ppy.sh/b/3", Slot: "HD1"},
	})

	assert.Equal(t, DeriveKey(a), DeriveKey(b))
	assert.NotEqual(t, DeriveKey(a), DeriveKey(c))
}

// TestDeriveKeyInvariance checks that order, slot case and surrounding
// whitespace never change the key.
func TestDeriveKeyInvariance(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	entryGen := gopter.CombineGens(gen.Identifier(), gen.AlphaString()).Map(func(v []any) PoolEntry {
		return PoolEntry{URL: "https://osu.ppy.sh/b/" + v[0].(string), Slot: v[1].(string)}
	})

	properties.Property("key ignores order, slot case and whitespace", prop.ForAll(
		func(entries []PoolEntry, seed uint64) bool {
			if len(entries) == 0 {
				return true
			}
			rng := rand.New(rand.NewPCG(seed, seed>>1))

			variant := make([]PoolEntry, len(entries))
			for i, e := range entries {
				slot := e.Slot
				if rng.IntN(2) == 0 {
					slot = strings.ToLower(slot)
				}
				variant[i] = PoolEntry{
					URL:  " \t" + e.URL + "\n",
					Slot: "  " + slot + " ",
				}
			}
			rng.Shuffle(len(variant), func(i, j int) {
				variant[i], variant[j] = variant[j], variant[i]
			})

			return DeriveKey(Normalize(entries)) == DeriveKey(Normalize(variant))
		},
		gen.SliceOf(entryGen),
		gen.UInt64(),
	))

	properties.TestingRun(t)
}

func TestParseContentKey(t *testing.T) {
	t.Parallel()

	valid := "c013e36396b0c317c6595aa41e578d6731b259c7103a298050fa4a47e13a95ea"
	key, err := ParseContentKey(valid)
	require.NoError(t, err)
	assert.Equal(t, ContentKey(valid), key)
	assert.Equal(t, valid+".zip", key.ObjectName())
	assert.Equal(t, "sha256:"+valid, key.Digest().String())

	for _, bad := range []string{
		"",
		"abc",
		strings.ToUpper(valid),
		valid + "00",
		strings.Repeat("g", 64),
	} {
		_, err := ParseContentKey(bad)
		assert.ErrorIs(t, err, ErrInvalidKey, "input %q", bad)
	}
}

func TestParseObjectName(t *testing.T) {
	t.Parallel()

	valid := "c013e36396b0c317c6595aa41e578d6731b259c7103a298050fa4a47e13a95ea"
	key, err := ParseObjectName(valid + ".zip")
	require.NoError(t, err)
	assert.Equal(t, ContentKey(valid), key)

	_, err = ParseObjectName(valid)
	require.ErrorIs(t, err, ErrInvalidKey)
	_, err = ParseObjectName("../etc/passwd.zip")
	require.ErrorIs(t, err, ErrInvalidKey)
}
