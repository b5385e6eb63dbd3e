package pivot

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sizeKey(label string) Key {
	return Key{Label: label, Join: label, Kind: KindSize, Bytes: ParseBlockSize(label)}
}

func countKeyFor(label string, n float64) Key {
	return Key{Label: label, Join: label, Kind: KindCount, Count: n}
}

func seriesKey(host, device, pattern string) Key {
	label := host + " - " + device + " - " + pattern
	return Key{Label: label, Join: label, Kind: KindCategory, Host: host, Device: device, Pattern: pattern}
}

func labelsOf(keys []Key) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k.Label
	}
	return out
}

func TestSortKeysBlockSizes(t *testing.T) {
	keys := []Key{sizeKey("1M"), sizeKey("8K"), sizeKey("4K"), sizeKey("64K")}
	sorted := SortKeys(keys, SortHostnameFirst)
	assert.Equal(t, []string{"4K", "8K", "64K", "1M"}, labelsOf(sorted))

	// input order must not matter
	rand.New(rand.NewSource(7)).Shuffle(len(keys), func(i, j int) {
		keys[i], keys[j] = keys[j], keys[i]
	})
	assert.Equal(t, []string{"4K", "8K", "64K", "1M"}, labelsOf(SortKeys(keys, SortHostnameFirst)))
}

func TestSortKeysCountsNumericWithLexicalFallback(t *testing.T) {
	keys := []Key{
		countKeyFor("zebra", math.NaN()),
		countKeyFor("16", 16),
		countKeyFor("apple", math.NaN()),
		countKeyFor("2", 2),
	}
	sorted := SortKeys(keys, SortHostnameFirst)
	assert.Equal(t, []string{"2", "16", "apple", "zebra"}, labelsOf(sorted))
}

func TestSortKeysPatternTieBreak(t *testing.T) {
	keys := []Key{
		seriesKey("host-a", "Local - ssd", "random_write"),
		seriesKey("host-a", "Local - ssd", "random_read"),
	}
	sorted := SortKeys(keys, SortHostnameFirst)
	require.Len(t, sorted, 2)
	assert.Equal(t, "random_read", sorted[0].Pattern)
	assert.Equal(t, "random_write", sorted[1].Pattern)
}

func TestSortKeysPatternPriority(t *testing.T) {
	keys := []Key{
		seriesKey("h", "d", "mixed"),
		seriesKey("h", "d", "sequential_write"),
		seriesKey("h", "d", "sequential_read"),
	}
	sorted := SortKeys(keys, SortPatternFirst)
	assert.Equal(t, "sequential_read", sorted[0].Pattern)
	assert.Equal(t, "sequential_write", sorted[1].Pattern)
	assert.Equal(t, "mixed", sorted[2].Pattern)
}

func TestSortKeysModes(t *testing.T) {
	keys := []Key{
		seriesKey("host-b", "dev", "random_read"),
		seriesKey("host-a", "dev", "random_write"),
	}

	byHost := SortKeys(keys, SortHostnameFirst)
	assert.Equal(t, "host-a", byHost[0].Host)

	byPattern := SortKeys(keys, SortPatternFirst)
	assert.Equal(t, "random_read", byPattern[0].Pattern)
	assert.Equal(t, "host-b", byPattern[0].Host)
}

func TestSortKeysTotalAndIdempotent(t *testing.T) {
	base := []Key{
		sizeKey("4K"),
		seriesKey("host-a", "dev-1", "random_read"),
		seriesKey("host-a", "dev-1", "random_write"),
		seriesKey("host-b", "dev-1", "random_read"),
		countKeyFor("8", 8),
		countKeyFor("1", 1),
		sizeKey("1M"),
		seriesKey("host-a", "dev-2", "mixed"),
	}

	want := SortKeys(base, SortHostnameFirst)

	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 25; trial++ {
		shuffled := make([]Key, len(base))
		copy(shuffled, base)
		rng.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})
		got := SortKeys(shuffled, SortHostnameFirst)
		require.Equal(t, want, got, "permutation %d changed the order", trial)

		// sorting sorted output changes nothing
		assert.Equal(t, got, SortKeys(got, SortHostnameFirst))
	}
}

func TestSortKeysDoesNotMutateInput(t *testing.T) {
	keys := []Key{sizeKey("1M"), sizeKey("4K")}
	_ = SortKeys(keys, SortHostnameFirst)
	assert.Equal(t, "1M", keys[0].Label)
}
