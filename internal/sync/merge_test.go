package sync

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"

	"github.com/nhle/tempmail/internal/model"
	"github.com/nhle/tempmail/tests/testutil"
)

const systemSender = "no-reply@guerrillamail.com"

func TestMerge(t *testing.T) {
	cases := []struct {
		name      string
		cache     []string
		incoming  []string
		want      []string
		wantAdded int
	}{
		{"empty cache keeps batch order", nil, []string{"1", "2"}, []string{"1", "2"}, 2},
		{"new id goes in front", []string{"1", "2"}, []string{"2", "3"}, []string{"3", "1", "2"}, 1},
		{"nothing new", []string{"1", "2"}, []string{"1", "2"}, []string{"1", "2"}, 0},
		{"empty batch", []string{"1"}, nil, []string{"1"}, 0},
		{"duplicates within batch", nil, []string{"4", "4", "5"}, []string{"4", "5"}, 2},
		{"several new keep relative order", []string{"1"}, []string{"3", "1", "2"}, []string{"3", "2", "1"}, 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			merged, added := Merge(model.Inbox(testutil.Summaries(tc.cache...)), testutil.Summaries(tc.incoming...), systemSender)
			if diff := cmp.Diff(tc.want, merged.IDs()); diff != "" {
				t.Errorf("Merge() ids mismatch (-want +got):\n%s", diff)
			}
			assert.Equal(t, tc.wantAdded, added)
		})
	}
}

func TestMergePrependsOnlyNewIDs(t *testing.T) {
	var cache model.Inbox

	cache, _ = Merge(cache, testutil.Summaries("1", "2"), systemSender)
	assert.Equal(t, []string{"1", "2"}, cache.IDs())

	cache, _ = Merge(cache, testutil.Summaries("2", "3"), systemSender)
	assert.Equal(t, []string{"3", "1", "2"}, cache.IDs())
}

func TestMergeIsIdempotent(t *testing.T) {
	batch := testutil.Summaries("7", "8", "9")
	start := model.Inbox(testutil.Summaries("1", "2"))

	once, _ := Merge(start, batch, systemSender)
	twice, added := Merge(once, batch, systemSender)

	assert.Equal(t, 0, added)
	if diff := cmp.Diff(once, twice); diff != "" {
		t.Errorf("second merge changed cache (-once +twice):\n%s", diff)
	}
}

func TestMergeNeverShrinksOrReorders(t *testing.T) {
	cache := model.Inbox(testutil.Summaries("5", "4", "3"))
	batches := [][]string{{"3"}, {}, {"6", "5"}, {"1", "2", "9"}}

	for _, b := range batches {
		next, _ := Merge(cache, testutil.Summaries(b...), systemSender)
		assert.GreaterOrEqual(t, len(next), len(cache))
		// The previous cache must appear as the tail of the new one.
		assert.Equal(t, cache.IDs(), next.IDs()[len(next)-len(cache):])
		cache = next
	}
}

func TestMergeDropsSystemSender(t *testing.T) {
	batch := testutil.Summaries("1", "2")
	batch[0].From = "No-Reply@GuerrillaMail.com"

	merged, added := Merge(nil, batch, systemSender)
	assert.Equal(t, 1, added)
	assert.Equal(t, []string{"2"}, merged.IDs())
}

func TestMergeDoesNotOverwriteCachedEntries(t *testing.T) {
	cache := model.Inbox(testutil.Summaries("1"))
	update := testutil.Summaries("1")
	update[0].Subject = "changed"

	merged, _ := Merge(cache, update, systemSender)
	assert.Equal(t, "subject 1", merged[0].Subject)
}

func TestMergeDoesNotAliasCache(t *testing.T) {
	cache := make(model.Inbox, 1, 4)
	cache[0] = testutil.Summaries("1")[0]

	merged, _ := Merge(cache, testutil.Summaries("2"), systemSender)
	merged[1].Subject = "mutated"
	assert.Equal(t, "subject 1", cache[0].Subject)
}
