package sync

import (
	"strings"

	"github.com/nhle/tempmail/internal/model"
)

// Merge folds a poll batch into the cached inbox. Messages from
// systemSender are dropped. Ids not yet cached are placed in front of the
// cache, keeping their order within the batch; cached entries never move
// or change. merged never aliases cache. Merging the same batch twice is
// a no-op the second time.
func Merge(
	cache model.Inbox,
	incoming []model.MessageSummary,
	systemSender string,
) (merged model.Inbox, added int) {
	seen := make(map[string]bool, len(cache)+len(incoming))
	for _, m := range cache {
		seen[m.ID] = true
	}

	var fresh []model.MessageSummary
	for _, m := range incoming {
		if m.ID == "" || isSystemSender(m.From, systemSender) {
			continue
		}
		if seen[m.ID] {
			continue
		}
		seen[m.ID] = true
		fresh = append(fresh, m)
	}

	merged = make(model.Inbox, 0, len(fresh)+len(cache))
	merged = append(merged, fresh...)
	merged = append(merged, cache...)
	return merged, len(fresh)
}

func isSystemSender(from, systemSender string) bool {
	return systemSender != "" && strings.EqualFold(strings.TrimSpace(from), systemSender)
}
