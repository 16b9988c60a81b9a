package dispatch

import (
	"sort"

	"github.com/nhle/mailscript/internal/model"
)

// SortByTimestamp returns a copy of records ordered by timestamp.
// Records without a timestamp come first; ties keep file order.
func SortByTimestamp(records []model.EmailRecord) []model.EmailRecord {
	sorted := make([]model.EmailRecord, len(records))
	copy(sorted, records)

	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i].Timestamp, sorted[j].Timestamp
		switch {
		case a == nil:
			return b != nil
		case b == nil:
			return false
		default:
			return a.Before(*b)
		}
	})

	return sorted
}
