package inventory

import "sort"

// ConsumesBefore reports whether lot a is drawn down before lot b.
// Earlier expiry first, lots without expiry last, then insertion order.
func ConsumesBefore(a, b *StockLot) bool {
	switch {
	case a.ExpiryDate == nil && b.ExpiryDate == nil:
	case a.ExpiryDate == nil:
		return false
	case b.ExpiryDate == nil:
		return true
	case !a.ExpiryDate.Equal(*b.ExpiryDate):
		return a.ExpiryDate.Before(*b.ExpiryDate)
	}

	if a.Sequence != b.Sequence {
		return a.Sequence < b.Sequence
	}
	return a.CreatedAt.Before(b.CreatedAt)
}

// SortForConsumption orders lots in place by ConsumesBefore
func SortForConsumption(lots []StockLot) {
	sort.SliceStable(lots, func(i, j int) bool {
		return ConsumesBefore(&lots[i], &lots[j])
	})
}

// AvailableTotal sums the positive quantities of the given lots
func AvailableTotal(lots []StockLot) int64 {
	var total int64
	for i := range lots {
		if lots[i].HasStock() {
			total += lots[i].Quantity
		}
	}
	return total
}
