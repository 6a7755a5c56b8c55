package pipeline

import (
	"sort"
	"strings"

	"github.com/mitchhs12/safe-top-protocols/dataset"
)

// Combine merges direct interaction counts with the destinations reached
// through multiSend batches. Addresses are compared lowercase; an address
// present on only one side keeps that side's count. The result is sorted by
// total count, highest first, ties broken by address.
func Combine(direct []dataset.ContractCount, forwarded []dataset.ForwardedCall) []dataset.CombinedCount {
	totals := make(map[string]int64, len(direct))

	for _, d := range direct {
		addr := normalizeAddress(d.DestinationContract)
		if addr == "" {
			continue
		}
		totals[addr] += d.InteractionCount
	}
	for _, f := range forwarded {
		addr := normalizeAddress(f.ForwardedToAddress)
		if addr == "" {
			continue
		}
		totals[addr]++
	}

	combined := make([]dataset.CombinedCount, 0, len(totals))
	for addr, n := range totals {
		combined = append(combined, dataset.CombinedCount{Address: addr, Count: n})
	}
	sort.Slice(combined, func(i, j int) bool {
		if combined[i].Count != combined[j].Count {
			return combined[i].Count > combined[j].Count
		}
		return combined[i].Address < combined[j].Address
	})
	return combined
}

// Top returns at most n rows of a combined ranking as label candidates
func Top(combined []dataset.CombinedCount, n int) []dataset.TopContract {
	if n <= 0 || n > len(combined) {
		n = len(combined)
	}
	top := make([]dataset.TopContract, n)
	for i := 0; i < n; i++ {
		top[i] = dataset.TopContract{
			DestinationContract: combined[i].Address,
			InteractionCount:    combined[i].Count,
		}
	}
	return top
}

func normalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}
