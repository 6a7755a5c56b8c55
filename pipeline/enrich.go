package pipeline

import (
	"github.com/mitchhs12/safe-top-protocols/dataset"
	"github.com/mitchhs12/safe-top-protocols/etherscan"
)

// labelIndex builds a lowercase address lookup. The first label listed for
// an address wins.
func labelIndex(entries []dataset.LabelEntry) map[string]string {
	idx := make(map[string]string, len(entries))
	for _, e := range entries {
		addr := normalizeAddress(e.Address)
		if _, seen := idx[addr]; seen || addr == "" {
			continue
		}
		idx[addr] = e.Label
	}
	return idx
}

// Enrich fills CustomLabel from the account and token label lists. An
// account label takes priority over a token label; rows matching neither
// keep an empty CustomLabel. Rows are returned in input order.
func Enrich(rows []dataset.TopContract, accounts, tokens []dataset.LabelEntry) []dataset.TopContract {
	accountIdx := labelIndex(accounts)
	tokenIdx := labelIndex(tokens)

	out := make([]dataset.TopContract, len(rows))
	for i, row := range rows {
		addr := normalizeAddress(row.DestinationContract)
		if label, ok := accountIdx[addr]; ok {
			row.CustomLabel = label
		} else if label, ok := tokenIdx[addr]; ok {
			row.CustomLabel = label
		} else {
			row.CustomLabel = ""
		}
		out[i] = row
	}
	return out
}

// FilterTokens drops rows classified as ERC20 tokens
func FilterTokens(rows []dataset.TopContract) []dataset.TopContract {
	out := make([]dataset.TopContract, 0, len(rows))
	for _, row := range rows {
		if row.ContractType == string(etherscan.TypeERC20) {
			continue
		}
		out = append(out, row)
	}
	return out
}
