// Package dataset defines the CSV rows exchanged between pipeline stages and
// the helpers that read and write them.
package dataset

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"
)

// MultisendTx is a Safe execTransaction whose inner call may be a multiSend
type MultisendTx struct {
	TxHash string `csv:"tx_hash"`
	Input  string `csv:"input"`
}

// ForwardedCall is one destination reached through a multiSend batch
type ForwardedCall struct {
	TxHash             string `csv:"tx_hash"`
	ForwardedToAddress string `csv:"forwarded_to_address"`
}

// SkippedTx is a transaction that produced no forwarded calls
type SkippedTx struct {
	Hash   string `csv:"hash"`
	Reason string `csv:"reason"`
}

// ContractCount is a direct-interaction count from Dune
type ContractCount struct {
	DestinationContract string `csv:"destination_contract"`
	InteractionCount    int64  `csv:"interaction_count"`
}

// TopContract is a ranked destination with its labels
type TopContract struct {
	DestinationContract string `csv:"destination_contract"`
	InteractionCount    int64  `csv:"interaction_count"`
	Label               string `csv:"label"`
	ContractType        string `csv:"contract_type"`
	TokenSymbol         string `csv:"token_symbol"`
	CustomLabel         string `csv:"custom_label"`
}

// LabelEntry is a row of an address label list
type LabelEntry struct {
	Address string `csv:"address"`
	Label   string `csv:"label"`
}

// CombinedCount is the total interaction count of one address
type CombinedCount struct {
	Address string `csv:"address"`
	Count   int64  `csv:"amount_of_times_interacted_with"`
}

// ReadCSV reads every row of a CSV file with a header line
func ReadCSV[T any](path string) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	var rows []T
	if err := gocsv.UnmarshalFile(f, &rows); err != nil {
		if errors.Is(err, gocsv.ErrEmptyCSVFile) {
			return rows, nil
		}
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return rows, nil
}

// ParseCSV parses rows from an in-memory CSV document
func ParseCSV[T any](data []byte) ([]T, error) {
	var rows []T
	if err := gocsv.UnmarshalBytes(data, &rows); err != nil {
		if errors.Is(err, gocsv.ErrEmptyCSVFile) {
			return rows, nil
		}
		return nil, err
	}
	return rows, nil
}

// WriteCSV writes rows with a header line, creating parent directories
func WriteCSV[T any](path string, rows []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}

	var buf bytes.Buffer
	if err := gocsv.Marshal(rows, &buf); err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

// WriteRaw stores a CSV document as fetched, creating parent directories
func WriteRaw(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	return os.WriteFile(path, data, 0o644)
}
