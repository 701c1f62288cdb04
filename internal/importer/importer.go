// Package importer reads bank exports (CSV, OFX and QFX) into ledger-ready records.
package importer

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/finhelper/internal/common"
	"github.com/Veraticus/finhelper/internal/model"
)

// Record is one imported transaction before it is stored.
type Record struct {
	Timestamp   time.Time
	Amount      decimal.Decimal
	Type        model.TransactionType
	Merchant    string
	Description string
	Category    string
	Reference   string
}

// RowError describes an input row that was skipped.
type RowError struct {
	Err  error
	Line int
}

func (e RowError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e RowError) Unwrap() error {
	return e.Err
}

// Batch is the outcome of parsing one file.
type Batch struct {
	Records []Record
	Skipped []RowError
}

// Parser reads one export format.
type Parser interface {
	Parse(ctx context.Context, r io.Reader) (Batch, error)
}

// Format names an input format.
type Format string

// Supported formats.
const (
	FormatCSV Format = "csv"
	FormatOFX Format = "ofx"
)

// DetectFormat picks the format from a file extension.
func DetectFormat(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return FormatCSV, nil
	case ".ofx", ".qfx":
		return FormatOFX, nil
	default:
		return "", fmt.Errorf("%w: unsupported import file %q", common.ErrInvalidInput, filepath.Base(path))
	}
}

// ParseFormat converts a user-supplied format name.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "csv":
		return FormatCSV, nil
	case "ofx", "qfx":
		return FormatOFX, nil
	default:
		return "", fmt.Errorf("%w: unknown import format %q", common.ErrInvalidInput, s)
	}
}

// NewParser returns the parser for format.
func NewParser(format Format) (Parser, error) {
	switch format {
	case FormatCSV:
		return NewCSVParser(), nil
	case FormatOFX:
		return NewOFXParser(), nil
	default:
		return nil, fmt.Errorf("%w: unknown import format %q", common.ErrInvalidInput, format)
	}
}
