package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/shopspring/decimal"

	"github.com/Veraticus/finhelper/internal/model"
)

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// csvRow is one line of the import CSV. Only date and amount are required.
type csvRow struct {
	Date        string `csv:"date"`
	Amount      string `csv:"amount"`
	Type        string `csv:"type"`
	Merchant    string `csv:"merchant"`
	Description string `csv:"description"`
	Category    string `csv:"category"`
	Reference   string `csv:"reference"`
}

// CSVParser reads comma separated files with a header row:
// date,amount,type,merchant,description,reference and an optional category column.
type CSVParser struct {
	location *time.Location
}

// NewCSVParser creates a CSV parser that reads dates without a zone as UTC.
func NewCSVParser() *CSVParser {
	return &CSVParser{location: time.UTC}
}

// Parse implements Parser.
func (p *CSVParser) Parse(_ context.Context, r io.Reader) (Batch, error) {
	var rows []*csvRow
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		if errors.Is(err, gocsv.ErrEmptyCSVFile) {
			return Batch{}, nil
		}
		return Batch{}, fmt.Errorf("error reading CSV: %w", err)
	}

	var batch Batch
	for i, row := range rows {
		line := i + 2 // header is line 1
		rec, err := p.convert(row)
		if err != nil {
			slog.Warn("skipping CSV row", "line", line, "error", err)
			batch.Skipped = append(batch.Skipped, RowError{Line: line, Err: err})
			continue
		}
		batch.Records = append(batch.Records, rec)
	}

	slog.Info("parsed CSV file", "records", len(batch.Records), "skipped", len(batch.Skipped))
	return batch, nil
}

func (p *CSVParser) convert(row *csvRow) (Record, error) {
	ts, err := p.parseDate(strings.TrimSpace(row.Date))
	if err != nil {
		return Record{}, err
	}

	raw := strings.ReplaceAll(strings.TrimSpace(row.Amount), ",", "")
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return Record{}, fmt.Errorf("invalid amount %q", row.Amount)
	}
	amount = amount.Abs()
	if amount.IsZero() {
		return Record{}, errors.New("amount must be non-zero")
	}

	txType := model.TransactionTypeExpense
	if t := strings.TrimSpace(row.Type); t != "" {
		txType, err = model.ParseTransactionType(t)
		if err != nil {
			return Record{}, err
		}
	}

	return Record{
		Timestamp:   ts,
		Amount:      amount,
		Type:        txType,
		Merchant:    strings.TrimSpace(row.Merchant),
		Description: strings.TrimSpace(row.Description),
		Category:    strings.TrimSpace(row.Category),
		Reference:   strings.TrimSpace(row.Reference),
	}, nil
}

func (p *CSVParser) parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, errors.New("missing date")
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, p.location); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}
