package sheets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/Veraticus/finhelper/internal/common"
)

// Writer appends transactions and rewrites the budget tab of one spreadsheet.
type Writer struct {
	service  *sheets.Service
	logger   *slog.Logger
	location *time.Location
	sheetIDs map[string]int64
	config   Config

	mu            sync.Mutex
	spreadsheetID string
}

// NewWriter creates a new Google Sheets writer. The spreadsheet is opened or created
// lazily on the first write.
func NewWriter(ctx context.Context, config Config, logger *slog.Logger) (*Writer, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	service, err := createSheetsService(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}

	loc, err := time.LoadLocation(config.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("failed to load time zone: %w", err)
	}

	return &Writer{
		config:   config,
		service:  service,
		logger:   logger,
		location: loc,
		sheetIDs: make(map[string]int64),
	}, nil
}

// createSheetsService creates a Google Sheets API service from either a service
// account key or an OAuth2 refresh token.
func createSheetsService(ctx context.Context, config Config) (*sheets.Service, error) {
	var tokenSource oauth2.TokenSource

	if config.ServiceAccountPath != "" {
		jsonKey, err := os.ReadFile(config.ServiceAccountPath)
		if err != nil {
			return nil, fmt.Errorf("unable to read service account key file: %w", err)
		}

		jwtConfig, err := google.JWTConfigFromJSON(jsonKey, sheets.SpreadsheetsScope)
		if err != nil {
			return nil, fmt.Errorf("unable to parse service account key: %w", err)
		}
		tokenSource = jwtConfig.TokenSource(ctx)
	} else {
		token := &oauth2.Token{
			RefreshToken: config.RefreshToken,
			TokenType:    "Bearer",
		}
		tokenSource = oauthConfig(config.ClientID, config.ClientSecret, "").TokenSource(ctx, token)
	}

	srv, err := sheets.NewService(ctx, option.WithHTTPClient(oauth2.NewClient(ctx, tokenSource)))
	if err != nil {
		return nil, fmt.Errorf("unable to create sheets service: %w", err)
	}
	return srv, nil
}

// AppendTransaction appends one row to the transactions tab.
func (w *Writer) AppendTransaction(ctx context.Context, row TransactionRow) error {
	spreadsheetID, err := w.ensureSpreadsheet(ctx)
	if err != nil {
		return err
	}

	rng := a1Range(w.config.TransactionsSheet, "A:J")
	values := &sheets.ValueRange{Values: [][]any{row.Values(w.location)}}

	err = common.WithRetry(ctx, func() error {
		_, err := w.service.Spreadsheets.Values.Append(spreadsheetID, rng, values).
			ValueInputOption("USER_ENTERED").
			InsertDataOption("INSERT_ROWS").
			Context(ctx).
			Do()
		return classifyAPIError(err)
	}, w.retryOptions())
	if err != nil {
		return fmt.Errorf("failed to append transaction %d: %w", row.ID, err)
	}

	w.logger.Debug("appended transaction row", "transaction_id", row.ID, "sheet", w.config.TransactionsSheet)
	return nil
}

// ReplaceBudgets rewrites the budgets tab with the header and rows.
func (w *Writer) ReplaceBudgets(ctx context.Context, rows []BudgetRow) error {
	spreadsheetID, err := w.ensureSpreadsheet(ctx)
	if err != nil {
		return err
	}

	values := make([][]any, 0, len(rows)+1)
	values = append(values, BudgetHeaders)
	for _, r := range rows {
		values = append(values, r.Values())
	}

	err = common.WithRetry(ctx, func() error {
		_, err := w.service.Spreadsheets.Values.Clear(spreadsheetID,
			a1Range(w.config.BudgetsSheet, "A:H"), &sheets.ClearValuesRequest{}).Context(ctx).Do()
		if err != nil {
			return classifyAPIError(err)
		}
		_, err = w.service.Spreadsheets.Values.Update(spreadsheetID,
			a1Range(w.config.BudgetsSheet, "A1"), &sheets.ValueRange{Values: values}).
			ValueInputOption("USER_ENTERED").
			Context(ctx).
			Do()
		return classifyAPIError(err)
	}, w.retryOptions())
	if err != nil {
		return fmt.Errorf("failed to replace budgets: %w", err)
	}

	w.logger.Info("replaced budget sheet", "rows", len(rows))
	return nil
}

// ensureSpreadsheet resolves the spreadsheet and its tabs once per writer.
func (w *Writer) ensureSpreadsheet(ctx context.Context) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.spreadsheetID != "" {
		return w.spreadsheetID, nil
	}

	id, err := w.getOrCreateSpreadsheet(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get spreadsheet: %w", err)
	}
	if err := w.ensureTabs(ctx, id); err != nil {
		return "", fmt.Errorf("failed to prepare sheets: %w", err)
	}

	w.spreadsheetID = id
	return id, nil
}

// getOrCreateSpreadsheet gets an existing spreadsheet or creates a new one.
func (w *Writer) getOrCreateSpreadsheet(ctx context.Context) (string, error) {
	if w.config.SpreadsheetID != "" {
		return w.config.SpreadsheetID, nil
	}

	spreadsheet := &sheets.Spreadsheet{
		Properties: &sheets.SpreadsheetProperties{
			Title:    w.config.SpreadsheetName,
			TimeZone: w.config.TimeZone,
		},
	}

	created, err := w.service.Spreadsheets.Create(spreadsheet).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("unable to create spreadsheet: %w", err)
	}

	w.logger.Info("created new spreadsheet",
		"id", created.SpreadsheetId,
		"url", created.SpreadsheetUrl)
	return created.SpreadsheetId, nil
}

// ensureTabs adds any missing tab and writes its header row.
func (w *Writer) ensureTabs(ctx context.Context, spreadsheetID string) error {
	existing, err := w.service.Spreadsheets.Get(spreadsheetID).Fields("sheets.properties").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("unable to access spreadsheet %s: %w", spreadsheetID, err)
	}
	for _, s := range existing.Sheets {
		w.sheetIDs[s.Properties.Title] = s.Properties.SheetId
	}

	headers := map[string][]any{
		w.config.TransactionsSheet: TransactionHeaders,
		w.config.BudgetsSheet:      BudgetHeaders,
	}

	var requests []*sheets.Request
	var added []string
	for _, title := range []string{w.config.TransactionsSheet, w.config.BudgetsSheet} {
		if _, ok := w.sheetIDs[title]; ok {
			continue
		}
		requests = append(requests, &sheets.Request{
			AddSheet: &sheets.AddSheetRequest{Properties: &sheets.SheetProperties{Title: title}},
		})
		added = append(added, title)
	}
	if len(requests) == 0 {
		return nil
	}

	resp, err := w.service.Spreadsheets.BatchUpdate(spreadsheetID,
		&sheets.BatchUpdateSpreadsheetRequest{Requests: requests}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("unable to add sheets: %w", err)
	}
	for _, reply := range resp.Replies {
		if reply.AddSheet != nil {
			p := reply.AddSheet.Properties
			w.sheetIDs[p.Title] = p.SheetId
		}
	}

	for _, title := range added {
		_, err := w.service.Spreadsheets.Values.Update(spreadsheetID, a1Range(title, "A1"),
			&sheets.ValueRange{Values: [][]any{headers[title]}}).
			ValueInputOption("RAW").
			Context(ctx).
			Do()
		if err != nil {
			return fmt.Errorf("unable to write %s header: %w", title, err)
		}
		w.logger.Info("added sheet", "title", title)
	}

	if w.config.EnableFormatting {
		if err := w.applyHeaderFormatting(ctx, spreadsheetID, added); err != nil {
			w.logger.Warn("failed to apply formatting", "error", err)
		}
	}
	return nil
}

// applyHeaderFormatting bolds and freezes the header row of each tab.
func (w *Writer) applyHeaderFormatting(ctx context.Context, spreadsheetID string, titles []string) error {
	var requests []*sheets.Request
	for _, title := range titles {
		sheetID := w.sheetIDs[title]
		requests = append(requests,
			&sheets.Request{
				RepeatCell: &sheets.RepeatCellRequest{
					Range: &sheets.GridRange{
						SheetId:       sheetID,
						StartRowIndex: 0,
						EndRowIndex:   1,
					},
					Cell: &sheets.CellData{
						UserEnteredFormat: &sheets.CellFormat{
							TextFormat: &sheets.TextFormat{Bold: true},
						},
					},
					Fields: "userEnteredFormat.textFormat",
				},
			},
			&sheets.Request{
				UpdateSheetProperties: &sheets.UpdateSheetPropertiesRequest{
					Properties: &sheets.SheetProperties{
						SheetId:        sheetID,
						GridProperties: &sheets.GridProperties{FrozenRowCount: 1},
					},
					Fields: "gridProperties.frozenRowCount",
				},
			},
		)
	}
	if len(requests) == 0 {
		return nil
	}

	_, err := w.service.Spreadsheets.BatchUpdate(spreadsheetID,
		&sheets.BatchUpdateSpreadsheetRequest{Requests: requests}).Context(ctx).Do()
	return err
}

// retryOptions starts from the package defaults and applies the configured attempts
// and first delay. Zero values keep the defaults.
func (w *Writer) retryOptions() common.RetryOptions {
	opts := common.DefaultRetryOptions()
	opts.Logger = w.logger
	if w.config.RetryAttempts > 0 {
		opts.MaxAttempts = w.config.RetryAttempts
	}
	if w.config.RetryDelay > 0 {
		opts.InitialDelay = w.config.RetryDelay
	}
	return opts
}

// a1Range quotes a sheet title for A1 notation.
func a1Range(title, cells string) string {
	return "'" + strings.ReplaceAll(title, "'", "''") + "'!" + cells
}

// classifyAPIError marks quota errors as rate limits and other client errors as permanent.
func classifyAPIError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return err
	}
	switch {
	case apiErr.Code == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %w", common.ErrRateLimit, err)
	case apiErr.Code >= 400 && apiErr.Code < 500:
		return common.Permanent(err)
	default:
		return err
	}
}
