package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"

	"github.com/aclindsa/ofxgo"
	"github.com/shopspring/decimal"

	"github.com/Veraticus/finhelper/internal/model"
)

var (
	severityPattern = regexp.MustCompile(`(?i)<SEVERITY>(Info|Warn|Error)</SEVERITY>`)
	openTagPattern  = regexp.MustCompile(`(?m)^(\s*<[A-Z][A-Z0-9._]*[A-Z0-9])$`)
)

var merchantPrefixes = []string{
	"POS PURCHASE ",
	"PURCHASE AUTHORIZED ON ",
	"DEBIT CARD PURCHASE ",
	"ACH DEBIT ",
	"CHECK CARD ",
	"VISA PURCHASE ",
	"MC PURCHASE ",
	"DEBIT PURCHASE ",
}

// OFXParser reads OFX and QFX bank or credit card statements.
type OFXParser struct{}

// NewOFXParser creates a new OFX parser.
func NewOFXParser() *OFXParser {
	return &OFXParser{}
}

// preprocess fixes formatting issues some banks ship in their exports.
func (p *OFXParser) preprocess(content string) string {
	content = strings.TrimLeft(content, " \t\r\n")
	content = severityPattern.ReplaceAllStringFunc(content, strings.ToUpper)
	// SGML tags missing their closing bracket.
	return openTagPattern.ReplaceAllString(content, "$1>")
}

func (p *OFXParser) parseResponse(r io.Reader) (*ofxgo.Response, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read OFX file: %w", err)
	}
	if strings.TrimSpace(string(content)) == "" {
		return nil, errors.New("failed to parse OFX file: empty input")
	}

	resp, err := ofxgo.ParseResponse(strings.NewReader(p.preprocess(string(content))))
	if err != nil {
		return nil, fmt.Errorf("failed to parse OFX file: %w", err)
	}
	return resp, nil
}

// Parse implements Parser.
func (p *OFXParser) Parse(_ context.Context, r io.Reader) (Batch, error) {
	resp, err := p.parseResponse(r)
	if err != nil {
		return Batch{}, err
	}

	var batch Batch
	var bankStmts, ccStmts int
	add := func(list *ofxgo.TransactionList) {
		if list == nil {
			return
		}
		for i, tx := range list.Transactions {
			rec, err := p.convert(tx)
			if err != nil {
				batch.Skipped = append(batch.Skipped, RowError{Line: i + 1, Err: err})
				continue
			}
			batch.Records = append(batch.Records, rec)
		}
	}

	for _, msg := range resp.Bank {
		if stmt, ok := msg.(*ofxgo.StatementResponse); ok {
			bankStmts++
			add(stmt.BankTranList)
		}
	}
	for _, msg := range resp.CreditCard {
		if stmt, ok := msg.(*ofxgo.CCStatementResponse); ok {
			ccStmts++
			add(stmt.BankTranList)
		}
	}

	slog.Info("parsed OFX file",
		"records", len(batch.Records),
		"skipped", len(batch.Skipped),
		"bank_statements", bankStmts,
		"cc_statements", ccStmts)

	return batch, nil
}

// convert maps one statement line. OFX signs debits negative; the sign picks the
// transaction type and the stored amount is its absolute value.
func (p *OFXParser) convert(tx ofxgo.Transaction) (Record, error) {
	amount, err := decimal.NewFromString(tx.TrnAmt.FloatString(2))
	if err != nil {
		return Record{}, fmt.Errorf("invalid amount for %s: %w", tx.FiTID, err)
	}
	if amount.IsZero() {
		return Record{}, fmt.Errorf("zero amount for %s", tx.FiTID)
	}

	txType := model.TransactionTypeIncome
	switch {
	case tx.TrnType == ofxgo.TrnTypeXfer:
		txType = model.TransactionTypeTransfer
	case amount.IsNegative():
		txType = model.TransactionTypeExpense
	}

	description := strings.TrimSpace(string(tx.Memo))
	if description == "" {
		description = strings.TrimSpace(string(tx.Name))
	}
	if tx.CheckNum != "" {
		description = strings.TrimSpace(description + " check " + string(tx.CheckNum))
	}

	return Record{
		Timestamp:   tx.DtPosted.UTC(),
		Amount:      amount.Abs(),
		Type:        txType,
		Merchant:    extractMerchantName(tx),
		Description: description,
		Reference:   string(tx.FiTID),
	}, nil
}

// extractMerchantName prefers PAYEE, then NAME, falling back to MEMO when NAME is generic.
func extractMerchantName(tx ofxgo.Transaction) string {
	if tx.Payee != nil && tx.Payee.Name != "" {
		return string(tx.Payee.Name)
	}

	name := string(tx.Name)
	if tx.Memo != "" && isGenericDescription(name) {
		name = string(tx.Memo)
	}
	name = strings.TrimSpace(name)

	upper := strings.ToUpper(name)
	for _, prefix := range merchantPrefixes {
		if strings.HasPrefix(upper, prefix) {
			name = name[len(prefix):]
			break
		}
	}

	// "MM/DD " date stamps
	if len(name) > 5 && name[2] == '/' && name[5] == ' ' {
		name = strings.TrimSpace(name[6:])
	}
	return name
}

func isGenericDescription(name string) bool {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "DEBIT", "CREDIT", "PURCHASE", "PAYMENT", "POS TRANSACTION", "CARD PURCHASE":
		return true
	}
	return false
}

// Accounts lists the distinct account numbers in a statement file.
func (p *OFXParser) Accounts(r io.Reader) ([]string, error) {
	resp, err := p.parseResponse(r)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var accounts []string
	add := func(id ofxgo.String) {
		if id == "" {
			return
		}
		if _, ok := seen[string(id)]; ok {
			return
		}
		seen[string(id)] = struct{}{}
		accounts = append(accounts, string(id))
	}

	for _, msg := range resp.Bank {
		if stmt, ok := msg.(*ofxgo.StatementResponse); ok {
			add(stmt.BankAcctFrom.AcctID)
		}
	}
	for _, msg := range resp.CreditCard {
		if stmt, ok := msg.(*ofxgo.CCStatementResponse); ok {
			add(stmt.CCAcctFrom.AcctID)
		}
	}
	return accounts, nil
}
