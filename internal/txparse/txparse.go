// Package txparse extracts a structured transaction from a free-text note.
package txparse

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/antoniostano/finchat/internal/llm"
)

const dateLayout = "2006-01-02"

// Transaction holds the extracted fields; absent or blank values are nil.
type Transaction struct {
	Amount       *float64 `json:"amount"`
	CurrencyCode *string  `json:"currencyCode"`
	CategoryName *string  `json:"categoryName"`
	Description  *string  `json:"description"`
	Date         *string  `json:"date"`
	WalletName   *string  `json:"walletName"`
}

type Parser struct {
	client llm.Client
	logger zerolog.Logger
	now    func() time.Time
}

func NewParser(client llm.Client, logger zerolog.Logger) *Parser {
	return &Parser{client: client, logger: logger, now: time.Now}
}

// Parse asks the model to extract a transaction from text. Transport failures
// and unparsable output are returned as *llm.Error.
func (p *Parser) Parse(ctx context.Context, text, locale string) (Transaction, error) {
	raw, err := llm.GenerateText(ctx, p.client, buildPrompt(text, locale, p.now().UTC()))
	if err != nil {
		return Transaction{}, err
	}
	tx, err := Decode(raw)
	if err != nil {
		p.logger.Warn().Err(err).Msg("transaction parse failed")
		return Transaction{}, err
	}
	return tx, nil
}

// Decode reads a model reply. Only JSON numbers count as an amount and only
// YYYY-MM-DD strings as a date.
func Decode(raw string) (Transaction, error) {
	clean := llm.CleanJSON(raw)
	if clean == "" {
		return Transaction{}, llm.ParseError("txparse", llm.ErrNoText)
	}
	var doc map[string]any
	if err := json.Unmarshal([]byte(clean), &doc); err != nil {
		return Transaction{}, llm.ParseError("txparse", err)
	}

	tx := Transaction{
		CurrencyCode: text(doc["currencyCode"]),
		CategoryName: text(doc["categoryName"]),
		Description:  text(doc["description"]),
		WalletName:   text(doc["walletName"]),
	}
	if n, ok := doc["amount"].(float64); ok {
		tx.Amount = &n
	}
	if d := text(doc["date"]); d != nil {
		if _, err := time.Parse(dateLayout, *d); err == nil {
			tx.Date = d
		}
	}
	return tx, nil
}

func text(v any) *string {
	var s string
	switch t := v.(type) {
	case string:
		s = t
	case float64:
		s = strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		s = strconv.FormatBool(t)
	default:
		return nil
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func buildPrompt(note, locale string, now time.Time) string {
	var b strings.Builder
	b.WriteString("You are an expense-tracking assistant. Extract one transaction from the user's sentence. ")
	b.WriteString(`Schema: {"amount": number, "currencyCode": string, "categoryName": string, "description": string, "date": "YYYY-MM-DD", "walletName": string}. `)
	b.WriteString("Use null or an empty string for missing fields but always return valid JSON. ")
	fmt.Fprintf(&b, "Today (UTC) is %s. ", now.Format(dateLayout))
	if l := strings.TrimSpace(locale); l != "" {
		fmt.Fprintf(&b, "Locale: %s. ", l)
	}
	b.WriteString(llm.JSONOnlyInstruction)
	b.WriteString("\nUser sentence: ")
	b.WriteString(note)
	return b.String()
}
