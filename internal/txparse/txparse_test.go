package txparse

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antoniostano/finchat/internal/llm"
)

func TestDecodeFencedReply(t *testing.T) {
	raw := "```json\n{\"amount\": 50000, \"currencyCode\": \"VND\", \"categoryName\": \"Food\", \"description\": \"  \", \"date\": \"2024-03-05\", \"walletName\": null}\n```"

	tx, err := Decode(raw)
	require.NoError(t, err)
	require.NotNil(t, tx.Amount)
	assert.Equal(t, 50000.0, *tx.Amount)
	assert.Equal(t, "VND", *tx.CurrencyCode)
	assert.Equal(t, "Food", *tx.CategoryName)
	assert.Nil(t, tx.Description)
	assert.Equal(t, "2024-03-05", *tx.Date)
	assert.Nil(t, tx.WalletName)
}

func TestDecodeDropsInvalidValues(t *testing.T) {
	tx, err := Decode(`{"amount": "50k", "date": "05/03/2024"}`)
	require.NoError(t, err)
	assert.Nil(t, tx.Amount)
	assert.Nil(t, tx.Date)
}

func TestDecodeRejectsEmptyAndGarbage(t *testing.T) {
	for _, raw := range []string{"", "   ", "not json", "```json\n```"} {
		_, err := Decode(raw)
		require.Error(t, err, "input %q", raw)
		assert.Equal(t, llm.KindParse, llm.KindOf(err))
	}
}

func TestParseSendsNoteAndDate(t *testing.T) {
	var prompt string
	client := llm.ClientFunc(func(_ context.Context, req llm.Request) (llm.Response, error) {
		prompt = req.Parts[0].Text
		return llm.Response{Candidates: []llm.Candidate{{Parts: []llm.Part{{Text: `{"amount": 12.5}`}}}}}, nil
	})
	p := NewParser(client, zerolog.Nop())
	p.now = func() time.Time { return time.Date(2024, 3, 5, 23, 0, 0, 0, time.UTC) }

	tx, err := p.Parse(context.Background(), "lunch 12.5", "en-US")
	require.NoError(t, err)
	assert.Equal(t, 12.5, *tx.Amount)
	assert.Contains(t, prompt, "Today (UTC) is 2024-03-05")
	assert.Contains(t, prompt, "Locale: en-US")
	assert.True(t, strings.HasSuffix(prompt, "User sentence: lunch 12.5"))
}

func TestParsePropagatesTransportError(t *testing.T) {
	boom := &llm.Error{Kind: llm.KindTransport, Op: "test", Err: errors.New("down")}
	p := NewParser(llm.ClientFunc(func(context.Context, llm.Request) (llm.Response, error) {
		return llm.Response{}, boom
	}), zerolog.Nop())

	_, err := p.Parse(context.Background(), "x", "")
	assert.Equal(t, llm.KindTransport, llm.KindOf(err))
}
