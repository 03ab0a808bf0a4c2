package snapshot

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"
)

var (
	// ErrEncode is returned when a snapshot cannot be serialised for storage.
	ErrEncode = errors.New("snapshot: encode failed")
	// ErrDecode is returned when a stored snapshot cannot be read back.
	ErrDecode = errors.New("snapshot: decode failed")
)

type Direction string

const (
	Inflow  Direction = "INFLOW"
	Outflow Direction = "OUTFLOW"
)

// Snapshot is the cached financial summary for one user. It is re-derivable
// from upstream data, so readers treat a missing snapshot as empty.
type Snapshot struct {
	UserID            string         `json:"userId"`
	Wallets           []Wallet       `json:"wallets"`
	Transactions      []Transaction  `json:"recentTransactions"`
	CategorySpending  CategoryTotals `json:"categorySpending"`
	MonthlyTotals     []MonthlyTotal `json:"monthlyTotals"`
	AnalyticsCache    AnalyticsCache `json:"analyticsCache"`
	TotalBalance      float64        `json:"totalBalance"`
	MonthlyIncomeAvg  float64        `json:"monthlyIncomeAvg"`
	MonthlyExpenseAvg float64        `json:"monthlyExpenseAvg"`
	SavingsRate       float64        `json:"savingsRate"`
	LastSyncedAt      *time.Time     `json:"lastSyncedAt,omitempty"`
	UpdatedAt         *time.Time     `json:"updatedAt,omitempty"`
}

type Wallet struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Balance  float64 `json:"balance"`
	Currency string  `json:"currency"`
}

type Transaction struct {
	ID          string    `json:"id"`
	Amount      float64   `json:"amount"`
	Direction   Direction `json:"direction"`
	Date        string    `json:"date"`
	Description string    `json:"description,omitempty"`
	Category    string    `json:"category,omitempty"`
	WalletID    string    `json:"walletId,omitempty"`
}

type MonthlyTotal struct {
	Month   string  `json:"month"`
	Income  float64 `json:"income"`
	Expense float64 `json:"expense"`
}

// Empty returns a well-formed snapshot with empty collections and zero scalars.
func Empty(userID string) Snapshot {
	s := Snapshot{UserID: userID}
	s.normalize()
	return s
}

func (s *Snapshot) normalize() {
	if s.Wallets == nil {
		s.Wallets = []Wallet{}
	}
	if s.Transactions == nil {
		s.Transactions = []Transaction{}
	}
	if s.CategorySpending == nil {
		s.CategorySpending = CategoryTotals{}
	}
	if s.MonthlyTotals == nil {
		s.MonthlyTotals = []MonthlyTotal{}
	}
	if s.AnalyticsCache.Entries == nil {
		s.AnalyticsCache.Entries = map[string]json.RawMessage{}
	}
}

// CategoryAmount is one entry of the category aggregate.
type CategoryAmount struct {
	Category string  `json:"category"`
	Amount   float64 `json:"amount"`
}

// CategoryTotals keeps the category aggregate in first-seen order. It is
// encoded as a JSON object and decoding preserves the document's key order.
type CategoryTotals []CategoryAmount

func (c CategoryTotals) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range c {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(e.Category)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(e.Amount)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (c *CategoryTotals) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*c = CategoryTotals{}
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("categorySpending: expected object")
	}
	out := CategoryTotals{}
	index := map[string]int{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := keyTok.(string)
		var amount float64
		if err := dec.Decode(&amount); err != nil {
			return fmt.Errorf("categorySpending[%q]: %w", key, err)
		}
		if i, seen := index[key]; seen {
			out[i].Amount = amount
			continue
		}
		index[key] = len(out)
		out = append(out, CategoryAmount{Category: key, Amount: amount})
	}
	*c = out
	return nil
}

// AnalyticsCache holds the latest analytics results keyed by result type.
// Entries are carried opaquely so unknown keys survive a round trip.
type AnalyticsCache struct {
	LastUpdated *time.Time
	Entries     map[string]json.RawMessage
}

const lastUpdatedKey = "lastUpdated"

func (a AnalyticsCache) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(a.Entries)+1)
	for k, v := range a.Entries {
		out[k] = v
	}
	if a.LastUpdated != nil {
		ts, err := json.Marshal(a.LastUpdated.UTC().Format(time.RFC3339))
		if err != nil {
			return nil, err
		}
		out[lastUpdatedKey] = ts
	}
	return json.Marshal(out)
}

func (a *AnalyticsCache) UnmarshalJSON(data []byte) error {
	raw := map[string]json.RawMessage{}
	if !bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
	}
	a.LastUpdated = nil
	if v, ok := raw[lastUpdatedKey]; ok {
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			if ts, err := time.Parse(time.RFC3339, s); err == nil {
				a.LastUpdated = &ts
			}
		}
		delete(raw, lastUpdatedKey)
	}
	a.Entries = raw
	return nil
}

// Merge shallow-merges partial into the cache and stamps LastUpdated.
func (a *AnalyticsCache) Merge(partial map[string]json.RawMessage, now time.Time) {
	if a.Entries == nil {
		a.Entries = make(map[string]json.RawMessage, len(partial))
	}
	for k, v := range partial {
		if k == lastUpdatedKey {
			continue
		}
		a.Entries[k] = v
	}
	ts := now.UTC()
	a.LastUpdated = &ts
}

// Keys returns the cached entry names sorted.
func (a AnalyticsCache) Keys() []string {
	keys := make([]string, 0, len(a.Entries))
	for k := range a.Entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// storedSnapshot is the persisted form. The category aggregate is written as
// an ordered array because jsonb re-sorts object keys.
type storedSnapshot struct {
	Snapshot
	CategorySpending json.RawMessage `json:"categorySpending"`
}

func encode(s Snapshot) ([]byte, error) {
	entries := []CategoryAmount(s.CategorySpending)
	if entries == nil {
		entries = []CategoryAmount{}
	}
	cats, err := json.Marshal(entries)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncode, err)
	}
	b, err := json.Marshal(storedSnapshot{Snapshot: s, CategorySpending: cats})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncode, err)
	}
	return b, nil
}

// decode reads the array form and, for rows written before it, the object form.
func decode(b []byte) (Snapshot, error) {
	var st storedSnapshot
	if err := json.Unmarshal(b, &st); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	s := st.Snapshot
	cats := bytes.TrimSpace(st.CategorySpending)
	switch {
	case len(cats) == 0:
	case cats[0] == '[':
		var entries []CategoryAmount
		if err := json.Unmarshal(cats, &entries); err != nil {
			return Snapshot{}, fmt.Errorf("%w: categorySpending: %v", ErrDecode, err)
		}
		s.CategorySpending = CategoryTotals(entries)
	default:
		if err := json.Unmarshal(cats, &s.CategorySpending); err != nil {
			return Snapshot{}, fmt.Errorf("%w: categorySpending: %v", ErrDecode, err)
		}
	}
	s.normalize()
	return s, nil
}
