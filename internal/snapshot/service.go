package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

const narrativeTopCategories = 5

// Service is the context store used by prompt-building components.
type Service struct {
	store  Store
	logger zerolog.Logger
	now    func() time.Time
}

func NewService(store Store, logger zerolog.Logger) *Service {
	return &Service{
		store:  store,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Save replaces the user's snapshot wholesale and stamps the sync time.
func (s *Service) Save(ctx context.Context, userID string, snap Snapshot) error {
	snap.UserID = userID
	snap.normalize()
	now := s.now()
	snap.LastSyncedAt = &now
	snap.UpdatedAt = &now
	if err := s.store.Save(ctx, snap); err != nil {
		return err
	}
	s.logger.Debug().
		Str("user_id", userID).
		Int("transactions", len(snap.Transactions)).
		Int("monthly_totals", len(snap.MonthlyTotals)).
		Msg("snapshot synced")
	return nil
}

// Get returns the stored snapshot or an empty one when nothing was synced.
func (s *Service) Get(ctx context.Context, userID string) (Snapshot, error) {
	snap, found, err := s.store.Load(ctx, userID)
	if err != nil {
		return Snapshot{}, err
	}
	if !found {
		return Empty(userID), nil
	}
	return snap, nil
}

// MergeAnalyticsCache shallow-merges partial into the cache. It is a no-op
// when the user has no snapshot yet.
func (s *Service) MergeAnalyticsCache(ctx context.Context, userID string, partial map[string]json.RawMessage) error {
	if len(partial) == 0 {
		return nil
	}
	now := s.now()
	found, err := s.store.Update(ctx, userID, func(snap *Snapshot) {
		snap.AnalyticsCache.Merge(partial, now)
		snap.UpdatedAt = &now
	})
	if err != nil {
		return fmt.Errorf("merge analytics cache: %w", err)
	}
	if !found {
		s.logger.Debug().Str("user_id", userID).Msg("analytics cache merge skipped: no snapshot")
	}
	return nil
}

// RenderNarrative renders the snapshot as a deterministic prompt block.
func (s *Service) RenderNarrative(ctx context.Context, userID string) (string, error) {
	snap, err := s.Get(ctx, userID)
	if err != nil {
		return "", err
	}
	return Narrative(snap), nil
}

// Narrative renders balance, income and expense averages, savings rate,
// wallets, top categories and the analytics cache, in that order.
func Narrative(snap Snapshot) string {
	var b strings.Builder
	b.WriteString("Financial context:\n")
	fmt.Fprintf(&b, "- Total balance: %s\n", FormatAmount(snap.TotalBalance))
	fmt.Fprintf(&b, "- Average monthly income: %s\n", FormatAmount(snap.MonthlyIncomeAvg))
	fmt.Fprintf(&b, "- Average monthly expense: %s\n", FormatAmount(snap.MonthlyExpenseAvg))
	fmt.Fprintf(&b, "- Savings rate: %.1f%%\n", snap.SavingsRate*100)

	if len(snap.Wallets) > 0 {
		b.WriteString("Wallets:\n")
		for _, w := range snap.Wallets {
			fmt.Fprintf(&b, "- %s: %s %s\n", w.Name, FormatAmount(w.Balance), w.Currency)
		}
	}

	if top := TopCategories(snap.CategorySpending, narrativeTopCategories); len(top) > 0 {
		b.WriteString("Top spending categories:\n")
		for _, c := range top {
			fmt.Fprintf(&b, "- %s: %s\n", c.Category, FormatAmount(c.Amount))
		}
	}

	if cache := canonicalCache(snap.AnalyticsCache); cache != "" {
		b.WriteString("Analytics cache (JSON): ")
		b.WriteString(cache)
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

// TopCategories returns up to limit categories by amount descending; ties
// keep first-seen order.
func TopCategories(totals CategoryTotals, limit int) []CategoryAmount {
	out := make([]CategoryAmount, len(totals))
	copy(out, totals)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Amount > out[j].Amount })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// canonicalCache re-encodes every entry so nested keys are sorted as well.
func canonicalCache(cache AnalyticsCache) string {
	if len(cache.Entries) == 0 {
		return ""
	}
	normalized := make(map[string]any, len(cache.Entries))
	for k, raw := range cache.Entries {
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			continue
		}
		normalized[k] = v
	}
	if len(normalized) == 0 {
		return ""
	}
	b, err := json.Marshal(normalized)
	if err != nil {
		return ""
	}
	return string(b)
}

var amountPrinter = message.NewPrinter(language.English)

// FormatAmount renders an amount with thousands separators and no decimals.
func FormatAmount(v float64) string {
	return amountPrinter.Sprint(number.Decimal(v, number.MaxFractionDigits(0)))
}
