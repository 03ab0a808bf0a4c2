package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/antoniostano/finchat/internal/llm"
)

const (
	DefaultCompactThreshold = 6
	DefaultTranscriptLimit  = 12
	DefaultFoldTimeout      = 60 * time.Second
)

// CompactionObserver is notified of every fold attempt.
type CompactionObserver interface {
	ObserveCompaction(result string)
}

type CompactorOptions struct {
	// Threshold is the minimum number of unfolded turns before a fold runs.
	Threshold       int
	TranscriptLimit int
	// FoldTimeout bounds one shared fold. It does not follow any caller's cancellation.
	FoldTimeout     time.Duration
	Observer        CompactionObserver
	Logger          zerolog.Logger
}

// Compactor folds new transcript turns into the per-user summary and pinned
// facts. No lock is held across the model call: the watermark advance is a
// compare-and-swap and concurrent folds of one user share a single flight.
type Compactor struct {
	store           Store
	client          llm.Client
	threshold       int
	transcriptLimit int
	foldTimeout     time.Duration
	observer        CompactionObserver
	logger          zerolog.Logger
	flights         singleflight.Group
}

func NewCompactor(store Store, client llm.Client, opts CompactorOptions) *Compactor {
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultCompactThreshold
	}
	if opts.TranscriptLimit <= 0 {
		opts.TranscriptLimit = DefaultTranscriptLimit
	}
	if opts.FoldTimeout <= 0 {
		opts.FoldTimeout = DefaultFoldTimeout
	}
	return &Compactor{
		store:           store,
		client:          client,
		threshold:       opts.Threshold,
		transcriptLimit: opts.TranscriptLimit,
		foldTimeout:     opts.FoldTimeout,
		observer:        opts.Observer,
		logger:          opts.Logger,
	}
}

func (c *Compactor) Threshold() int { return c.threshold }

// GetOrCreate returns the user's conversation, creating an empty one at watermark 0.
func (c *Compactor) GetOrCreate(ctx context.Context, userID string) (Conversation, error) {
	conv, found, err := c.store.GetConversation(ctx, userID)
	if err != nil {
		return Conversation{}, err
	}
	if found {
		return conv, nil
	}
	return c.store.CreateConversation(ctx, Conversation{UserID: userID})
}

// UpdateIfNeeded folds unfolded turns once at least Threshold of them exist.
// It reports whether a fold happened. Model and parse failures are returned
// and leave the stored memory untouched. Callers sharing a flight each wait
// on their own ctx; the fold itself runs under FoldTimeout.
func (c *Compactor) UpdateIfNeeded(ctx context.Context, userID string) (bool, error) {
	detached := context.WithoutCancel(ctx)
	ch := c.flights.DoChan(userID, func() (any, error) {
		foldCtx, cancel := context.WithTimeout(detached, c.foldTimeout)
		defer cancel()
		return c.fold(foldCtx, userID)
	})
	var res singleflight.Result
	select {
	case <-ctx.Done():
		c.observe("error")
		return false, ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		c.observe("error")
		return false, res.Err
	}
	folded := res.Val.(bool)
	if folded {
		c.observe("folded")
	} else {
		c.observe("skipped")
	}
	return folded, nil
}

func (c *Compactor) fold(ctx context.Context, userID string) (bool, error) {
	conv, err := c.GetOrCreate(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("load conversation: %w", err)
	}
	turns, err := c.store.TurnsAfter(ctx, userID, conv.Watermark)
	if err != nil {
		return false, fmt.Errorf("load pending turns: %w", err)
	}
	if len(turns) < c.threshold {
		return false, nil
	}

	prompt := buildCompactionPrompt(conv, renderTurns(turns))
	var parsed struct {
		Summary     string       `json:"summary"`
		PinnedFacts *PinnedFacts `json:"pinnedFacts"`
	}
	if err := llm.GenerateJSON(ctx, c.client, "memory.compact", prompt, &parsed); err != nil {
		return false, fmt.Errorf("compact memory: %w", err)
	}
	if parsed.PinnedFacts != nil && parsed.PinnedFacts.IsZero() {
		parsed.PinnedFacts = nil
	}

	next := Conversation{
		UserID:      userID,
		Summary:     strings.TrimSpace(parsed.Summary),
		PinnedFacts: parsed.PinnedFacts,
		Watermark:   turns[len(turns)-1].ID,
		UpdatedAt:   time.Now().UTC(),
	}
	if err := c.store.AdvanceMemory(ctx, next, conv.Watermark); err != nil {
		if errors.Is(err, ErrStaleWatermark) {
			// Another process folded these turns first.
			c.logger.Debug().Str("user_id", userID).Msg("memory fold lost race")
			return false, nil
		}
		return false, fmt.Errorf("advance memory: %w", err)
	}

	c.logger.Debug().
		Str("user_id", userID).
		Int("turns", len(turns)).
		Int64("watermark", next.Watermark).
		Msg("memory folded")
	return true, nil
}

// BuildContextHeader renders pinned facts then summary, or "" when both are empty.
func (c *Compactor) BuildContextHeader(ctx context.Context, userID string) (string, error) {
	conv, err := c.GetOrCreate(ctx, userID)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	if conv.PinnedFacts != nil && !conv.PinnedFacts.IsZero() {
		facts, err := json.Marshal(conv.PinnedFacts)
		if err == nil {
			b.WriteString("PinnedFacts (JSON): ")
			b.Write(facts)
			b.WriteByte('\n')
		}
	}
	if s := strings.TrimSpace(conv.Summary); s != "" {
		b.WriteString("Conversation summary:\n")
		b.WriteString(s)
	}
	return strings.TrimSpace(b.String()), nil
}

// BuildRecentTranscript renders the latest visible turns as role-labelled lines.
func (c *Compactor) BuildRecentTranscript(ctx context.Context, userID string, limit int) (string, error) {
	if limit <= 0 {
		limit = c.transcriptLimit
	}
	turns, err := c.store.RecentVisible(ctx, userID, limit)
	if err != nil {
		return "", err
	}
	return renderTurns(turns), nil
}

func (c *Compactor) observe(result string) {
	if c.observer != nil {
		c.observer.ObserveCompaction(result)
	}
}

func renderTurns(turns []Turn) string {
	lines := make([]string, 0, len(turns))
	for _, t := range turns {
		lines = append(lines, t.Role.Label()+": "+t.Content)
	}
	return strings.Join(lines, "\n")
}

func buildCompactionPrompt(conv Conversation, block string) string {
	facts := "null"
	if conv.PinnedFacts != nil {
		if b, err := json.Marshal(conv.PinnedFacts); err == nil {
			facts = string(b)
		}
	}
	summary := strings.TrimSpace(conv.Summary)
	if summary == "" {
		summary = "(none)"
	}

	var b strings.Builder
	b.WriteString("You maintain long-term memory for a personal finance assistant.\n")
	b.WriteString("Update the summary and pinned facts using the new messages.\n")
	b.WriteString("Rules:\n")
	b.WriteString("- summary: at most 10 short lines, durable context only, no numbers you cannot verify.\n")
	b.WriteString("- pinnedFacts: object with optional preferredCurrency, timezone, primaryWallet, goals (array of strings); keep unknown keys.\n")
	b.WriteString("- Drop small talk. Keep user preferences, goals and open questions.\n\n")
	b.WriteString("Previous summary:\n")
	b.WriteString(summary)
	b.WriteString("\n\nPrevious pinnedFacts (JSON): ")
	b.WriteString(facts)
	b.WriteString("\n\nNew messages:\n")
	b.WriteString(block)
	b.WriteString("\n\nReturn {\"summary\": string, \"pinnedFacts\": object|null}.\n")
	b.WriteString(llm.JSONOnlyInstruction)
	return b.String()
}
