package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// ErrStaleWatermark is returned when a memory advance lost a race with
// another fold of the same user.
var ErrStaleWatermark = errors.New("memory: watermark moved")

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Label is the role as rendered in prompts.
func (r Role) Label() string { return strings.ToUpper(string(r)) }

// Turn is one immutable chat message. IDs increase monotonically per store
// and drive the memory watermark.
type Turn struct {
	ID          int64      `json:"id"`
	UserID      string     `json:"user_id"`
	Role        Role       `json:"role"`
	Content     string     `json:"content"`
	PIIRedacted bool       `json:"pii_redacted"`
	CreatedAt   time.Time  `json:"created_at"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`
}

// Conversation is the long-term digest for one user.
type Conversation struct {
	UserID      string       `json:"user_id"`
	Summary     string       `json:"summary"`
	PinnedFacts *PinnedFacts `json:"pinned_facts,omitempty"`
	Watermark   int64        `json:"watermark"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// PinnedFacts are durable user attributes kept outside the lossy summary.
// Unknown keys are carried through untouched.
type PinnedFacts struct {
	PreferredCurrency string
	Timezone          string
	PrimaryWallet     string
	Goals             []string
	Extra             map[string]json.RawMessage
}

var pinnedFactKeys = []string{"preferredCurrency", "timezone", "primaryWallet", "goals"}

func (p PinnedFacts) IsZero() bool {
	return p.PreferredCurrency == "" && p.Timezone == "" && p.PrimaryWallet == "" &&
		len(p.Goals) == 0 && len(p.Extra) == 0
}

func (p PinnedFacts) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(p.Extra)+len(pinnedFactKeys))
	for k, v := range p.Extra {
		out[k] = v
	}
	if p.PreferredCurrency != "" {
		out["preferredCurrency"] = p.PreferredCurrency
	}
	if p.Timezone != "" {
		out["timezone"] = p.Timezone
	}
	if p.PrimaryWallet != "" {
		out["primaryWallet"] = p.PrimaryWallet
	}
	if len(p.Goals) > 0 {
		out["goals"] = p.Goals
	}
	return json.Marshal(out)
}

func (p *PinnedFacts) UnmarshalJSON(data []byte) error {
	*p = PinnedFacts{}
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}
	raw := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	decodeString := func(key string, dst *string) {
		if v, ok := raw[key]; ok {
			if err := json.Unmarshal(v, dst); err != nil {
				// Keep non-string values opaque rather than losing them.
				return
			}
			delete(raw, key)
		}
	}
	decodeString("preferredCurrency", &p.PreferredCurrency)
	decodeString("timezone", &p.Timezone)
	decodeString("primaryWallet", &p.PrimaryWallet)
	if v, ok := raw["goals"]; ok {
		var goals []string
		if err := json.Unmarshal(v, &goals); err == nil {
			p.Goals = goals
			delete(raw, "goals")
		}
	}
	if len(raw) > 0 {
		p.Extra = raw
	}
	return nil
}

// Store persists the chat transcript and the per-user conversation digest.
type Store interface {
	// SaveTurn appends a turn and returns it with its assigned ID.
	SaveTurn(ctx context.Context, turn Turn) (Turn, error)
	// TurnsAfter returns every turn with ID > afterID in ascending order,
	// including soft-deleted ones.
	TurnsAfter(ctx context.Context, userID string, afterID int64) ([]Turn, error)
	// RecentVisible returns the latest non-deleted turns in chronological order.
	RecentVisible(ctx context.Context, userID string, limit int) ([]Turn, error)
	// SoftDeleteAll hides every visible turn of the user.
	SoftDeleteAll(ctx context.Context, userID string) error

	GetConversation(ctx context.Context, userID string) (Conversation, bool, error)
	// CreateConversation inserts conv unless one exists and returns the stored row.
	CreateConversation(ctx context.Context, conv Conversation) (Conversation, error)
	// AdvanceMemory replaces summary and facts and moves the watermark forward,
	// provided the stored watermark still equals expected.
	AdvanceMemory(ctx context.Context, next Conversation, expected int64) error
	// UsersWithPendingTurns lists users with at least minPending turns past their watermark.
	UsersWithPendingTurns(ctx context.Context, minPending int) ([]string, error)

	Close() error
}
