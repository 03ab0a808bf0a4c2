package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antoniostano/finchat/internal/llm"
)

type scriptedLLM struct {
	mu      sync.Mutex
	calls   int
	prompts []string
	reply   string
	err     error
}

func (s *scriptedLLM) Generate(_ context.Context, req llm.Request) (llm.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if len(req.Parts) > 0 {
		s.prompts = append(s.prompts, req.Parts[0].Text)
	}
	if s.err != nil {
		return llm.Response{}, s.err
	}
	return llm.Response{Candidates: []llm.Candidate{{Parts: []llm.Part{{Text: s.reply}}}}}, nil
}

func seedTurns(t *testing.T, store Store, userID string, n int) []Turn {
	t.Helper()
	out := make([]Turn, 0, n)
	for i := 0; i < n; i++ {
		role := RoleUser
		if i%2 == 1 {
			role = RoleAssistant
		}
		turn, err := store.SaveTurn(context.Background(), Turn{UserID: userID, Role: role, Content: fmt.Sprintf("msg %d", i)})
		require.NoError(t, err)
		out = append(out, turn)
	}
	return out
}

const foldReply = "```json\n{\"summary\":\"User saves for a car.\",\"pinnedFacts\":{\"preferredCurrency\":\"VND\",\"goals\":[\"car\"],\"pet\":\"cat\"}}\n```"

func TestUpdateIfNeededBelowThresholdIsNoop(t *testing.T) {
	store := NewInMemoryStore()
	model := &scriptedLLM{reply: foldReply}
	c := NewCompactor(store, model, CompactorOptions{Logger: zerolog.Nop()})
	seedTurns(t, store, "u-1", 5)

	folded, err := c.UpdateIfNeeded(context.Background(), "u-1")
	require.NoError(t, err)
	assert.False(t, folded)
	assert.Equal(t, 0, model.calls)

	conv, err := c.GetOrCreate(context.Background(), "u-1")
	require.NoError(t, err)
	assert.EqualValues(t, 0, conv.Watermark)
}

func TestUpdateIfNeededFoldsExactlySix(t *testing.T) {
	store := NewInMemoryStore()
	model := &scriptedLLM{reply: foldReply}
	c := NewCompactor(store, model, CompactorOptions{Logger: zerolog.Nop()})
	turns := seedTurns(t, store, "u-1", 6)

	folded, err := c.UpdateIfNeeded(context.Background(), "u-1")
	require.NoError(t, err)
	assert.True(t, folded)
	assert.Equal(t, 1, model.calls)

	conv, err := c.GetOrCreate(context.Background(), "u-1")
	require.NoError(t, err)
	assert.Equal(t, turns[5].ID, conv.Watermark)
	assert.Equal(t, "User saves for a car.", conv.Summary)
	require.NotNil(t, conv.PinnedFacts)
	assert.Equal(t, "VND", conv.PinnedFacts.PreferredCurrency)
	assert.Equal(t, []string{"car"}, conv.PinnedFacts.Goals)
	assert.Contains(t, conv.PinnedFacts.Extra, "pet")

	assert.Contains(t, model.prompts[0], "USER: msg 0\nASSISTANT: msg 1")

	// Nothing new: no second call.
	folded, err = c.UpdateIfNeeded(context.Background(), "u-1")
	require.NoError(t, err)
	assert.False(t, folded)
	assert.Equal(t, 1, model.calls)
}

func TestUpdateIfNeededFailureLeavesMemoryUntouched(t *testing.T) {
	store := NewInMemoryStore()
	c := NewCompactor(store, &scriptedLLM{err: errors.New("upstream down")}, CompactorOptions{Logger: zerolog.Nop()})
	seedTurns(t, store, "u-1", 7)

	_, err := c.UpdateIfNeeded(context.Background(), "u-1")
	require.Error(t, err)

	conv, err := c.GetOrCreate(context.Background(), "u-1")
	require.NoError(t, err)
	assert.EqualValues(t, 0, conv.Watermark)
	assert.Empty(t, conv.Summary)
}

func TestUpdateIfNeededParseFailure(t *testing.T) {
	store := NewInMemoryStore()
	c := NewCompactor(store, &scriptedLLM{reply: "sorry, no json"}, CompactorOptions{Logger: zerolog.Nop()})
	seedTurns(t, store, "u-1", 6)

	_, err := c.UpdateIfNeeded(context.Background(), "u-1")
	require.Error(t, err)
	assert.Equal(t, llm.KindParse, llm.KindOf(err))
}

func TestFoldReadsSoftDeletedTurns(t *testing.T) {
	store := NewInMemoryStore()
	model := &scriptedLLM{reply: foldReply}
	c := NewCompactor(store, model, CompactorOptions{Logger: zerolog.Nop()})
	turns := seedTurns(t, store, "u-1", 6)
	require.NoError(t, store.SoftDeleteAll(context.Background(), "u-1"))

	folded, err := c.UpdateIfNeeded(context.Background(), "u-1")
	require.NoError(t, err)
	assert.True(t, folded)

	conv, _ := c.GetOrCreate(context.Background(), "u-1")
	assert.Equal(t, turns[5].ID, conv.Watermark)
}

type blockingLLM struct {
	calls   atomic.Int32
	release chan struct{}
}

func (b *blockingLLM) Generate(ctx context.Context, _ llm.Request) (llm.Response, error) {
	b.calls.Add(1)
	select {
	case <-b.release:
	case <-ctx.Done():
		return llm.Response{}, ctx.Err()
	}
	return llm.Response{Candidates: []llm.Candidate{{Parts: []llm.Part{{Text: `{"summary":"s"}`}}}}}, nil
}

func TestConcurrentFoldsShareOneCall(t *testing.T) {
	store := NewInMemoryStore()
	model := &blockingLLM{release: make(chan struct{})}
	c := NewCompactor(store, model, CompactorOptions{Logger: zerolog.Nop()})
	seedTurns(t, store, "u-1", 6)

	var wg sync.WaitGroup
	started := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-started
			_, err := c.UpdateIfNeeded(context.Background(), "u-1")
			assert.NoError(t, err)
		}()
	}
	close(started)
	// Let the flight begin before releasing it.
	require.Eventually(t, func() bool { return model.calls.Load() >= 1 }, time.Second, time.Millisecond)
	close(model.release)
	wg.Wait()

	// Late arrivals after the flight ends see no pending turns, so the model
	// is called exactly once either way.
	assert.EqualValues(t, 1, model.calls.Load())
}

func TestCancelledCallerDoesNotFailSharedFold(t *testing.T) {
	store := NewInMemoryStore()
	model := &blockingLLM{release: make(chan struct{})}
	c := NewCompactor(store, model, CompactorOptions{Logger: zerolog.Nop()})
	seedTurns(t, store, "u-1", 6)

	leaderCtx, cancelLeader := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := c.UpdateIfNeeded(leaderCtx, "u-1")
		leaderErr <- err
	}()
	require.Eventually(t, func() bool { return model.calls.Load() == 1 }, time.Second, time.Millisecond)

	follower := make(chan error, 1)
	go func() {
		_, err := c.UpdateIfNeeded(context.Background(), "u-1")
		follower <- err
	}()
	// Give the follower time to join the running flight.
	time.Sleep(20 * time.Millisecond)

	cancelLeader()
	select {
	case err := <-leaderErr:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled caller did not return")
	}

	close(model.release)
	select {
	case err := <-follower:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("shared fold did not finish")
	}
	assert.EqualValues(t, 1, model.calls.Load())

	conv, err := c.GetOrCreate(context.Background(), "u-1")
	require.NoError(t, err)
	assert.Equal(t, "s", conv.Summary)
}

func TestBuildContextHeader(t *testing.T) {
	store := NewInMemoryStore()
	c := NewCompactor(store, &scriptedLLM{}, CompactorOptions{Logger: zerolog.Nop()})
	ctx := context.Background()

	header, err := c.BuildContextHeader(ctx, "u-1")
	require.NoError(t, err)
	assert.Empty(t, header)

	require.NoError(t, store.AdvanceMemory(ctx, Conversation{
		UserID:      "u-1",
		Summary:     "Likes budgeting.",
		PinnedFacts: &PinnedFacts{Timezone: "Asia/Ho_Chi_Minh"},
		Watermark:   3,
	}, 0))

	header, err = c.BuildContextHeader(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, "PinnedFacts (JSON): {\"timezone\":\"Asia/Ho_Chi_Minh\"}\nConversation summary:\nLikes budgeting.", header)
}

func TestBuildRecentTranscript(t *testing.T) {
	store := NewInMemoryStore()
	c := NewCompactor(store, &scriptedLLM{}, CompactorOptions{Logger: zerolog.Nop()})
	seedTurns(t, store, "u-1", 15)

	out, err := c.BuildRecentTranscript(context.Background(), "u-1", 0)
	require.NoError(t, err)
	lines := strings.Split(out, "\n")
	require.Len(t, lines, 12)
	assert.Equal(t, "ASSISTANT: msg 3", lines[0])
	assert.Equal(t, "USER: msg 14", lines[11])
}
