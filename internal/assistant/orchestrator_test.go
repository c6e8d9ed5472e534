package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liao/claim-assistant/internal/ai"
	"github.com/liao/claim-assistant/internal/chat"
	"github.com/liao/claim-assistant/internal/rag"
)

type retrieveCall struct {
	query, history string
	k              int
}

type fakeRetriever struct {
	mu      sync.Mutex
	calls   []retrieveCall
	context string
	err     error
}

func (f *fakeRetriever) Retrieve(_ context.Context, query, history string, k int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, retrieveCall{query, history, k})
	if f.err != nil {
		return "", f.err
	}
	return f.context, nil
}

type fakeGenerator struct {
	mu      sync.Mutex
	prompts []string
	answer  string
	errs    []error // 按调用顺序返回，用完后成功
	block   chan struct{}
	started chan struct{}
}

func (f *fakeGenerator) Generate(_ context.Context, prompt string) (string, error) {
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return "", &ai.GenerationError{Err: err}
		}
	}
	return f.answer, nil
}

func newTestOrchestrator(r *fakeRetriever, g *fakeGenerator) *Orchestrator {
	return New(chat.NewState(), r, ai.NewPromptBuilder(nil), g, Config{TopK: 5}, nil)
}

func TestScenarioFirstTurn(t *testing.T) {
	r := &fakeRetriever{context: "desc A\ndesc B"}
	g := &fakeGenerator{answer: "Claim C123 involves water damage."}
	o := newTestOrchestrator(r, g)

	out, err := o.Submit(context.Background(), "What is claim C123 about?")
	require.NoError(t, err)
	require.NoError(t, out.Err)

	assert.Equal(t, []retrieveCall{{query: "What is claim C123 about?", history: "", k: 5}}, r.calls)
	require.Len(t, g.prompts, 1)
	assert.Contains(t, g.prompts[0], "desc A\ndesc B")
	assert.Contains(t, g.prompts[0], "What is claim C123 about?")

	assert.Equal(t, "Claim C123 involves water damage.", out.Assistant.Text)
	assert.True(t, out.SessionCreated)

	sess, ok := o.State().Current()
	require.True(t, ok)
	assert.Equal(t, "What is claim C123 about?...", sess.Name)
	require.Len(t, sess.Turns, 2)
	assert.Equal(t, chat.RoleAssistant, sess.Turns[1].Role)
	assert.Equal(t, "Claim C123 involves water damage.", sess.Turns[1].Text)
	assert.Equal(t, PhaseIdle, o.Phase())
}

func TestScenarioSecondTurnPassesHistory(t *testing.T) {
	r := &fakeRetriever{context: "ctx"}
	g := &fakeGenerator{answer: "ok"}
	o := newTestOrchestrator(r, g)

	_, err := o.Submit(context.Background(), "first question")
	require.NoError(t, err)
	_, err = o.Submit(context.Background(), "second question")
	require.NoError(t, err)

	require.Len(t, r.calls, 2)
	assert.Equal(t, "first question", r.calls[1].history)
	assert.Equal(t, "second question", r.calls[1].query)
	assert.Contains(t, g.prompts[1], "## Conversation so far\nfirst question")
	assert.Len(t, o.State().Sessions(), 1, "second message stays in the same session")
}

func TestScenarioGenerationTimeout(t *testing.T) {
	r := &fakeRetriever{context: "ctx"}
	g := &fakeGenerator{answer: "fine", errs: []error{context.DeadlineExceeded}}
	o := newTestOrchestrator(r, g)

	out, err := o.Submit(context.Background(), "q1")
	require.NoError(t, err)
	require.Error(t, out.Err)
	assert.ErrorIs(t, out.Err, context.DeadlineExceeded)
	assert.True(t, IsFailureText(out.Assistant.Text))
	assert.Contains(t, out.Assistant.Text, "deadline exceeded")
	assert.True(t, out.Assistant.Failed)

	sess, _ := o.State().Current()
	assert.Len(t, sess.Turns, 2)

	out, err = o.Submit(context.Background(), "q2")
	require.NoError(t, err)
	require.NoError(t, out.Err)
	assert.Equal(t, "fine", out.Assistant.Text)
}

func TestRetrievalFailureRecordsVisibleMessage(t *testing.T) {
	r := &fakeRetriever{err: &rag.RetrievalError{Stage: "search", Err: errors.New("warehouse unreachable")}}
	g := &fakeGenerator{answer: "unused"}
	o := newTestOrchestrator(r, g)

	out, err := o.Submit(context.Background(), "q")
	require.NoError(t, err)

	var rerr *rag.RetrievalError
	require.ErrorAs(t, out.Err, &rerr)
	assert.Empty(t, g.prompts, "generation is skipped")
	assert.Equal(t, "⚠️ Error: could not retrieve claim context (warehouse unreachable)", out.Assistant.Text)

	sess, _ := o.State().Current()
	assert.Len(t, sess.Turns, 2)
}

func TestTurnPairingInvariant(t *testing.T) {
	errs := make([]error, 0, 10)
	for i := 0; i < 10; i++ {
		if i%3 == 0 {
			errs = append(errs, fmt.Errorf("failure %d", i))
		} else {
			errs = append(errs, nil)
		}
	}
	g := &fakeGenerator{answer: "answer", errs: errs}
	o := newTestOrchestrator(&fakeRetriever{}, g)

	for i := 0; i < 10; i++ {
		_, err := o.Submit(context.Background(), fmt.Sprintf("question %d", i))
		require.NoError(t, err)
	}

	sess, ok := o.State().Current()
	require.True(t, ok)
	require.Len(t, sess.Turns, 20)
	for i, turn := range sess.Turns {
		want := chat.RoleUser
		if i%2 == 1 {
			want = chat.RoleAssistant
		}
		assert.Equal(t, want, turn.Role, "turn %d", i)
		assert.NotEmpty(t, turn.Text)
	}
}

func TestSubmitRejectsEmptyText(t *testing.T) {
	o := newTestOrchestrator(&fakeRetriever{}, &fakeGenerator{answer: "a"})

	_, err := o.Submit(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyMessage)
	assert.Empty(t, o.State().Sessions())
}

func TestSubmitRejectsOverlappingTurn(t *testing.T) {
	g := &fakeGenerator{answer: "a", block: make(chan struct{}), started: make(chan struct{}, 1)}
	o := newTestOrchestrator(&fakeRetriever{}, g)

	done := make(chan error, 1)
	go func() {
		_, err := o.Submit(context.Background(), "slow question")
		done <- err
	}()
	<-g.started

	assert.True(t, o.Busy())
	assert.Equal(t, PhaseGenerating, o.Phase())

	_, err := o.Submit(context.Background(), "impatient question")
	assert.ErrorIs(t, err, ErrTurnInProgress)
	assert.ErrorIs(t, o.Select(0), ErrTurnInProgress)
	assert.ErrorIs(t, o.NewChat(), ErrTurnInProgress)

	close(g.block)
	require.NoError(t, <-done)

	sess, _ := o.State().Current()
	assert.Len(t, sess.Turns, 2)
	assert.False(t, o.Busy())
}

func TestEventsAreEmittedPerTurn(t *testing.T) {
	o := newTestOrchestrator(&fakeRetriever{}, &fakeGenerator{answer: "a"})

	var events []Event
	o.Subscribe(func(e Event) { events = append(events, e) })

	_, err := o.Submit(context.Background(), "q")
	require.NoError(t, err)

	require.Len(t, events, 2)
	assert.Equal(t, PhaseUserMessageRecorded, events[0].Phase)
	assert.True(t, events[0].SessionCreated)
	assert.Equal(t, chat.RoleUser, events[0].Turn.Role)
	assert.Equal(t, PhaseAssistantMessageRecorded, events[1].Phase)
	assert.Equal(t, "a", events[1].Turn.Text)
}

func TestIncludeAnswersInHistory(t *testing.T) {
	r := &fakeRetriever{}
	o := New(chat.NewState(), r, ai.NewPromptBuilder(nil), &fakeGenerator{answer: "the answer"},
		Config{TopK: 3, IncludeAnswers: true}, nil)

	_, err := o.Submit(context.Background(), "q1")
	require.NoError(t, err)
	_, err = o.Submit(context.Background(), "q2")
	require.NoError(t, err)

	assert.Equal(t, "q1\nthe answer", r.calls[1].history)
	assert.Equal(t, 3, r.calls[1].k)
}

func TestFailureText(t *testing.T) {
	assert.True(t, strings.HasPrefix(FailureText(errors.New("x")), FailureMarker))
	assert.Equal(t, "⚠️ Error: could not generate an answer (boom)",
		FailureText(&ai.GenerationError{Err: errors.New("boom")}))
	assert.Equal(t, "generation_failed", outcomeLabel(&ai.GenerationError{Err: errors.New("boom")}))
	assert.Equal(t, "ok", outcomeLabel(nil))
}

func TestNewChatKeepsSessionsApart(t *testing.T) {
	r := &fakeRetriever{}
	o := newTestOrchestrator(r, &fakeGenerator{answer: "a", errs: []error{nil, errors.New("boom")}})

	_, err := o.Submit(context.Background(), "water damage in kitchen")
	require.NoError(t, err)
	require.NoError(t, o.NewChat())
	out, err := o.Submit(context.Background(), "car accident on highway")
	require.NoError(t, err)
	assert.True(t, out.SessionCreated)
	assert.Equal(t, 1, out.SessionIndex)
	_, err = o.Submit(context.Background(), "who was at fault?")
	require.NoError(t, err)

	require.Len(t, r.calls, 3)
	assert.Empty(t, r.calls[1].history, "first session does not leak into the second")
	assert.Equal(t, "car accident on highway", r.calls[2].history)

	sessions := o.State().Sessions()
	require.Len(t, sessions, 2)
	assert.Equal(t, 2, sessions[0].Turns)
	assert.Equal(t, 4, sessions[1].Turns)

	for i := range sessions {
		sess, err := o.State().Session(i)
		require.NoError(t, err)
		for j, turn := range sess.Turns {
			want := chat.RoleUser
			if j%2 == 1 {
				want = chat.RoleAssistant
			}
			assert.Equal(t, want, turn.Role, "session %d turn %d", i, j)
		}
	}

	require.NoError(t, o.Select(0))
	_, err = o.Submit(context.Background(), "and the repair estimate?")
	require.NoError(t, err)
	assert.Equal(t, "water damage in kitchen", r.calls[3].history)
}

func TestSubmitRecordsTextAsTyped(t *testing.T) {
	r := &fakeRetriever{}
	o := newTestOrchestrator(r, &fakeGenerator{answer: "a"})

	out, err := o.Submit(context.Background(), "  claim C123?\n")
	require.NoError(t, err)
	assert.Equal(t, "  claim C123?\n", out.User.Text)
	assert.Equal(t, "  claim C123?\n", r.calls[0].query)

	sess, _ := o.State().Current()
	assert.Equal(t, "  claim C123?\n...", sess.Name)
}
