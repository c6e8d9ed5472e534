package assistant

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/liao/claim-assistant/internal/chat"
	"github.com/liao/claim-assistant/internal/metrics"
)

var (
	ErrEmptyMessage   = errors.New("empty message")
	ErrTurnInProgress = errors.New("a turn is already in progress")
)

type Retriever interface {
	Retrieve(ctx context.Context, query, history string, k int) (string, error)
}

type PromptBuilder interface {
	Build(context, history, question string) string
}

type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Outcome 一轮对话的结果。Err 非空时 Assistant.Text 是展示给用户的错误信息。
type Outcome struct {
	SessionIndex   int       `json:"session_index"`
	SessionCreated bool      `json:"session_created"`
	User           chat.Turn `json:"user"`
	Assistant      chat.Turn `json:"assistant"`
	Err            error     `json:"-"`
}

type Config struct {
	TopK           int
	IncludeAnswers bool
}

// Orchestrator 驱动单个会话状态上的一轮对话，同一时间只处理一条消息
type Orchestrator struct {
	state     *chat.State
	retriever Retriever
	prompts   PromptBuilder
	generator Generator
	cfg       Config
	metrics   *metrics.Metrics

	busy  atomic.Bool
	phase atomic.Int32

	mu        sync.RWMutex
	listeners []func(Event)
}

func New(state *chat.State, r Retriever, p PromptBuilder, g Generator, cfg Config, m *metrics.Metrics) *Orchestrator {
	if cfg.TopK < 1 {
		cfg.TopK = 5
	}
	return &Orchestrator{
		state:     state,
		retriever: r,
		prompts:   p,
		generator: g,
		cfg:       cfg,
		metrics:   m,
	}
}

func (o *Orchestrator) State() *chat.State { return o.state }

func (o *Orchestrator) Phase() Phase { return Phase(o.phase.Load()) }

// Busy 是否有正在处理的消息
func (o *Orchestrator) Busy() bool { return o.busy.Load() }

// Subscribe 注册事件监听，回调在处理消息的 goroutine 中同步执行
func (o *Orchestrator) Subscribe(fn func(Event)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.listeners = append(o.listeners, fn)
}

// Submit 处理一条用户消息。只有空消息和并发提交会返回错误且不改动状态；
// 检索或生成失败时仍然记录一条助手消息，失败原因放在 Outcome.Err。
// 消息按原文记录，空白只用于判断是否为空。
func (o *Orchestrator) Submit(ctx context.Context, text string) (Outcome, error) {
	if strings.TrimSpace(text) == "" {
		return Outcome{}, ErrEmptyMessage
	}
	if !o.busy.CompareAndSwap(false, true) {
		return Outcome{}, ErrTurnInProgress
	}
	defer o.busy.Store(false)
	defer o.setPhase(PhaseIdle)

	idx, created := o.state.RecordUser(text)
	out := Outcome{
		SessionIndex:   idx,
		SessionCreated: created,
		User:           chat.Turn{Role: chat.RoleUser, Text: text},
	}
	if cur, ok := o.state.Current(); ok && len(cur.Turns) > 0 {
		out.User = cur.Turns[len(cur.Turns)-1]
	}
	o.setPhase(PhaseUserMessageRecorded)
	o.emit(Event{Phase: PhaseUserMessageRecorded, SessionIndex: idx, SessionCreated: created, Turn: out.User})

	history := o.state.History(o.cfg.IncludeAnswers)

	answer, err := o.answer(ctx, text, history)
	failed := err != nil
	if failed {
		out.Err = err
		answer = FailureText(err)
		slog.Warn("turn failed", "session", idx, "error", err)
	}

	turn, rerr := o.state.RecordAssistant(answer, failed)
	if rerr != nil {
		// RecordUser 之后当前会话一定存在
		return out, rerr
	}
	out.Assistant = turn
	o.setPhase(PhaseAssistantMessageRecorded)
	o.metrics.Turn(outcomeLabel(err))
	o.emit(Event{Phase: PhaseAssistantMessageRecorded, SessionIndex: idx, Turn: turn, Err: err})
	return out, nil
}

func (o *Orchestrator) answer(ctx context.Context, question, history string) (string, error) {
	o.setPhase(PhaseRetrieving)
	claimCtx, err := o.retriever.Retrieve(ctx, question, history, o.cfg.TopK)
	if err != nil {
		return "", err
	}

	o.setPhase(PhaseGenerating)
	prompt := o.prompts.Build(claimCtx, history, question)
	return o.generator.Generate(ctx, prompt)
}

func (o *Orchestrator) setPhase(p Phase) {
	o.phase.Store(int32(p))
}

func (o *Orchestrator) emit(e Event) {
	o.mu.RLock()
	listeners := slices.Clone(o.listeners)
	o.mu.RUnlock()

	for _, fn := range listeners {
		fn(e)
	}
}

// Select 切换当前会话，处理消息期间不允许切换
func (o *Orchestrator) Select(index int) error {
	if !o.busy.CompareAndSwap(false, true) {
		return ErrTurnInProgress
	}
	defer o.busy.Store(false)
	return o.state.Select(index)
}

// NewChat 结束当前会话，下一条消息会新建会话。处理消息期间不允许。
func (o *Orchestrator) NewChat() error {
	if !o.busy.CompareAndSwap(false, true) {
		return ErrTurnInProgress
	}
	defer o.busy.Store(false)
	o.state.NewChat()
	return nil
}
