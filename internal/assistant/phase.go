package assistant

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/liao/claim-assistant/internal/ai"
	"github.com/liao/claim-assistant/internal/chat"
	"github.com/liao/claim-assistant/internal/rag"
)

type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseUserMessageRecorded
	PhaseRetrieving
	PhaseGenerating
	PhaseAssistantMessageRecorded
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseUserMessageRecorded:
		return "user_message_recorded"
	case PhaseRetrieving:
		return "retrieving"
	case PhaseGenerating:
		return "generating"
	case PhaseAssistantMessageRecorded:
		return "assistant_message_recorded"
	}
	return fmt.Sprintf("phase(%d)", int32(p))
}

// Event 用户消息记录后和助手消息记录后各发一次
type Event struct {
	Phase          Phase
	SessionIndex   int
	SessionCreated bool
	Turn           chat.Turn
	Err            error
}

// FailureMarker 错误回复的前缀
const FailureMarker = "⚠️ Error"

// FailureText 把失败渲染成助手消息
func FailureText(err error) string {
	var (
		rerr *rag.RetrievalError
		gerr *ai.GenerationError
	)
	switch {
	case errors.As(err, &rerr):
		return fmt.Sprintf("%s: could not retrieve claim context (%v)", FailureMarker, rerr.Err)
	case errors.As(err, &gerr):
		return fmt.Sprintf("%s: could not generate an answer (%v)", FailureMarker, gerr.Err)
	default:
		return fmt.Sprintf("%s: %v", FailureMarker, err)
	}
}

func IsFailureText(text string) bool {
	return strings.HasPrefix(text, FailureMarker)
}

func outcomeLabel(err error) string {
	var (
		rerr *rag.RetrievalError
		gerr *ai.GenerationError
	)
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &rerr):
		return "retrieval_failed"
	case errors.As(err, &gerr):
		return "generation_failed"
	default:
		return "failed"
	}
}

// LogEvents 返回记录事件日志的监听器
func LogEvents(logger *slog.Logger) func(Event) {
	return func(e Event) {
		attrs := []any{"phase", e.Phase.String(), "session", e.SessionIndex, "role", e.Turn.Role}
		if e.SessionCreated {
			attrs = append(attrs, "created", true)
		}
		if e.Err != nil {
			logger.Warn("turn event", append(attrs, "error", e.Err)...)
			return
		}
		logger.Info("turn event", attrs...)
	}
}
