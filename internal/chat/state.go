package chat

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// nameLimit 是会话名截取的字符数
const nameLimit = 30

var (
	ErrNoSession    = errors.New("no active session")
	ErrSessionIndex = errors.New("session index out of range")
)

// Turn 一条消息，创建后不再修改
type Turn struct {
	Role   Role      `json:"role"`
	Text   string    `json:"text"`
	Failed bool      `json:"failed,omitempty"`
	At     time.Time `json:"at"`
}

type Session struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Turns     []Turn    `json:"turns"`
	CreatedAt time.Time `json:"created_at"`
}

// Summary 侧边栏展示用
type Summary struct {
	Index  int    `json:"index"`
	ID     string `json:"id"`
	Name   string `json:"name"`
	Turns  int    `json:"turns"`
	Active bool   `json:"active"`
}

// State 一个用户的全部会话。active 为 -1 时下一条用户消息新建会话。
type State struct {
	mu       sync.RWMutex
	sessions []*Session
	active   int
	now      func() time.Time
}

func NewState() *State {
	return &State{active: -1, now: time.Now}
}

// SessionName 取消息前 30 个字符加省略号
func SessionName(text string) string {
	r := []rune(text)
	if len(r) > nameLimit {
		r = r[:nameLimit]
	}
	return string(r) + "..."
}

// RecordUser 追加用户消息，没有当前会话时先新建一个
func (s *State) RecordUser(text string) (index int, created bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if s.active < 0 {
		s.sessions = append(s.sessions, &Session{
			ID:        uuid.NewString(),
			Name:      SessionName(text),
			CreatedAt: now,
		})
		s.active = len(s.sessions) - 1
		created = true
	}
	sess := s.sessions[s.active]
	sess.Turns = append(sess.Turns, Turn{Role: RoleUser, Text: text, At: now})
	return s.active, created
}

// RecordAssistant 追加助手回复到当前会话
func (s *State) RecordAssistant(text string, failed bool) (Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active < 0 {
		return Turn{}, ErrNoSession
	}
	t := Turn{Role: RoleAssistant, Text: text, Failed: failed, At: s.now()}
	sess := s.sessions[s.active]
	sess.Turns = append(sess.Turns, t)
	return t, nil
}

// History 当前会话里最后一条用户消息之前的内容，按行拼接。
// 默认只包含用户消息；失败的回复永远不计入。
func (s *State) History(includeAnswers bool) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.active < 0 {
		return ""
	}
	turns := s.sessions[s.active].Turns
	if n := len(turns); n > 0 && turns[n-1].Role == RoleUser {
		turns = turns[:n-1]
	}

	var lines []string
	for _, t := range turns {
		switch {
		case t.Role == RoleUser:
			lines = append(lines, t.Text)
		case includeAnswers && !t.Failed:
			lines = append(lines, t.Text)
		}
	}
	return strings.Join(lines, "\n")
}

// NewChat 取消当前会话，已有会话保留在列表里
func (s *State) NewChat() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = -1
}

func (s *State) Active() (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active, s.active >= 0
}

// Select 切换当前会话
func (s *State) Select(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index < 0 || index >= len(s.sessions) {
		return fmt.Errorf("select %d of %d: %w", index, len(s.sessions), ErrSessionIndex)
	}
	s.active = index
	return nil
}

func (s *State) Sessions() []Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Summary, len(s.sessions))
	for i, sess := range s.sessions {
		out[i] = Summary{
			Index:  i,
			ID:     sess.ID,
			Name:   sess.Name,
			Turns:  len(sess.Turns),
			Active: i == s.active,
		}
	}
	return out
}

// Session 返回会话的副本
func (s *State) Session(index int) (Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if index < 0 || index >= len(s.sessions) {
		return Session{}, fmt.Errorf("session %d of %d: %w", index, len(s.sessions), ErrSessionIndex)
	}
	src := s.sessions[index]
	cp := *src
	cp.Turns = append([]Turn(nil), src.Turns...)
	return cp, nil
}

// Current 当前会话的副本
func (s *State) Current() (Session, bool) {
	idx, ok := s.Active()
	if !ok {
		return Session{}, false
	}
	sess, err := s.Session(idx)
	return sess, err == nil
}
