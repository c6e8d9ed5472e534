package ai

import (
	"fmt"
	"strings"

	"github.com/liao/claim-assistant/internal/persona"
)

const noContext = "No claim records matched this question."

// BuildPrompt 组装完整的提示词，历史和上下文可以为空，问题一定在最后
func BuildPrompt(p *persona.Profile, context, history, question string) string {
	if p == nil {
		p = persona.Default()
	}
	var b strings.Builder

	b.WriteString(p.Role)
	b.WriteString("\n\n")

	if history != "" {
		b.WriteString("## Conversation so far\n")
		b.WriteString(history)
		b.WriteString("\n\n")
	}

	fmt.Fprintf(&b, "## Context from %s data\n", p.Domain)
	if context != "" {
		b.WriteString(context)
	} else {
		b.WriteString(noContext)
	}
	b.WriteString("\n\n")

	if g := p.FormatGuidelines(); g != "" {
		b.WriteString("## Rules\n")
		b.WriteString(g)
		b.WriteString("\n")
	}

	b.WriteString("Answer this question clearly: ")
	b.WriteString(question)
	return b.String()
}

// PromptBuilder 绑定角色设定的提示词构造器
type PromptBuilder struct {
	profile *persona.Profile
}

func NewPromptBuilder(p *persona.Profile) *PromptBuilder {
	if p == nil {
		p = persona.Default()
	}
	return &PromptBuilder{profile: p}
}

func (b *PromptBuilder) Build(context, history, question string) string {
	return BuildPrompt(b.profile, context, history, question)
}
