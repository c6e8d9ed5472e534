package persona

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Profile 提示词里的角色设定，措辞属于策略，可以通过文件替换
type Profile struct {
	Role       string   `json:"role"`
	Domain     string   `json:"domain"`
	Guidelines []string `json:"guidelines"`
}

// Default 理赔领域专家
func Default() *Profile {
	return &Profile{
		Role:   "You are an expert in insurance.",
		Domain: "insurance claims",
		Guidelines: []string{
			"Base the answer on the claim context when it is relevant.",
			"Say so when the context does not contain the answer instead of inventing claim details.",
			"Refer to claims by their identifiers when the question mentions them.",
		},
	}
}

func LoadFromFile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read persona file: %w", err)
	}
	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("unmarshal persona: %w", err)
	}

	// 缺省字段用默认值补齐
	def := Default()
	if strings.TrimSpace(p.Role) == "" {
		p.Role = def.Role
	}
	if strings.TrimSpace(p.Domain) == "" {
		p.Domain = def.Domain
	}
	return &p, nil
}

// FormatGuidelines 将规则格式化为编号列表
func (p *Profile) FormatGuidelines() string {
	var b strings.Builder
	n := 0
	for _, g := range p.Guidelines {
		g = strings.TrimSpace(g)
		if g == "" {
			continue
		}
		n++
		fmt.Fprintf(&b, "%d. %s\n", n, g)
	}
	return b.String()
}
