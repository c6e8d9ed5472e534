package parser

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Claim 导出文件里的一条理赔记录
type Claim struct {
	ID          string `json:"claim_id"`
	Description string `json:"claim_description"`
}

const (
	FormatCSV      = "csv"
	FormatJSONL    = "jsonl"
	FormatHTML     = "html"
	FormatText     = "text"
	FormatEncJSONL = "enc-jsonl"
)

// DetectFormat 按扩展名判断格式
func DetectFormat(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return FormatCSV, nil
	case ".jsonl", ".ndjson":
		return FormatJSONL, nil
	case ".html", ".htm":
		return FormatHTML, nil
	case ".txt":
		return FormatText, nil
	case ".enc":
		return FormatEncJSONL, nil
	}
	return "", fmt.Errorf("cannot detect format of %s", path)
}

// Dedupe 同一 claim_id 保留最后一条，去掉空描述，保持首次出现的顺序
func Dedupe(claims []Claim) []Claim {
	pos := make(map[string]int, len(claims))
	out := make([]Claim, 0, len(claims))
	for _, c := range claims {
		c.ID = strings.TrimSpace(c.ID)
		c.Description = strings.TrimSpace(c.Description)
		if c.ID == "" || c.Description == "" {
			continue
		}
		if i, ok := pos[c.ID]; ok {
			out[i] = c
			continue
		}
		pos[c.ID] = len(out)
		out = append(out, c)
	}
	return out
}
