package parser

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
)

// 匹配记录头: "Claim C123" / "CLAIM #C123" / "Claim ID: C123"
var headerRe = regexp.MustCompile(`(?i)^\s*claim(?:\s+id)?\s*[:#]?\s*([A-Za-z]*\d[A-Za-z0-9_-]*)\s*$`)

// ParseTextFile 解析纯文本导出：记录头之后到下一个记录头之间的行是描述
func ParseTextFile(path string) ([]Claim, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()
	return ParseText(f)
}

func ParseText(r io.Reader) ([]Claim, error) {
	var claims []Claim
	var current *Claim
	var contentBuf strings.Builder

	flush := func() {
		if current == nil {
			return
		}
		current.Description = strings.TrimSpace(contentBuf.String())
		if current.Description != "" {
			claims = append(claims, *current)
		}
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024) // 1MB buffer

	for scanner.Scan() {
		line := scanner.Text()

		if matches := headerRe.FindStringSubmatch(line); matches != nil {
			flush()
			current = &Claim{ID: matches[1]}
			contentBuf.Reset()
			continue
		}

		// 内容行
		if current != nil && strings.TrimSpace(line) != "" {
			if contentBuf.Len() > 0 {
				contentBuf.WriteString(" ")
			}
			contentBuf.WriteString(strings.TrimSpace(line))
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan text: %w", err)
	}

	// 保存最后一条
	flush()
	return claims, nil
}
