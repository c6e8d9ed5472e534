package parser

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ParseHTMLFile 解析报表工具导出的 HTML 表格
func ParseHTMLFile(path string) ([]Claim, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()
	return ParseHTML(f)
}

// ParseHTML 读取所有 table。有 th 表头时按列名取值，否则取前两列。
func ParseHTML(r io.Reader) ([]Claim, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse HTML: %w", err)
	}

	var claims []Claim
	doc.Find("table").Each(func(_ int, table *goquery.Selection) {
		idCol, descCol := 0, 1

		var headers []string
		table.Find("tr").First().Find("th").Each(func(_ int, th *goquery.Selection) {
			headers = append(headers, th.Text())
		})
		if i, j, ok := headerColumns(headers); ok {
			idCol, descCol = i, j
		}

		table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
			cells := tr.Find("td")
			if cells.Length() <= idCol || cells.Length() <= descCol {
				return
			}
			claims = append(claims, Claim{
				ID:          strings.TrimSpace(cells.Eq(idCol).Text()),
				Description: strings.TrimSpace(cells.Eq(descCol).Text()),
			})
		})
	})
	return claims, nil
}
