package parser

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// ParseCSVFile 解析 claims 表的 CSV 导出
func ParseCSVFile(path string) ([]Claim, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()
	return ParseCSV(f)
}

// ParseCSV 有表头时按 claim_id / claim_description 列取值，没有表头时取前两列
func ParseCSV(r io.Reader) ([]Claim, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	idCol, descCol := 0, 1
	var claims []Claim
	first := true
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}

		if first {
			first = false
			if i, j, ok := headerColumns(rec); ok {
				idCol, descCol = i, j
				continue
			}
		}
		if len(rec) <= idCol || len(rec) <= descCol {
			continue
		}
		claims = append(claims, Claim{ID: rec[idCol], Description: rec[descCol]})
	}
	return claims, nil
}

func headerColumns(rec []string) (idCol, descCol int, ok bool) {
	idCol, descCol = -1, -1
	for i, h := range rec {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "claim_id", "id":
			idCol = i
		case "claim_description", "description":
			descCol = i
		}
	}
	return idCol, descCol, idCol >= 0 && descCol >= 0
}
