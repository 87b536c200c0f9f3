// Package cliutil holds the CLI-surface helpers shared by every cmd/
// entrypoint: parsing the -p/--pairs SPEC and validating the flush/segment
// flag combinations named in §6.
package cliutil

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ParsePairs resolves the -p/--pairs SPEC into a symbol list. SPEC is one
// of three forms, tried in order:
//
//  1. a comma-separated list: "BTC/USD,ETH/USD"
//  2. a plain-text file path, one symbol per line, optionally suffixed
//     with ":N" to cap the row count: "pairs.txt:50"
//  3. a CSV file path with a column selector and optional row cap:
//     "pairs.csv:symbol:50" or "pairs.csv:2:50"
//
// A bare path with no existing file and no comma is treated as a
// single-symbol list.
func ParsePairs(spec string) ([]string, error) {
	if spec == "" {
		return nil, fmt.Errorf("pairs spec is empty")
	}
	if strings.Contains(spec, ",") {
		return splitList(spec), nil
	}

	path, rest, hasSuffix := strings.Cut(spec, ":")
	if _, err := os.Stat(path); err != nil {
		if !hasSuffix {
			return []string{spec}, nil
		}
		return nil, fmt.Errorf("pairs file %q: %w", path, err)
	}

	if strings.EqualFold(fileExt(path), "csv") {
		column, limit, err := parseCSVSuffix(rest)
		if err != nil {
			return nil, err
		}
		return readCSVPairs(path, column, limit)
	}

	limit := 0
	if hasSuffix {
		n, err := strconv.Atoi(rest)
		if err != nil {
			return nil, fmt.Errorf("pairs spec %q: row limit %q is not an integer", spec, rest)
		}
		limit = n
	}
	return readTextPairs(path, limit)
}

func splitList(spec string) []string {
	parts := strings.Split(spec, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func fileExt(path string) string {
	i := strings.LastIndexByte(path, '.')
	if i < 0 {
		return ""
	}
	return path[i+1:]
}

// parseCSVSuffix splits "<column>[:N]" into a column selector (name or
// 1-based index) and an optional row limit (0 = unbounded).
func parseCSVSuffix(rest string) (column string, limit int, err error) {
	if rest == "" {
		return "", 0, fmt.Errorf("csv pairs file requires a :<column> selector")
	}
	col, lim, has := strings.Cut(rest, ":")
	if !has {
		return col, 0, nil
	}
	n, err := strconv.Atoi(lim)
	if err != nil {
		return "", 0, fmt.Errorf("csv pairs row limit %q is not an integer", lim)
	}
	return col, n, nil
}

func readTextPairs(path string, limit int) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening pairs file %q: %w", path, err)
	}
	defer f.Close()

	var out []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		out = append(out, line)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading pairs file %q: %w", path, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("pairs file %q contains no symbols", path)
	}
	return out, nil
}

func readCSVPairs(path, column string, limit int) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening csv pairs file %q: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("reading csv pairs header %q: %w", path, err)
	}

	colIdx, err := resolveColumn(header, column)
	if err != nil {
		return nil, fmt.Errorf("csv pairs file %q: %w", path, err)
	}

	var out []string
	for {
		record, err := r.Read()
		if err != nil {
			break
		}
		if colIdx >= len(record) {
			continue
		}
		v := strings.TrimSpace(record[colIdx])
		if v == "" {
			continue
		}
		out = append(out, v)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("csv pairs file %q: column %q has no values", path, column)
	}
	return out, nil
}

// resolveColumn accepts either a header name or a 1-based column index.
func resolveColumn(header []string, selector string) (int, error) {
	if n, err := strconv.Atoi(selector); err == nil {
		if n < 1 || n > len(header) {
			return 0, fmt.Errorf("column index %d out of range (1-%d)", n, len(header))
		}
		return n - 1, nil
	}
	for i, h := range header {
		if strings.EqualFold(strings.TrimSpace(h), selector) {
			return i, nil
		}
	}
	return 0, fmt.Errorf("column %q not found in header %v", selector, header)
}
