package convert

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/OmkarTuptewar/template-generator/internal/core/common"
)

const maxFragmentLine = 4 * 1024 * 1024

type WrapStats struct {
	Templates int
	// Skipped counts lines that are not a JSON string literal, such as a
	// fragment cut short by a crash.
	Skipped int
}

// WrapTemplates turns the template-only side file (one `"<template>",`
// fragment per line) into a JSON array with one template per line.
func WrapTemplates(r io.Reader, w io.Writer) (WrapStats, error) {
	var stats WrapStats
	bw := bufio.NewWriter(w)

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxFragmentLine)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var tmpl string
		if err := json.Unmarshal([]byte(strings.TrimSuffix(line, ",")), &tmpl); err != nil {
			stats.Skipped++
			continue
		}
		lit, err := common.Marshal(tmpl)
		if err != nil {
			return stats, err
		}
		sep := ",\n  "
		if stats.Templates == 0 {
			sep = "[\n  "
		}
		bw.WriteString(sep)
		bw.Write(lit)
		stats.Templates++
	}
	if err := sc.Err(); err != nil {
		return stats, fmt.Errorf("failed to read template fragments: %w", err)
	}

	if stats.Templates == 0 {
		bw.WriteString("[]\n")
	} else {
		bw.WriteString("\n]\n")
	}
	if err := bw.Flush(); err != nil {
		return stats, fmt.Errorf("failed to write template array: %w", err)
	}
	return stats, nil
}
