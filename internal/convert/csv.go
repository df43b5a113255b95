// Package convert holds the offline file conversions that sit next to a
// run: query dumps to CSV, and the template-only side file to a JSON array.
package convert

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// CSVHeader is the column order of JSONToCSV.
var CSVHeader = []string{"query", "templatized_query", "lob"}

const csvProgressEvery = 10000

type CSVStats struct {
	Rows    int
	Skipped int
}

// JSONToCSV streams a JSON array of objects from r and writes one CSV row
// per object to w. Missing fields become empty cells; elements that are not
// objects are skipped.
func JSONToCSV(ctx context.Context, r io.Reader, w io.Writer, logger *zap.Logger) (CSVStats, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var stats CSVStats

	dec := json.NewDecoder(r)
	tok, err := dec.Token()
	if err != nil {
		return stats, fmt.Errorf("failed to read input array: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		return stats, fmt.Errorf("input is not a JSON array")
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return stats, fmt.Errorf("failed to write CSV header: %w", err)
	}

	for dec.More() {
		if stats.Rows%1000 == 0 {
			if err := ctx.Err(); err != nil {
				cw.Flush()
				return stats, err
			}
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			cw.Flush()
			return stats, fmt.Errorf("failed to decode element %d: %w", stats.Rows+stats.Skipped, err)
		}
		obj := gjson.ParseBytes(raw)
		if !obj.IsObject() {
			stats.Skipped++
			continue
		}
		row := make([]string, len(CSVHeader))
		for i, field := range CSVHeader {
			row[i] = obj.Get(field).String()
		}
		if err := cw.Write(row); err != nil {
			return stats, fmt.Errorf("failed to write CSV row: %w", err)
		}
		stats.Rows++
		if stats.Rows%csvProgressEvery == 0 {
			logger.Info("rows processed", zap.Int("rows", stats.Rows))
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return stats, fmt.Errorf("failed to flush CSV: %w", err)
	}
	return stats, nil
}
