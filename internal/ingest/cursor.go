// Package ingest reads the raw query file, either one JSON array of strings
// or one JSON string per line, and yields the queries after a resume offset.
package ingest

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"strings"
)

// Cursor is a single-use, forward-only reader over the query file.
type Cursor struct {
	f       *os.File
	r       *bufio.Reader
	skip    int
	dropped int
	err     error
	used    bool
}

// Open prepares a cursor that skips the first skip valid queries. It fails
// only when the file cannot be opened.
func Open(path string, skip int) (*Cursor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input '%s': %w", path, err)
	}
	if skip < 0 {
		skip = 0
	}
	return &Cursor{f: f, r: bufio.NewReaderSize(f, 64*1024), skip: skip}, nil
}

// Queries yields the remaining valid queries. Entries that are not JSON
// strings are dropped and do not count towards the skip offset.
func (c *Cursor) Queries() iter.Seq[string] {
	return func(yield func(string) bool) {
		if c.used {
			return
		}
		c.used = true

		skipped := 0
		emit := func(q string) bool {
			if skipped < c.skip {
				skipped++
				return true
			}
			return yield(q)
		}

		first, err := c.peekNonSpace()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				c.err = err
			}
			return
		}
		if first == '[' {
			c.readArray(emit)
			return
		}
		c.readLines(emit)
	}
}

// Err reports a read or decode error that ended iteration early.
func (c *Cursor) Err() error { return c.err }

// Dropped is the number of malformed entries skipped so far.
func (c *Cursor) Dropped() int { return c.dropped }

func (c *Cursor) Close() error { return c.f.Close() }

func (c *Cursor) peekNonSpace() (byte, error) {
	for {
		p, err := c.r.Peek(1)
		if err != nil {
			return 0, err
		}
		switch p[0] {
		case ' ', '\t', '\r', '\n':
			_, _ = c.r.Discard(1)
			continue
		case 0xEF:
			// UTF-8 byte order mark.
			if bom, _ := c.r.Peek(3); bytes.Equal(bom, []byte{0xEF, 0xBB, 0xBF}) {
				_, _ = c.r.Discard(3)
				continue
			}
		}
		return p[0], nil
	}
}

func (c *Cursor) readArray(emit func(string) bool) {
	dec := json.NewDecoder(c.r)
	if _, err := dec.Token(); err != nil {
		c.err = fmt.Errorf("failed to read input array: %w", err)
		return
	}
	for dec.More() {
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			c.err = fmt.Errorf("failed to decode input array element: %w", err)
			return
		}
		q, ok := asString(raw)
		if !ok {
			c.dropped++
			continue
		}
		if !emit(q) {
			return
		}
	}
}

func (c *Cursor) readLines(emit func(string) bool) {
	for {
		line, err := c.r.ReadString('\n')
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			q, ok := asString([]byte(trimmed))
			if !ok {
				c.dropped++
			} else if !emit(q) {
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				c.err = fmt.Errorf("failed to read input line: %w", err)
			}
			return
		}
	}
}

// asString decodes raw only when it is a JSON string literal; null and
// other scalars are rejected.
func asString(raw []byte) (string, bool) {
	t := bytes.TrimSpace(raw)
	if len(t) == 0 || t[0] != '"' {
		return "", false
	}
	var s string
	if err := json.Unmarshal(t, &s); err != nil {
		return "", false
	}
	return s, true
}

// Count returns the number of valid queries in the file.
func Count(path string) (int, error) {
	c, err := Open(path, 0)
	if err != nil {
		return 0, err
	}
	defer c.Close()
	n := 0
	for range c.Queries() {
		n++
	}
	return n, c.Err()
}
