package store

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OmkarTuptewar/template-generator/internal/core/model"
)

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
}

func TestAppendWritesJSONLines(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "nested", "out.jsonl")
	side := filepath.Join(dir, "templates.txt")

	w, err := Open(out, WithTemplateSink(side))
	require.NoError(t, err)

	require.NoError(t, w.Append(model.OutputRecord{Query: "bus to pune <fast>", Template: "bus to {DESTINATION_NAME} <fast>"}))
	require.NoError(t, w.Append(model.OutputRecord{Query: "hello", Ignore: true}))
	require.NoError(t, w.Append(model.OutputRecord{Query: "blank template", Template: ""}))
	assert.Equal(t, 3, w.Written())
	require.NoError(t, w.Close())

	lines := readLines(t, out)
	require.Len(t, lines, 3)
	assert.Equal(t, `{"query":"bus to pune <fast>","template":"bus to {DESTINATION_NAME} <fast>"}`, lines[0])
	assert.Equal(t, `{"query":"hello","ignore":true}`, lines[1])
	assert.Equal(t, `{"query":"blank template","template":""}`, lines[2])

	var rec model.OutputRecord
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &rec))
	assert.True(t, rec.Ignore)

	sideData, err := os.ReadFile(side)
	require.NoError(t, err)
	assert.Equal(t, "\"bus to {DESTINATION_NAME} <fast>\",\n", string(sideData))
}

func TestOpenDropsPartialTail(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.jsonl")
	require.NoError(t, os.WriteFile(out, []byte(`{"query":"a","ignore":true}`+"\n"+`{"query":"b","tem`), 0o644))

	n, err := CountRecords(out)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	w, err := Open(out)
	require.NoError(t, err)
	require.NoError(t, w.Append(model.OutputRecord{Query: "b", Ignore: true}))
	require.NoError(t, w.Close())

	lines := readLines(t, out)
	assert.Equal(t, []string{`{"query":"a","ignore":true}`, `{"query":"b","ignore":true}`}, lines)
	for _, line := range lines {
		assert.True(t, json.Valid([]byte(line)), line)
	}

	n, err = CountRecords(out)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestOpenDropsUnterminatedOnlyLine(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.jsonl")
	require.NoError(t, os.WriteFile(out, []byte(strings.Repeat("x", 9000)), 0o644))

	n, err := CountRecords(out)
	require.NoError(t, err)
	assert.Zero(t, n)

	w, err := Open(out)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestOpenKeepsCompleteFile(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.jsonl")
	content := `{"query":"a","ignore":true}` + "\n"
	require.NoError(t, os.WriteFile(out, []byte(content), 0o644))

	w, err := Open(out)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, content, string(data))
}

func TestOpenIsExclusive(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.jsonl")
	w, err := Open(out)
	require.NoError(t, err)

	_, err = Open(out)
	assert.True(t, errors.Is(err, ErrLocked))

	require.NoError(t, w.Close())
	w2, err := Open(out)
	require.NoError(t, err)
	require.NoError(t, w2.Close())
}

func TestSideSinkFailureIsNotFatal(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	w, err := Open(filepath.Join(dir, "out.jsonl"), WithTemplateSink(filepath.Join(blocker, "side.txt")))
	require.NoError(t, err)
	defer w.Close()
	assert.NoError(t, w.Append(model.OutputRecord{Query: "q", Template: "t"}))
}

func TestCountRecordsMissingAndEmpty(t *testing.T) {
	dir := t.TempDir()
	n, err := CountRecords(filepath.Join(dir, "missing.jsonl"))
	require.NoError(t, err)
	assert.Zero(t, n)

	empty := filepath.Join(dir, "empty.jsonl")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	n, err = CountRecords(empty)
	require.NoError(t, err)
	assert.Zero(t, n)
}
