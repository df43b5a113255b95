// Package registry holds the entity value catalog shared by all batches.
//
// The catalog starts from an embedded seed, is overlaid with the values
// discovered by earlier runs, and only ever grows. Every accepted change is
// written back to the overlay file in full.
package registry

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/OmkarTuptewar/template-generator/internal/core/common"
	"github.com/OmkarTuptewar/template-generator/internal/core/model"
)

//go:embed catalog.json
var seedJSON []byte

// Seed is the built-in catalog: recognized labels, seed values per label and
// the per-label blocklist of generic terms.
type Seed struct {
	Labels    []string            `json:"labels"`
	Values    []LabelValues       `json:"values"`
	Blocklist map[string][]string `json:"blocklist"`
}

type LabelValues struct {
	Label  string   `json:"label"`
	Values []string `json:"values"`
}

// BuiltinSeed decodes the embedded catalog.
func BuiltinSeed() (Seed, error) {
	var s Seed
	if err := json.Unmarshal(seedJSON, &s); err != nil {
		return Seed{}, fmt.Errorf("failed to decode built-in catalog: %w", err)
	}
	return s, nil
}

type Registry struct {
	path   string
	logger *zap.Logger
	labels []string

	blocked map[string]map[string]struct{}

	mu     sync.RWMutex
	order  []string
	values map[string][]string
	lower  map[string]map[string]struct{}
}

type Option func(*Registry)

// WithLogger sets the logger used for overlay load and persist events.
func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// Load builds a registry from the built-in seed and the overlay file at
// path. A missing overlay is not an error; an unreadable or malformed one
// is logged and skipped.
func Load(path string, opts ...Option) (*Registry, error) {
	seed, err := BuiltinSeed()
	if err != nil {
		return nil, err
	}
	return New(path, seed, opts...)
}

// New builds a registry from an explicit seed.
func New(path string, seed Seed, opts ...Option) (*Registry, error) {
	r := &Registry{
		path:    path,
		logger:  zap.NewNop(),
		labels:  append([]string(nil), seed.Labels...),
		blocked: make(map[string]map[string]struct{}, len(seed.Blocklist)),
		values:  make(map[string][]string),
		lower:   make(map[string]map[string]struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	for label, terms := range seed.Blocklist {
		set := make(map[string]struct{}, len(terms))
		for _, t := range terms {
			set[normalize(t)] = struct{}{}
		}
		r.blocked[label] = set
	}
	for _, lv := range seed.Values {
		r.ensureLabel(lv.Label)
		for _, v := range lv.Values {
			r.add(lv.Label, v)
		}
	}
	if err := r.loadOverlay(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) loadOverlay() error {
	if r.path == "" {
		return nil
	}
	data, err := os.ReadFile(r.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		r.logger.Warn("registry overlay unreadable, using built-in catalog only",
			zap.String("path", r.path), zap.Error(err))
		return nil
	}
	var overlay model.Catalog
	if err := json.Unmarshal(data, &overlay); err != nil {
		r.logger.Warn("registry overlay malformed, using built-in catalog only",
			zap.String("path", r.path), zap.Error(err))
		return nil
	}
	added := 0
	for _, label := range overlay.Labels() {
		for _, v := range overlay.Values[label] {
			if r.add(label, v) {
				added++
			}
		}
	}
	r.logger.Info("registry overlay loaded",
		zap.String("path", r.path), zap.Int("discovered_values", added))
	return nil
}

// Labels returns the fixed set of recognized labels.
func (r *Registry) Labels() []string {
	return append([]string(nil), r.labels...)
}

// Snapshot returns an independent copy of the current catalog.
func (r *Registry) Snapshot() model.Catalog {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return model.Catalog{Order: r.order, Values: r.values}.Clone()
}

// Blocked reports whether value is a generic term that must never be
// admitted under label.
func (r *Registry) Blocked(label, value string) bool {
	set, ok := r.blocked[label]
	if !ok {
		return false
	}
	_, hit := set[normalize(value)]
	return hit
}

// Merge admits new values and persists the full catalog if anything
// changed. An unknown label is created when its first value is admitted. A persist failure is returned but
// the in-memory change stands; the next successful persist rewrites it.
func (r *Registry) Merge(newValues map[string][]string) (bool, error) {
	if len(newValues) == 0 {
		return false, nil
	}
	labels := make([]string, 0, len(newValues))
	for l := range newValues {
		labels = append(labels, l)
	}
	sort.Strings(labels)

	r.mu.Lock()
	defer r.mu.Unlock()

	changed := false
	for _, label := range labels {
		if strings.TrimSpace(label) == "" {
			continue
		}
		for _, v := range newValues[label] {
			if r.add(label, v) {
				changed = true
			}
		}
	}
	if !changed {
		return false, nil
	}
	if err := r.persist(); err != nil {
		return true, err
	}
	return true, nil
}

// Stats returns the number of values per label.
func (r *Registry) Stats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]int, len(r.values))
	for l, v := range r.values {
		out[l] = len(v)
	}
	return out
}

// ensureLabel and add require r.mu held (or exclusive access during load).
func (r *Registry) ensureLabel(label string) {
	if _, ok := r.values[label]; ok {
		return
	}
	r.order = append(r.order, label)
	r.values[label] = []string{}
	r.lower[label] = make(map[string]struct{})
}

func (r *Registry) add(label, value string) bool {
	value = strings.TrimSpace(value)
	if value == "" {
		return false
	}
	key := strings.ToLower(value)
	if _, dup := r.lower[label][key]; dup {
		return false
	}
	if r.Blocked(label, value) {
		return false
	}
	r.ensureLabel(label)
	r.values[label] = append(r.values[label], value)
	r.lower[label][key] = struct{}{}
	return true
}

// persist rewrites the overlay file through a temp file and rename so a
// crash never leaves a truncated catalog behind. Requires r.mu held.
func (r *Registry) persist() error {
	if r.path == "" {
		return nil
	}
	data, err := common.MarshalIndent(model.Catalog{Order: r.order, Values: r.values})
	if err != nil {
		return fmt.Errorf("failed to encode registry: %w", err)
	}
	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create registry dir '%s': %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(r.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp registry file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write registry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp registry file: %w", err)
	}
	if err := os.Rename(tmp.Name(), r.path); err != nil {
		return fmt.Errorf("failed to replace registry file '%s': %w", r.path, err)
	}
	return nil
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
