package attendance

import (
	"fmt"
	"sort"
	"strings"
)

// BatchTable maps canonicalized meeting identifiers to batch labels. Built
// once at startup from configuration and validated for collisions.
type BatchTable struct {
	byID   map[string]string // canonical meeting ID -> label
	labels []string          // sorted labels, for deterministic iteration
}

// CanonicalID strips everything but digits: the platform reports the same
// identifier as "8352 7645 001", 83527645001 or "83527645001" depending on
// the endpoint.
func CanonicalID(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NewBatchTable canonicalizes the label -> meeting ID mapping and rejects
// empty or ambiguous identifiers. Because matching also accepts suffixes, one
// configured ID being the suffix of another counts as a collision.
func NewBatchTable(mapping map[string]string) (*BatchTable, error) {
	t := &BatchTable{byID: make(map[string]string, len(mapping))}

	for label, rawID := range mapping {
		id := CanonicalID(rawID)
		if id == "" {
			return nil, fmt.Errorf("batch %q: meeting id %q has no digits", label, rawID)
		}
		if other, ok := t.byID[id]; ok {
			return nil, fmt.Errorf("batch %q: meeting id %s already mapped to %q", label, id, other)
		}
		t.byID[id] = label
		t.labels = append(t.labels, label)
	}

	ids := make([]string, 0, len(t.byID))
	for id := range t.byID {
		ids = append(ids, id)
	}
	for _, a := range ids {
		for _, b := range ids {
			if a != b && strings.HasSuffix(a, b) {
				return nil, fmt.Errorf("ambiguous meeting ids: %s is a suffix of %s", b, a)
			}
		}
	}

	sort.Strings(t.labels)
	return t, nil
}

// Labels returns the configured batch labels in sorted order.
func (t *BatchTable) Labels() []string { return t.labels }

// Match resolves a platform meeting identifier to a batch label, accepting an
// exact canonical match or a platform-prefixed variant (suffix match).
func (t *BatchTable) Match(meetingID string) (string, bool) {
	id := CanonicalID(meetingID)
	if id == "" {
		return "", false
	}
	if label, ok := t.byID[id]; ok {
		return label, true
	}
	for canonical, label := range t.byID {
		if strings.HasSuffix(id, canonical) {
			return label, true
		}
	}
	return "", false
}

// MatchTopic falls back to finding a batch label inside the meeting topic,
// case-insensitively. Last resort for instances with unusable identifiers.
func (t *BatchTable) MatchTopic(topic string) (string, bool) {
	lower := strings.ToLower(topic)
	for _, label := range t.labels {
		if strings.Contains(lower, strings.ToLower(label)) {
			return label, true
		}
	}
	return "", false
}
