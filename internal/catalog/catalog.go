// Package catalog models the category → ordered entries hierarchy that the
// store persists and the reconciler rebuilds.
package catalog

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Marker delimits section labels inside an entry list.
const Marker = "---"

// Ellipsis is appended to names truncated to the configured maximum length.
const Ellipsis = "..."

// BlobVersion is the current encoding version of a stored catalog.
const BlobVersion = 1

// Entry is either a trackable entry name or a section marker.
type Entry string

// Section builds the marker entry for a group label, e.g. "--- ASCALON ---".
func Section(label string) Entry {
	return Entry(fmt.Sprintf("%s %s %s", Marker, strings.ToUpper(label), Marker))
}

// IsSection reports whether e is a grouping label rather than a trackable entry.
func (e Entry) IsSection() bool {
	return strings.Contains(string(e), Marker)
}

// Label returns the text of a section marker without the delimiters.
func (e Entry) Label() string {
	if !e.IsSection() {
		return ""
	}
	return strings.TrimSpace(strings.Trim(string(e), Marker+" "))
}

// Catalog maps category names to their ordered entries.
type Catalog map[string][]Entry

// Trackable returns the non-marker entry names of category in order.
func (c Catalog) Trackable(category string) []string {
	entries := c[category]
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsSection() {
			names = append(names, string(e))
		}
	}
	return names
}

// AllTrackable returns the set of trackable names across every category.
// A name listed in several categories appears once.
func (c Catalog) AllTrackable() map[string]struct{} {
	out := make(map[string]struct{})
	for category := range c {
		for _, name := range c.Trackable(category) {
			out[name] = struct{}{}
		}
	}
	return out
}

// Categories returns the category names; those in order come first in that
// order, the rest follow alphabetically.
func (c Catalog) Categories(order []string) []string {
	out := make([]string, 0, len(c))
	seen := make(map[string]struct{}, len(c))
	for _, name := range order {
		if _, ok := c[name]; ok {
			if _, dup := seen[name]; !dup {
				out = append(out, name)
				seen[name] = struct{}{}
			}
		}
	}
	var rest []string
	for name := range c {
		if _, ok := seen[name]; !ok {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	return append(out, rest...)
}

// Clone returns a deep copy.
func (c Catalog) Clone() Catalog {
	if c == nil {
		return nil
	}
	out := make(Catalog, len(c))
	for k, v := range c {
		out[k] = append([]Entry(nil), v...)
	}
	return out
}

// FromStrings builds entries from raw strings.
func FromStrings(values []string) []Entry {
	out := make([]Entry, len(values))
	for i, v := range values {
		out[i] = Entry(v)
	}
	return out
}

type blob struct {
	Version    int                `json:"version"`
	Categories map[string][]Entry `json:"categories"`
}

// Encode serializes the catalog into its versioned storage form.
func Encode(c Catalog) ([]byte, error) {
	if c == nil {
		c = Catalog{}
	}
	data, err := json.Marshal(blob{Version: BlobVersion, Categories: c})
	if err != nil {
		return nil, fmt.Errorf("encode catalog: %w", err)
	}
	return data, nil
}

// Decode parses a stored catalog. Unversioned blobs, a bare category map as
// written by older releases, are accepted as version 0.
func Decode(data []byte) (Catalog, error) {
	var head map[string]json.RawMessage
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if _, versioned := head["version"]; !versioned {
		var legacy map[string][]Entry
		if err := json.Unmarshal(data, &legacy); err != nil {
			return nil, fmt.Errorf("decode legacy catalog: %w", err)
		}
		return Catalog(legacy), nil
	}
	var b blob
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if b.Version > BlobVersion {
		return nil, fmt.Errorf("decode catalog: unsupported version %d", b.Version)
	}
	if b.Categories == nil {
		b.Categories = map[string][]Entry{}
	}
	return Catalog(b.Categories), nil
}
