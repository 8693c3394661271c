package reconcile

import (
	"sort"
	"strings"

	"github.com/JakeFAU/questledger/internal/catalog"
)

// Merge builds a category's entry list: the baseline verbatim, then one
// section per group. The first occurrence of a name wins and names already in
// the baseline are dropped. Group labels are matched case-insensitively, as
// their section markers are upper-cased. Groups are sorted with catchAll last
// and names are sorted within their group. Empty groups produce no section.
func Merge(baseline []catalog.Entry, candidates []Candidate, catchAll string) []catalog.Entry {
	out := append([]catalog.Entry(nil), baseline...)

	primary := make(map[string]struct{}, len(baseline))
	for _, e := range baseline {
		if !e.IsSection() {
			primary[string(e)] = struct{}{}
		}
	}

	seen := make(map[string]struct{}, len(candidates))
	groups := make(map[string][]string)
	for _, c := range candidates {
		if _, dup := seen[c.Name]; dup {
			continue
		}
		seen[c.Name] = struct{}{}
		if _, isPrimary := primary[c.Name]; isPrimary {
			continue
		}
		key := strings.ToUpper(c.Group)
		groups[key] = append(groups[key], c.Name)
	}

	labels := make([]string, 0, len(groups))
	for label := range groups {
		labels = append(labels, label)
	}
	catchAll = strings.ToUpper(catchAll)
	sort.Slice(labels, func(i, j int) bool {
		if (labels[i] == catchAll) != (labels[j] == catchAll) {
			return labels[j] == catchAll
		}
		return labels[i] < labels[j]
	})

	for _, label := range labels {
		names := groups[label]
		sort.Strings(names)
		out = append(out, catalog.Section(label))
		out = append(out, catalog.FromStrings(names)...)
	}
	return out
}
