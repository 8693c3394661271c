package reconcile

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/questledger/internal/catalog"
)

// TestMergeKeepsBaseline covers a baseline entry that also appears on the page.
func TestMergeKeepsBaseline(t *testing.T) {
	t.Parallel()

	got := Merge(
		catalog.FromStrings([]string{"A", "B"}),
		[]Candidate{{Name: "A", Group: "Uncategorized"}, {Name: "C", Group: "Uncategorized"}},
		"Uncategorized",
	)
	require.Equal(t, catalog.FromStrings([]string{"A", "B", "--- UNCATEGORIZED ---", "C"}), got)
}

func TestMergeGroupsAndSorts(t *testing.T) {
	t.Parallel()

	baseline := catalog.FromStrings([]string{"--- PRIMARY MISSIONS ---", "Minister Cho's Estate"})
	candidates := []Candidate{
		{Name: "Minister Cho's Estate", Group: "Shing Jea Island"},
		{Name: "Seek Out Brother Tosai", Group: "Shing Jea Island"},
		{Name: "Kill Them All", Group: "Uncategorized"},
		{Name: "Fullwidth Quest", Group: "Kaineng City"},
		{Name: "A Master's Burden", Group: "Kaineng City"},
		{Name: "Seek Out Brother Tosai", Group: "Kaineng City"},
		{Name: "Zen Daijun", Group: "Aardvark"},
	}
	got := Merge(baseline, candidates, "Uncategorized")
	require.Equal(t, catalog.FromStrings([]string{
		"--- PRIMARY MISSIONS ---",
		"Minister Cho's Estate",
		"--- AARDVARK ---",
		"Zen Daijun",
		"--- KAINENG CITY ---",
		"A Master's Burden",
		"Fullwidth Quest",
		"--- SHING JEA ISLAND ---",
		"Seek Out Brother Tosai",
		"--- UNCATEGORIZED ---",
		"Kill Them All",
	}), got)
}

// TestMergeSkipsGroupsEmptiedByBaseline checks no marker is emitted for a
// group whose names are all in the baseline.
func TestMergeSkipsGroupsEmptiedByBaseline(t *testing.T) {
	t.Parallel()

	got := Merge(
		catalog.FromStrings([]string{"Boreal Station"}),
		[]Candidate{{Name: "Boreal Station", Group: "Far Shiverpeaks"}},
		"Uncategorized",
	)
	require.Equal(t, catalog.FromStrings([]string{"Boreal Station"}), got)
}

// TestMergeFoldsLabelCase checks labels differing only in case share one
// section and the catch-all still sorts last.
func TestMergeFoldsLabelCase(t *testing.T) {
	t.Parallel()

	got := Merge(nil, []Candidate{
		{Name: "B1", Group: "uncategorized"},
		{Name: "A1", Group: "Uncategorized"},
		{Name: "Z1", Group: "zaishen"},
		{Name: "C1", Group: "Zaishen"},
	}, "Uncategorized")
	require.Equal(t, catalog.FromStrings([]string{
		"--- ZAISHEN ---", "C1", "Z1",
		"--- UNCATEGORIZED ---", "A1", "B1",
	}), got)
}

func TestMergeDoesNotAliasBaseline(t *testing.T) {
	t.Parallel()

	baseline := make([]catalog.Entry, 1, 4)
	baseline[0] = "A"
	got := Merge(baseline, []Candidate{{Name: "B", Group: "X"}}, "Uncategorized")
	got[0] = "changed"
	require.Equal(t, catalog.Entry("A"), baseline[0])
}
