// Package ledger plans appends to a frame's output version history.
//
// A frame's outputs are an append-only list of versions indexed from 1 with
// no gaps. The flattened view is the concatenation of every version's keys in
// index order and is never reordered or deduplicated. Frames that predate
// versioning carry only the flat list; the first append seeds version 1 from it.
package ledger

import (
	"fmt"
)

// Version is one completed batch of output keys.
type Version struct {
	Index int
	Keys  []string
}

// Plan describes the versions to insert and the resulting flattened view.
type Plan struct {
	Added     []Version
	Versions  []Version
	Flattened []string
}

// NextIndex returns count(existing)+1.
func NextIndex(existing []Version) int {
	return len(existing) + 1
}

// Append computes the versions created by appending outputs. When existing is
// empty and legacy holds keys, version 1 is seeded from legacy and outputs
// become version 2.
func Append(existing []Version, legacy []string, outputs []string) (Plan, error) {
	if err := Validate(existing); err != nil {
		return Plan{}, err
	}

	versions := make([]Version, 0, len(existing)+2)
	for _, v := range existing {
		versions = append(versions, Version{Index: v.Index, Keys: copyKeys(v.Keys)})
	}

	var added []Version
	if len(versions) == 0 && len(legacy) > 0 {
		seed := Version{Index: 1, Keys: copyKeys(legacy)}
		versions = append(versions, seed)
		added = append(added, seed)
	}

	next := Version{Index: NextIndex(versions), Keys: copyKeys(outputs)}
	versions = append(versions, next)
	added = append(added, next)

	return Plan{
		Added:     added,
		Versions:  versions,
		Flattened: Flatten(versions),
	}, nil
}

// Flatten concatenates version keys in index order. Versions must already be
// sorted by index.
func Flatten(versions []Version) []string {
	total := 0
	for _, v := range versions {
		total += len(v.Keys)
	}
	out := make([]string, 0, total)
	for _, v := range versions {
		out = append(out, v.Keys...)
	}
	return out
}

// Validate checks that indices run 1..N in order.
func Validate(versions []Version) error {
	for i, v := range versions {
		if v.Index != i+1 {
			return fmt.Errorf("ledger: version at position %d has index %d, want %d", i, v.Index, i+1)
		}
	}
	return nil
}

// VersionOf returns the 1-based version holding the flattened position pos.
func VersionOf(versions []Version, pos int) (int, bool) {
	if pos < 0 {
		return 0, false
	}
	for _, v := range versions {
		if pos < len(v.Keys) {
			return v.Index, true
		}
		pos -= len(v.Keys)
	}
	return 0, false
}

func copyKeys(keys []string) []string {
	out := make([]string, len(keys))
	copy(out, keys)
	return out
}
