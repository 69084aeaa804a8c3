package predicate

import "sort"

// Patch replaces src[Start:End] with Text. Patches are expressed in the
// coordinates of the original source text, the way textbuilder.make_patch
// produces a Replacer keyed on the pre-rewrite document rather than on any
// intermediate parse tree, so splicing never disturbs bytes outside the
// patched ranges — comments, whitespace, and string literals included.
type Patch struct {
	Start, End int
	Text       string
}

// ApplyPatches returns src with every patch applied, left to right.
// Overlapping patches are rejected by simply keeping the first and dropping
// any later one that would overlap it, since two renames should never touch
// the same identifier span.
func ApplyPatches(src string, patches []Patch) string {
	if len(patches) == 0 {
		return src
	}
	sorted := make([]Patch, len(patches))
	copy(sorted, patches)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	out := make([]byte, 0, len(src))
	cursor := 0
	for _, p := range sorted {
		if p.Start < cursor {
			continue // overlaps the previous patch; keep the earlier one
		}
		out = append(out, src[cursor:p.Start]...)
		out = append(out, p.Text...)
		cursor = p.End
	}
	out = append(out, src[cursor:]...)
	return string(out)
}
