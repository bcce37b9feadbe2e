package modules

import (
	"regexp"
	"sort"
	"strings"
)

// Edit replaces text[Start:End] with Text.
type Edit struct {
	Start int
	End   int
	Text  string
}

// ApplyEdits applies edits to text in a single pass. Edits are ordered by
// descending start offset, later discoveries first on ties, and each edit's
// end is clamped to the start of the edit applied before it. Overlapping
// edits therefore never resurrect text already replaced.
func ApplyEdits(text string, edits []Edit) string {
	if len(edits) == 0 {
		return text
	}

	ordered := make([]Edit, len(edits))
	copy(ordered, edits)
	for i, j := 0, len(ordered)-1; i < j; i, j = i+1, j-1 {
		ordered[i], ordered[j] = ordered[j], ordered[i]
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Start > ordered[j].Start
	})

	cursor := len(text)
	size := len(text)
	for i := range ordered {
		e := &ordered[i]
		e.Start = clamp(e.Start, 0, cursor)
		e.End = clamp(e.End, e.Start, cursor)
		cursor = e.Start
		size += len(e.Text) - (e.End - e.Start)
	}

	var b strings.Builder
	b.Grow(size)
	prev := 0
	for i := len(ordered) - 1; i >= 0; i-- {
		e := ordered[i]
		b.WriteString(text[prev:e.Start])
		b.WriteString(e.Text)
		prev = e.End
	}
	b.WriteString(text[prev:])
	return b.String()
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

var sourceMapURL = regexp.MustCompile(`\n//# sourceMappingURL=\S+`)

// RemoveSourceMapURLs strips source map markers from code that is about to
// be spliced into another module.
func RemoveSourceMapURLs(code string) string {
	return sourceMapURL.ReplaceAllString(code, "")
}
