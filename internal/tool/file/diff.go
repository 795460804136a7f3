package file

import (
	"strings"

	"github.com/Cyclone1070/coda/internal/tool"
	"github.com/pmezard/go-difflib/difflib"
)

// pathResolver maps a tool path to its absolute and workspace-relative forms.
type pathResolver interface {
	Resolve(path string) (abs, rel string, err error)
}

func unifiedDiff(rel, oldContent, newContent string) tool.DiffDisplay {
	ud := difflib.UnifiedDiff{
		A:        difflib.SplitLines(oldContent),
		B:        difflib.SplitLines(newContent),
		FromFile: "a/" + rel,
		ToFile:   "b/" + rel,
		Context:  3,
	}
	diff, _ := difflib.GetUnifiedDiffString(ud)

	display := tool.DiffDisplay{Diff: diff}
	for _, line := range strings.Split(diff, "\n") {
		switch {
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
		case strings.HasPrefix(line, "+"):
			display.AddedLines++
		case strings.HasPrefix(line, "-"):
			display.RemovedLines++
		}
	}
	return display
}
