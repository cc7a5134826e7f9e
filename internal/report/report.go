// Package report renders analysis results for the terminal: per-value
// dumps, coverage summaries, opaque statistics and miss lists.
package report

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"

	"typelift/internal/typegraph"
)

var (
	labelColor = color.New(color.FgCyan, color.Bold)
	missColor  = color.New(color.FgYellow)
)

// Dump writes one line per value: `scope, name, { types }`. Module-level
// values print `(global)` as their scope. Value names are padded to a
// shared column so large dumps stay scannable.
func Dump(w io.Writer, entries []typegraph.Entry) {
	nameWidth := 0
	for _, e := range entries {
		if width := runewidth.StringWidth(e.Name); width > nameWidth {
			nameWidth = width
		}
	}
	if nameWidth > 40 {
		nameWidth = 40
	}

	for _, e := range entries {
		scope := e.Scope
		if scope == "" {
			scope = "(global)"
		}
		pad := ""
		if n := nameWidth - runewidth.StringWidth(e.Name); n > 0 {
			pad = spaces(n)
		}
		fmt.Fprintf(w, "%s, %s,%s { ", scope, e.Name, pad)
		for i, ty := range e.Types {
			if i > 0 {
				fmt.Fprint(w, ", ")
			}
			fmt.Fprint(w, ty)
		}
		fmt.Fprintln(w, " }")
	}
}

func spaces(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = ' '
	}
	return string(b)
}

// Coverage writes the three-line coverage summary.
func Coverage(w io.Writer, cov typegraph.Coverage, colored bool) {
	printLabel := fmt.Sprint
	if colored {
		printLabel = labelColor.Sprint
	}
	fmt.Fprintf(w, "%s %d\n", printLabel("total count:"), cov.Total)
	fmt.Fprintf(w, "%s %d\n", printLabel("cover count:"), cov.Covered)
	fmt.Fprintf(w, "%s %.2f%%\n", printLabel("coverage:"), cov.Percent())
}

// Stats writes the opaque-value statistics.
func Stats(w io.Writer, total, opaque int) {
	fmt.Fprintf(w, "total: %d, opaque: %d\n", total, opaque)
}

// Misses writes the values that have no recorded type set at all.
func Misses(w io.Writer, misses []typegraph.Entry, colored bool) {
	tag := "[MISS]"
	if colored {
		tag = missColor.Sprint(tag)
	}
	for _, e := range misses {
		if e.Scope == "" {
			fmt.Fprintf(w, "%s %s\n", tag, e.Name)
			continue
		}
		fmt.Fprintf(w, "%s %s in %s\n", tag, e.Name, e.Scope)
	}
	fmt.Fprintf(w, "total: %d\n", len(misses))
}
