// Package diff computes line-tagged edit scripts between two text buffers.
package diff

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Op tags a line in an edit script.
type Op byte

const (
	// Equal marks a line present in both buffers.
	Equal Op = ' '
	// Delete marks a line removed from the previous buffer.
	Delete Op = '-'
	// Insert marks a line added in the next buffer.
	Insert Op = '+'
)

// Line is one tagged line of an edit script.
type Line struct {
	Op   Op     `json:"op"`
	Text string `json:"text"`
}

// String renders the line with its tag prefix, e.g. "+x".
func (l Line) String() string {
	return string(l.Op) + l.Text
}

// Script is an ordered edit script.
type Script []Line

// Lines runs the greedy single-pass diff over two line sequences.
//
// It looks one line ahead on each side and never backtracks, so it is O(n+m)
// but not minimal under reordering. Keeping Equal and Insert lines always
// reproduces b.
func Lines(a, b []string) Script {
	out := make(Script, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) || j < len(b) {
		switch {
		case i >= len(a):
			out = append(out, Line{Op: Insert, Text: b[j]})
			j++
		case j >= len(b):
			out = append(out, Line{Op: Delete, Text: a[i]})
			i++
		case a[i] == b[j]:
			out = append(out, Line{Op: Equal, Text: a[i]})
			i++
			j++
		case i+1 < len(a) && a[i+1] == b[j]:
			out = append(out, Line{Op: Delete, Text: a[i]})
			i++
		case j+1 < len(b) && b[j+1] == a[i]:
			out = append(out, Line{Op: Insert, Text: b[j]})
			j++
		default:
			out = append(out, Line{Op: Delete, Text: a[i]}, Line{Op: Insert, Text: b[j]})
			i++
			j++
		}
	}
	return out
}

// Compute splits both buffers on newlines and runs Lines.
func Compute(prev, next string) Script {
	return Lines(splitLines(prev), splitLines(next))
}

// Minimal computes a line-mode diff with diffmatchpatch. It is slower than
// Compute but does not degrade on moved or reordered blocks.
func Minimal(prev, next string) Script {
	a, b := splitLines(prev), splitLines(next)
	dmp := diffmatchpatch.New()
	chars1, chars2, lineArray := dmp.DiffLinesToChars(joinTerminated(a), joinTerminated(b))
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(chars1, chars2, false), lineArray)

	out := make(Script, 0, len(a)+len(b))
	for _, d := range diffs {
		op := Equal
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			op = Delete
		case diffmatchpatch.DiffInsert:
			op = Insert
		}
		text := strings.TrimSuffix(d.Text, "\n")
		for _, line := range strings.Split(text, "\n") {
			out = append(out, Line{Op: op, Text: line})
		}
	}
	return out
}

// Reconstruct rebuilds the next buffer's lines from the script.
func (s Script) Reconstruct() []string {
	out := make([]string, 0, len(s))
	for _, l := range s {
		if l.Op != Delete {
			out = append(out, l.Text)
		}
	}
	return out
}

// Stats counts inserted and deleted lines.
func (s Script) Stats() (added, removed int) {
	for _, l := range s {
		switch l.Op {
		case Insert:
			added++
		case Delete:
			removed++
		}
	}
	return added, removed
}

// Changed reports whether the script contains any edit.
func (s Script) Changed() bool {
	added, removed := s.Stats()
	return added+removed > 0
}

// Tagged returns each line rendered with its tag prefix.
func (s Script) Tagged() []string {
	out := make([]string, len(s))
	for i, l := range s {
		out[i] = l.String()
	}
	return out
}

// String renders the script one tagged line per row.
func (s Script) String() string {
	return strings.Join(s.Tagged(), "\n")
}

func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}

func joinTerminated(lines []string) string {
	var b strings.Builder
	for _, l := range lines {
		b.WriteString(l)
		b.WriteByte('\n')
	}
	return b.String()
}
