// Package logbuf keeps a bounded ring of recent log lines in memory so the
// HTTP API can serve a tail of the agent's console output.
package logbuf

import (
	"bytes"
	"fmt"
	"html"
	"strings"
	"sync"
)

const defaultCapacity = 1000

// Ring is an io.Writer that retains the most recent complete lines. It is
// meant to sit in a zerolog MultiLevelWriter next to the console writer, so
// the retained lines carry the console writer's ANSI coloring.
type Ring struct {
	mu      sync.Mutex
	lines   []string
	next    int
	full    bool
	partial bytes.Buffer
}

// New creates a ring holding up to capacity lines. capacity <= 0 uses the
// default of 1000.
func New(capacity int) *Ring {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &Ring{lines: make([]string, capacity)}
}

// Write appends p, splitting on newlines. A trailing fragment without a
// newline is buffered until the rest of the line arrives.
func (r *Ring) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.partial.Write(p)
	for {
		data := r.partial.Bytes()
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			break
		}
		r.push(string(data[:i]))
		r.partial.Next(i + 1)
	}
	return len(p), nil
}

func (r *Ring) push(line string) {
	r.lines[r.next] = line
	r.next++
	if r.next == len(r.lines) {
		r.next = 0
		r.full = true
	}
}

// Len returns how many lines are retained.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.full {
		return len(r.lines)
	}
	return r.next
}

// Tail returns up to limit lines ending offset lines before the newest one,
// newest last. offset 0 is the live tail.
func (r *Ring) Tail(limit, offset int) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	size := r.next
	if r.full {
		size = len(r.lines)
	}
	end := size - offset
	if end <= 0 || limit <= 0 {
		return []string{}
	}
	start := end - limit
	if start < 0 {
		start = 0
	}
	out := make([]string, 0, end-start)
	for i := start; i < end; i++ {
		idx := i
		if r.full {
			idx = (r.next + i) % len(r.lines)
		}
		out = append(out, r.lines[idx])
	}
	return out
}

// sgrColors maps the SGR codes zerolog's console writer emits.
var sgrColors = map[string]string{
	"30": "black", "31": "red", "32": "green", "33": "yellow",
	"34": "blue", "35": "magenta", "36": "cyan", "37": "white",
	"90": "gray",
}

// RenderHTML converts one ANSI-colored line to an HTML fragment. Color and
// bold SGR sequences become spans, everything else is escaped text.
func RenderHTML(line string) string {
	var b strings.Builder
	open := 0
	for {
		i := strings.Index(line, "\x1b[")
		if i < 0 {
			break
		}
		b.WriteString(html.EscapeString(line[:i]))
		line = line[i+2:]
		j := strings.IndexByte(line, 'm')
		if j < 0 {
			// Truncated escape, drop the rest.
			line = ""
			break
		}
		codes := line[:j]
		line = line[j+1:]
		for _, code := range strings.Split(codes, ";") {
			switch {
			case code == "0" || code == "":
				for ; open > 0; open-- {
					b.WriteString("</span>")
				}
			case code == "1":
				b.WriteString(`<span style="font-weight:bold">`)
				open++
			default:
				if color, ok := sgrColors[code]; ok {
					fmt.Fprintf(&b, `<span style="color:%s">`, color)
					open++
				}
			}
		}
	}
	b.WriteString(html.EscapeString(line))
	for ; open > 0; open-- {
		b.WriteString("</span>")
	}
	return b.String()
}
