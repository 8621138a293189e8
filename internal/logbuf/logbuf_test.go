package logbuf

import (
	"fmt"
	"testing"
)

func TestWriteSplitsLines(t *testing.T) {
	r := New(10)
	fmt.Fprintf(r, "one\ntwo\nthr")
	if got := r.Len(); got != 2 {
		t.Fatalf("len = %d, want 2", got)
	}
	fmt.Fprintf(r, "ee\n")
	tail := r.Tail(10, 0)
	if len(tail) != 3 || tail[2] != "three" {
		t.Fatalf("tail = %v", tail)
	}
}

func TestRingEvictsOldest(t *testing.T) {
	r := New(3)
	for i := 1; i <= 5; i++ {
		fmt.Fprintf(r, "line%d\n", i)
	}
	tail := r.Tail(10, 0)
	want := []string{"line3", "line4", "line5"}
	if len(tail) != len(want) {
		t.Fatalf("tail = %v", tail)
	}
	for i := range want {
		if tail[i] != want[i] {
			t.Fatalf("tail[%d] = %q, want %q", i, tail[i], want[i])
		}
	}
}

func TestTailPagination(t *testing.T) {
	r := New(10)
	for i := 1; i <= 6; i++ {
		fmt.Fprintf(r, "line%d\n", i)
	}
	page := r.Tail(2, 2)
	if len(page) != 2 || page[0] != "line3" || page[1] != "line4" {
		t.Fatalf("page = %v", page)
	}
	if got := r.Tail(2, 10); len(got) != 0 {
		t.Fatalf("past-the-end page = %v", got)
	}
}

func TestRenderHTML(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"plain", "plain"},
		{"a <b> & c", "a &lt;b&gt; &amp; c"},
		{"\x1b[32mINF\x1b[0m hello", `<span style="color:green">INF</span> hello`},
		{"\x1b[1mbold\x1b[0m", `<span style="font-weight:bold">bold</span>`},
		{"\x1b[91munknown\x1b[0m", "unknown"},
	}
	for _, tc := range cases {
		if got := RenderHTML(tc.in); got != tc.want {
			t.Fatalf("RenderHTML(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
