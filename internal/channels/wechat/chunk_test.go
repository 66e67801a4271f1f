package wechat

import (
	"strings"
	"testing"
)

func TestSplitMessage(t *testing.T) {
	t.Run("whitespace only yields nothing", func(t *testing.T) {
		for _, text := range []string{"", "   ", "\n\t  \n"} {
			if got := SplitMessage(text, 100, ChunkModeLine); got != nil {
				t.Errorf("SplitMessage(%q) = %v, want nil", text, got)
			}
		}
	})

	t.Run("short text is one chunk", func(t *testing.T) {
		got := SplitMessage("hello", 100, ChunkModeLine)
		if len(got) != 1 || got[0] != "hello" {
			t.Errorf("got %v", got)
		}
	})

	t.Run("length mode hard cut", func(t *testing.T) {
		got := SplitMessage("abcdefghij", 4, ChunkModeLength)
		want := []string{"abcd", "efgh", "ij"}
		if len(got) != len(want) {
			t.Fatalf("got %d chunks %v", len(got), got)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("chunk %d = %q, want %q", i, got[i], want[i])
			}
		}
	})

	t.Run("line mode breaks at newline past midpoint", func(t *testing.T) {
		text := "first line\nsecond line that continues"
		got := SplitMessage(text, 16, ChunkModeLine)
		if got[0] != "first line\n" {
			t.Errorf("chunk 0 = %q, want break after newline", got[0])
		}
	})

	t.Run("line mode ignores early newline", func(t *testing.T) {
		// Newline at index 2 is before the midpoint of limit 10,
		// so the cut is a hard cut at the limit.
		text := "ab\ncdefghijklmno"
		got := SplitMessage(text, 10, ChunkModeLine)
		if got[0] != "ab\ncdefghi" {
			t.Errorf("chunk 0 = %q, want hard cut", got[0])
		}
	})

	t.Run("reassembly is lossless", func(t *testing.T) {
		text := strings.Repeat("line of text here\n", 500)
		got := SplitMessage(text, 2000, ChunkModeLine)
		if len(got) < 2 {
			t.Fatalf("expected multiple chunks, got %d", len(got))
		}
		if strings.Join(got, "") != text {
			t.Error("chunks do not reassemble to the input")
		}
		for i, chunk := range got {
			if len(chunk) > 2000 {
				t.Errorf("chunk %d exceeds limit: %d bytes", i, len(chunk))
			}
		}
	})

	t.Run("deterministic", func(t *testing.T) {
		text := strings.Repeat("abc def\n", 100)
		a := SplitMessage(text, 50, ChunkModeLine)
		b := SplitMessage(text, 50, ChunkModeLine)
		if len(a) != len(b) {
			t.Fatal("chunk counts differ between runs")
		}
		for i := range a {
			if a[i] != b[i] {
				t.Errorf("chunk %d differs between runs", i)
			}
		}
	})
}
