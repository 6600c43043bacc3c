package chunk

import (
	"strings"
	"testing"
)

func words(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = "w" + string(rune('a'+i%26))
	}
	return strings.Join(parts, " ")
}

func TestSplit(t *testing.T) {
	cases := []struct {
		name    string
		text    string
		size    int
		overlap int
		want    int
	}{
		{"empty", "", 10, 2, 0},
		{"whitespace only", "   \n\t ", 10, 2, 0},
		{"fits one window", "a b c", 10, 2, 1},
		{"exact window", words(10), 10, 2, 1},
		{"two windows", words(15), 10, 2, 2},
		{"many windows", words(100), 10, 2, 13},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Split(tc.text, tc.size, tc.overlap)
			if len(got) != tc.want {
				t.Fatalf("Split produced %d chunks, want %d: %q", len(got), tc.want, got)
			}
			for _, c := range got {
				if n := len(strings.Fields(c)); n > tc.size {
					t.Errorf("chunk has %d tokens, budget %d", n, tc.size)
				}
			}
		})
	}
}

func TestSplitOverlapClamped(t *testing.T) {
	// overlap >= size clamps to size/4, so the window still advances
	got := Split(words(30), 8, 8)
	if len(got) == 0 {
		t.Fatal("no chunks")
	}
	first := strings.Fields(got[0])
	second := strings.Fields(got[1])
	if len(first) != 8 {
		t.Fatalf("first window = %d tokens", len(first))
	}
	// stride is size - size/4 = 6, so 2 tokens repeat
	if first[6] != second[0] || first[7] != second[1] {
		t.Errorf("overlap seed mismatch: %v / %v", first, second)
	}
}

func TestSplitReconstructs(t *testing.T) {
	text := words(57)
	size, overlap := 10, 3
	chunks := Split(text, size, overlap)

	var rebuilt []string
	for i, c := range chunks {
		tokens := strings.Fields(c)
		if i > 0 {
			tokens = tokens[overlap:]
		}
		rebuilt = append(rebuilt, tokens...)
	}
	if got := strings.Join(rebuilt, " "); got != text {
		t.Errorf("reconstruction drifted:\n%q\n%q", got, text)
	}
}

func TestSplitElementsPacks(t *testing.T) {
	elements := []string{
		"alpha beta gamma",
		"delta epsilon",
		"zeta eta theta iota",
	}
	got := SplitElements(elements, 100, 10)
	if len(got) != 1 {
		t.Fatalf("small elements should pack into one chunk, got %d", len(got))
	}
	if got[0] != "alpha beta gamma delta epsilon zeta eta theta iota" {
		t.Errorf("packed chunk = %q", got[0])
	}
}

func TestSplitElementsBudget(t *testing.T) {
	elements := []string{words(6), words(6), words(6)}
	got := SplitElements(elements, 10, 2)
	if len(got) < 2 {
		t.Fatalf("expected a flush, got %d chunks", len(got))
	}
	// second chunk starts with the 2-token seed carried over from the first
	firstTail := strings.Fields(got[0])
	firstTail = firstTail[len(firstTail)-2:]
	secondHead := strings.Fields(got[1])[:2]
	if firstTail[0] != secondHead[0] || firstTail[1] != secondHead[1] {
		t.Errorf("overlap seed mismatch: %v vs %v", firstTail, secondHead)
	}
}

func TestSplitElementsOversized(t *testing.T) {
	got := SplitElements([]string{"tiny", words(50)}, 10, 2)
	if len(got) < 6 {
		t.Fatalf("oversized element should fall back to sliding windows, got %d chunks", len(got))
	}
	if got[0] != "tiny" {
		t.Errorf("pending chunk should flush before the oversized element, got %q", got[0])
	}
	for _, c := range got {
		if n := len(strings.Fields(c)); n > 10 {
			t.Errorf("chunk has %d tokens, budget 10", n)
		}
	}
}

func TestSplitElementsSkipsEmpty(t *testing.T) {
	got := SplitElements([]string{"", "  ", "only one"}, 10, 0)
	if len(got) != 1 || got[0] != "only one" {
		t.Errorf("got %q", got)
	}
}

func TestWordsCounter(t *testing.T) {
	if n := (Words{}).Count("one two  three\nfour"); n != 4 {
		t.Errorf("Count = %d", n)
	}
}
