package cursor

import (
	"testing"

	"github.com/graphd/queryengine/internal/domain/primitive"
)

func TestSplitJoinRoundTrip(t *testing.T) {
	cases := []string{
		"fixed:0-100:1,2,3",
		"fixed:0-100:1,2,3/2",
		"and:0-100:[producer:0][cache:stamp](fixed:0-100:1,2,3)(fixed:0-100:2,3,4)/1/resume=2",
	}
	for _, text := range cases {
		c := Split(text)
		if got := c.Join(); got != text {
			t.Fatalf("Split/Join round trip: got %q, want %q", got, text)
		}
	}
}

func TestSplitHonoursNestingDepth(t *testing.T) {
	text := "and:0-100:(fixed:0-100:1,2/3)(fixed:0-100:4,5)/7"
	c := Split(text)
	if c.Position != "7" {
		t.Fatalf("Position = %q, want 7 (the nested /3 must not be mistaken for a top-level separator)", c.Position)
	}
	if c.Set != "and:0-100:(fixed:0-100:1,2/3)(fixed:0-100:4,5)" {
		t.Fatalf("Set = %q", c.Set)
	}
}

func TestParseSetBasicFields(t *testing.T) {
	s, ok := ParseSet("fixed:~10-20:1,2,3")
	if !ok {
		t.Fatal("ParseSet returned ok=false")
	}
	if s.Kind != "fixed" || s.Forward || s.Low != 10 || s.High != 20 || s.Body != "1,2,3" {
		t.Fatalf("parsed %+v", s)
	}
}

func TestParseSetDefaultsHighToMax(t *testing.T) {
	s, ok := ParseSet("all:5:")
	if !ok {
		t.Fatal("ParseSet returned ok=false")
	}
	if s.Low != 5 {
		t.Fatalf("Low = %d, want 5", s.Low)
	}
	if s.High != primitive.Max {
		t.Fatalf("High = %d, want primitive.Max", s.High)
	}
}

func TestParseSetOptionsAndSubs(t *testing.T) {
	s, ok := ParseSet("and:0-100:[producer:1][cache:abc](fixed:0-100:1)(fixed:0-100:2)")
	if !ok {
		t.Fatal("ParseSet returned ok=false")
	}
	if s.Options["producer"] != "1" || s.Options["cache"] != "abc" {
		t.Fatalf("options = %+v", s.Options)
	}
	if len(s.Subs) != 2 || s.Subs[0] != "fixed:0-100:1" || s.Subs[1] != "fixed:0-100:2" {
		t.Fatalf("subs = %+v", s.Subs)
	}
}

func TestParseSetRejectsMissingColon(t *testing.T) {
	if _, ok := ParseSet("nocolonatall"); ok {
		t.Fatal("expected ok=false for a SET with no colon")
	}
}

func TestParseSetRejectsBadBound(t *testing.T) {
	if _, ok := ParseSet("fixed:notanumber:1,2"); ok {
		t.Fatal("expected ok=false for a non-numeric lower bound")
	}
}
