package domain

import "testing"

func TestDocTypeForPath(t *testing.T) {
	cases := []struct {
		path string
		want DocType
	}{
		{`C:\vault\bracket.SLDPRT`, DocTypePart},
		{"frame.sldasm", DocTypeAssembly},
		{"frame.SldAsm", DocTypeAssembly},
		{"plan.slddrw", DocTypeDrawing},
		{"notes.txt", DocTypeUnknown},
		{"archive.sldprt.bak", DocTypeUnknown},
		{"", DocTypeUnknown},
	}
	for _, tc := range cases {
		if got := DocTypeForPath(tc.path); got != tc.want {
			t.Fatalf("path %q: expected %s, got %s", tc.path, tc.want, got)
		}
	}
}

func TestNormalizePathIgnoresCase(t *testing.T) {
	a := NormalizePath("/vault/Projects/Bracket.SLDPRT")
	b := NormalizePath("/vault/projects/bracket.sldprt")
	if a != b {
		t.Fatalf("expected case variants to normalize equally, got %q and %q", a, b)
	}

	c := NormalizePath("/vault/./projects/../projects/bracket.sldprt")
	if c != b {
		t.Fatalf("expected cleaned path to normalize equally, got %q and %q", c, b)
	}
}

func TestIsUnresolvedCrossReference(t *testing.T) {
	cases := []struct {
		value string
		want  bool
	}{
		{`$PRP:"Description"`, true},
		{`$PRPSHEET:"PartNumber"`, true},
		{`  $PRP:"Material"`, true},
		{"Steel S355", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := IsUnresolvedCrossReference(tc.value); got != tc.want {
			t.Fatalf("value %q: expected %v, got %v", tc.value, tc.want, got)
		}
	}
}
