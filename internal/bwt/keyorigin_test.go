package bwt

import "testing"

func TestKeyOriginLabelRoundTrip(t *testing.T) {
	cases := []KeyOrigin{
		Standalone(),
		DescriptorOrigin("abc12345", 0),
		DescriptorOrigin("abc12345", 7),
		DescriptorOrigin("zzzzzzzz", 4294967295),
	}
	for _, origin := range cases {
		label := origin.Label()
		got, ok := ParseLabel(label)
		if !ok {
			t.Fatalf("ParseLabel(%q) failed to parse its own Label() output", label)
		}
		if got != origin {
			t.Errorf("round trip mismatch: %+v -> %q -> %+v", origin, label, got)
		}
	}
}

func TestParseLabelRejectsForeignLabels(t *testing.T) {
	cases := []string{
		"other-app",
		"bwt/",
		"bwt/abc12345",
		"bwt/abc12345/notanumber",
		"bwt/abc12345/7/extra",
		"",
		"/bwt/abc12345/7",
	}
	for _, label := range cases {
		if _, ok := ParseLabel(label); ok {
			t.Errorf("ParseLabel(%q) unexpectedly succeeded", label)
		}
	}
}

func TestParseLabelStandalone(t *testing.T) {
	origin, ok := ParseLabel("bwt")
	if !ok || origin.Kind != KindStandalone {
		t.Fatalf("expected standalone origin, got %+v ok=%v", origin, ok)
	}
}

func TestRescanSince(t *testing.T) {
	now := RescanNow()
	if !now.IsNow() {
		t.Error("RescanNow().IsNow() should be true")
	}

	at := RescanAt(1700000000)
	if at.IsNow() {
		t.Error("RescanAt(...).IsNow() should be false")
	}
	if at.Timestamp() != 1700000000 {
		t.Errorf("Timestamp() = %d, want 1700000000", at.Timestamp())
	}
}
