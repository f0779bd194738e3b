package textutil

import (
	"reflect"
	"testing"
)

func TestPlainText(t *testing.T) {
	cases := map[string]string{
		"  221B <b>Baker</b>\tStreet ":    "221B Baker Street",
		"<script>alert(1)</script>Flat 4": "Flat 4",
		"Smith & Sons":                    "Smith & Sons",
		"line1\nline2":                    "line1 line2",
	}
	for in, want := range cases {
		if got := PlainText(in, 0); got != want {
			t.Fatalf("PlainText(%q) = %q, want %q", in, got, want)
		}
	}
	if got := PlainText("abcdef", 3); got != "abc" {
		t.Fatalf("expected truncation, got %q", got)
	}
}

func TestNormalizeCode(t *testing.T) {
	cases := map[string]string{
		" save10 ":   "SAVE10",
		"ＷＥＬＣＯＭＥ": "WELCOME",
		"new year":   "NEWYEAR",
	}
	for in, want := range cases {
		if got := NormalizeCode(in); got != want {
			t.Fatalf("NormalizeCode(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDigits(t *testing.T) {
	if got := Digits("+91 98765-43210"); got != "919876543210" {
		t.Fatalf("unexpected digits %q", got)
	}
}

func TestNormalizeStringMap(t *testing.T) {
	got := NormalizeStringMap(map[string]string{" awb ": " 123 ", "": "x", "empty": " "})
	if !reflect.DeepEqual(got, map[string]string{"awb": "123"}) {
		t.Fatalf("unexpected map %#v", got)
	}
	if NormalizeStringMap(nil) != nil {
		t.Fatalf("expected nil for nil input")
	}
}
