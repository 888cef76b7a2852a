package strutil

import (
	"reflect"
	"testing"
)

func TestTopKeywords(t *testing.T) {
	text := "Dinosaurs! I love dinosaurs. The biggest dinosaurs ate plants, and plants grew tall."
	got := TopKeywords(text, 3)

	if len(got) != 3 {
		t.Fatalf("expected 3 keywords, got %v", got)
	}
	if got[0] != "dinosaurs" {
		t.Errorf("most frequent keyword should be dinosaurs, got %v", got)
	}

	if kw := TopKeywords("", 5); len(kw) != 0 {
		t.Errorf("empty text should yield no keywords, got %v", kw)
	}
	if kw := TopKeywords("anything", 0); kw != nil {
		t.Errorf("n=0 should yield nil, got %v", kw)
	}
}

func TestTopKeywordsDeterministic(t *testing.T) {
	text := "apple banana cherry apple banana cherry"
	first := TopKeywords(text, 3)
	for i := 0; i < 5; i++ {
		if next := TopKeywords(text, 3); !reflect.DeepEqual(first, next) {
			t.Fatalf("keyword order not deterministic: %v vs %v", first, next)
		}
	}
}

func TestContainsAny(t *testing.T) {
	phrases := []string{"i don't get it", "confused"}

	if !ContainsAny("I'm so confused right now", phrases) {
		t.Error("expected match on single word phrase")
	}
	if !ContainsAny("Honestly, I don't get it at all", phrases) {
		t.Error("expected match on multi word phrase")
	}
	if ContainsAny("this is easy", phrases) {
		t.Error("unexpected match")
	}
}
