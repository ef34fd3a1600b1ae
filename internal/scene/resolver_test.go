package scene

import "testing"

func testElements() []Element {
	return []Element{
		{ID: "e1", Kind: KindGlyph, Content: "🍄 mushroom"},
		{ID: "e2", Kind: KindText, Content: "hello world"},
		{ID: "e3", Kind: KindGlyph, Content: "🍄"},
	}
}

func TestResolveSet_All(t *testing.T) {
	ids := ResolveSet(testElements(), TargetAll, "")
	if len(ids) != 3 {
		t.Fatalf("expected 3 ids, got %d", len(ids))
	}
	if ids[0] != "e1" || ids[2] != "e3" {
		t.Errorf("expected list order, got %v", ids)
	}
}

func TestResolveSet_Last(t *testing.T) {
	ids := ResolveSet(testElements(), TargetLast, "")
	if len(ids) != 1 || ids[0] != "e3" {
		t.Errorf("expected [e3], got %v", ids)
	}

	if ids := ResolveSet(nil, TargetLast, ""); ids != nil {
		t.Errorf("expected nil for empty list, got %v", ids)
	}
}

func TestResolveSet_MatchingReturnsAllMatches(t *testing.T) {
	ids := ResolveSet(testElements(), TargetMatching, "🍄")
	if len(ids) != 2 || ids[0] != "e1" || ids[1] != "e2" && ids[1] != "e3" {
		t.Fatalf("expected [e1 e3], got %v", ids)
	}
	if ids[1] != "e3" {
		t.Errorf("expected second match e3, got %v", ids)
	}
}

func TestResolveSet_MatchingIsCaseSensitive(t *testing.T) {
	ids := ResolveSet(testElements(), TargetMatching, "HELLO")
	if len(ids) != 0 {
		t.Errorf("case-sensitive match should find nothing, got %v", ids)
	}
}

func TestResolveOne_MatchingReturnsFirst(t *testing.T) {
	id, ok := ResolveOne(testElements(), TargetMatching, "🍄")
	if !ok || id != "e1" {
		t.Errorf("expected first match e1, got %s ok=%v", id, ok)
	}
}

func TestResolveOne_Last(t *testing.T) {
	id, ok := ResolveOne(testElements(), TargetLast, "")
	if !ok || id != "e3" {
		t.Errorf("expected e3, got %s ok=%v", id, ok)
	}

	if _, ok := ResolveOne(nil, TargetLast, ""); ok {
		t.Error("expected no resolution on empty list")
	}
}

func TestResolveOne_NoMatch(t *testing.T) {
	if _, ok := ResolveOne(testElements(), TargetMatching, "dragon"); ok {
		t.Error("expected miss for absent substring")
	}
}
