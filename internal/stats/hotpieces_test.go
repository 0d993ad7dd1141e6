package stats

import "testing"

func TestTopKHotPiecesOrdersDescending(t *testing.T) {
	pieces := map[string]*pieceStat{
		"a": {PieceID: "a", Count: 1},
		"b": {PieceID: "b", Count: 9},
		"c": {PieceID: "c", Count: 5},
		"d": {PieceID: "d", Count: 3},
	}

	top := topKHotPieces(pieces, 2)
	if len(top) != 2 {
		t.Fatalf("expected 2 results, got %d", len(top))
	}
	if top[0].PieceID != "b" || top[1].PieceID != "c" {
		t.Errorf("top = %+v, want [b, c]", top)
	}
}

func TestTopKHotPiecesKLargerThanInput(t *testing.T) {
	pieces := map[string]*pieceStat{
		"a": {PieceID: "a", Count: 1},
	}
	top := topKHotPieces(pieces, 10)
	if len(top) != 1 {
		t.Fatalf("expected 1 result, got %d", len(top))
	}
}

func TestTopKHotPiecesZeroK(t *testing.T) {
	pieces := map[string]*pieceStat{"a": {PieceID: "a", Count: 1}}
	if top := topKHotPieces(pieces, 0); top != nil {
		t.Errorf("expected nil for k=0, got %+v", top)
	}
}
