package app

import (
	"strings"
	"testing"
)

func TestGenerateRoomCodeUsesUnambiguousAlphabet(t *testing.T) {
	for i := 0; i < 200; i++ {
		code, err := GenerateRoomCode()
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if len(code) != RoomCodeLength {
			t.Fatalf("unexpected length %q", code)
		}
		if strings.ContainsAny(code, "01IO") {
			t.Fatalf("ambiguous glyph in %q", code)
		}
		if strings.Trim(code, roomCodeAlphabet) != "" {
			t.Fatalf("code %q outside alphabet", code)
		}
	}
}

func TestNormalizeRoomCode(t *testing.T) {
	if got := NormalizeRoomCode("  ab3k9z "); got != "AB3K9Z" {
		t.Fatalf("got %q", got)
	}
}
