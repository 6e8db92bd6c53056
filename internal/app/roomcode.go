package app

import (
	"crypto/rand"
	"strings"
)

// RoomCodeLength is the number of characters in a join code.
const RoomCodeLength = 6

// Ambiguous glyphs (0, O, 1, I) are left out. The alphabet has exactly 32
// symbols so a masked random byte maps onto it without bias.
const roomCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// GenerateRoomCode returns a random join code.
func GenerateRoomCode() (string, error) {
	buf := make([]byte, RoomCodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = roomCodeAlphabet[b&31]
	}
	return string(buf), nil
}

// NormalizeRoomCode makes user-typed codes comparable.
func NormalizeRoomCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
