package gateway

import (
	"encoding/hex"
	"fmt"
	"strings"
)

func parseHash(encoded string) ([32]byte, error) {
	var out [32]byte
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(encoded), "0x"))
	if err != nil {
		return out, fmt.Errorf("gateway: invalid identifier: %w", err)
	}
	if len(raw) != len(out) {
		return out, fmt.Errorf("gateway: identifier must be 32 bytes, got %d", len(raw))
	}
	copy(out[:], raw)
	return out, nil
}

func parseAddress(encoded string) ([20]byte, error) {
	var out [20]byte
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(encoded), "0x"))
	if err != nil {
		return out, fmt.Errorf("gateway: invalid address: %w", err)
	}
	if len(raw) != len(out) {
		return out, fmt.Errorf("gateway: address must be 20 bytes, got %d", len(raw))
	}
	copy(out[:], raw)
	return out, nil
}
