package evm

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// ParseMarketID decodes a market identifier into the fixed-length byte
// string the contract expects. An optional 0x prefix is stripped first.
func ParseMarketID(s string) ([32]byte, error) {
	var id [32]byte

	raw, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return id, fmt.Errorf("evm: market id %q is not hex: %w", s, err)
	}
	if len(raw) != 32 {
		return id, fmt.Errorf("evm: market id %q is %d bytes, want 32", s, len(raw))
	}

	copy(id[:], raw)
	return id, nil
}
