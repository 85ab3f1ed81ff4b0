package utils

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// ParseAddress parses a hex address, rejecting empty, malformed and zero addresses.
func ParseAddress(address string) (common.Address, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return common.Address{}, fmt.Errorf("address is empty")
	}
	if !common.IsHexAddress(address) {
		return common.Address{}, fmt.Errorf("invalid address %q", address)
	}
	addr := common.HexToAddress(address)
	if addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("zero address")
	}
	return addr, nil
}

// ShortAddress renders 0x1234...abcd for logs and notices.
func ShortAddress(addr common.Address) string {
	hex := addr.Hex()
	return hex[:6] + "..." + hex[len(hex)-4:]
}
