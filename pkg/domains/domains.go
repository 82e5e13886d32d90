package domains

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mr-tron/base58"
)

// DomainList contains the list of supported transfer domain IDs
var DomainList = []uint32{
	0, // Ethereum
	1, // Avalanche
	2, // Optimism
	3, // Arbitrum
	5, // Solana
	6, // Base
	7, // Polygon
}

// domainNames maps domain IDs to their names
var domainNames = map[uint32]string{
	0: "ETHEREUM",
	1: "AVALANCHE",
	2: "OPTIMISM",
	3: "ARBITRUM",
	5: "SOLANA",
	6: "BASE",
	7: "POLYGON",
}

// evmDomains marks the domains whose addresses are 20-byte hex
var evmDomains = map[uint32]bool{
	0: true,
	1: true,
	2: true,
	3: true,
	5: false,
	6: true,
	7: true,
}

// GetDomainName returns the name of the domain for a given domain ID
func GetDomainName(domain uint32) string {
	name, exists := domainNames[domain]
	if !exists {
		return ""
	}
	return name
}

// IsSupported returns whether the domain ID is a known transfer domain
func IsSupported(domain uint32) bool {
	_, exists := domainNames[domain]
	return exists
}

// IsEVM returns whether addresses on the domain are EVM-style
func IsEVM(domain uint32) bool {
	return evmDomains[domain]
}

// ValidateAddress checks that addr is well formed for the given domain.
// EVM domains take 20-byte hex addresses, Solana takes base58-encoded
// 32-byte public keys.
func ValidateAddress(domain uint32, addr string) error {
	if !IsSupported(domain) {
		return fmt.Errorf("unsupported domain %d", domain)
	}
	if IsEVM(domain) {
		if !common.IsHexAddress(addr) {
			return fmt.Errorf("invalid address %q for domain %s", addr, GetDomainName(domain))
		}
		return nil
	}
	raw, err := base58.Decode(addr)
	if err != nil || len(raw) != 32 {
		return fmt.Errorf("invalid address %q for domain %s", addr, GetDomainName(domain))
	}
	return nil
}
