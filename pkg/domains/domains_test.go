package domains

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetDomainName(t *testing.T) {
	require.Equal(t, "ETHEREUM", GetDomainName(0))
	require.Equal(t, "SOLANA", GetDomainName(5))
	require.Equal(t, "", GetDomainName(42))
}

func TestValidateAddress(t *testing.T) {
	tests := []struct {
		name    string
		domain  uint32
		addr    string
		wantErr bool
	}{
		{
			name:   "evm_checksummed",
			domain: 0,
			addr:   "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
		},
		{
			name:   "evm_lowercase",
			domain: 6,
			addr:   "0x833589fcd6edb6e08f4c7c32d4f71b54bda02913",
		},
		{
			name:    "evm_too_short",
			domain:  0,
			addr:    "0x833589fcd6edb6e08f4c7c32d4f71b",
			wantErr: true,
		},
		{
			name:    "evm_not_hex",
			domain:  3,
			addr:    "not-an-address",
			wantErr: true,
		},
		{
			name:   "solana_base58",
			domain: 5,
			addr:   "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
		},
		{
			name:    "solana_hex_rejected",
			domain:  5,
			addr:    "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
			wantErr: true,
		},
		{
			name:    "solana_truncated",
			domain:  5,
			addr:    "EPjFWdd5AufqSSqeM2qN1xzybapC8G4",
			wantErr: true,
		},
		{
			name:    "unknown_domain",
			domain:  99,
			addr:    "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAddress(tt.domain, tt.addr)
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}
