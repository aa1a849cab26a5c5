// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package registry assigns the well-known addresses of the market protocol
// services and tracks which service a host has mounted at each of them.
package registry

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/luxfi/geth/common"
)

// ============================================================================
// MARKET ADDRESS SCHEME - Aligned with LP Numbering (LP-0099)
// ============================================================================
//
// Market services use trailing-significant 20-byte addresses:
//   Format: 0x0000000000000000000000000000000000PCII
//
// The selector encodes:
//   0x 0000...0000 P C II
//                  │ │ └┴─ Service item (8 bits)
//                  │ └──── Chain slot   (4 bits)
//                  └────── Family page  (P=9 → LP-9xxx, DEX/Markets)
//
// C=1 is the primary EVM chain; other slots are reserved for app chains
// that mount the same services.

const (
	// Core services (II = 0x00-0x0F)
	AMMEngineAddress   = "0x0000000000000000000000000000000000009100" // LP-9100
	PriceOracleAddress = "0x0000000000000000000000000000000000009101" // LP-9101
	FlashLenderAddress = "0x0000000000000000000000000000000000009102" // LP-9102
	ArbExecutorAddress = "0x0000000000000000000000000000000000009103" // LP-9103

	// Protocol funds (II = 0x10-0x1F)
	TreasuryAddress      = "0x0000000000000000000000000000000000009110" // LP-9110
	InsuranceFundAddress = "0x0000000000000000000000000000000000009111" // LP-9111

	// BurnAddress permanently holds assets removed from circulation, the
	// minimum-liquidity lock included.
	BurnAddress = "0x0000000000000000000000000000000000000001"
)

// AddressRange is a continuous, inclusive range of addresses.
type AddressRange struct {
	Start common.Address
	End   common.Address
}

// Contains returns true iff addr falls within the range.
func (a *AddressRange) Contains(addr common.Address) bool {
	return !less(addr, a.Start) && !less(a.End, addr)
}

func less(a, b common.Address) bool {
	return bytes.Compare(a.Bytes(), b.Bytes()) < 0
}

// Reserved ranges for market services. Hosts must not mount anything
// outside them.
var reservedRanges = []AddressRange{
	// LP-9xxx: DEX/Markets
	{
		Start: common.HexToAddress("0x0000000000000000000000000000000000009000"),
		End:   common.HexToAddress("0x0000000000000000000000000000000000009fff"),
	},
	// Burn sentinel
	{
		Start: common.HexToAddress(BurnAddress),
		End:   common.HexToAddress(BurnAddress),
	},
}

// ReservedAddress returns true if addr is inside a reserved service range.
func ReservedAddress(addr common.Address) bool {
	for _, r := range reservedRanges {
		if r.Contains(addr) {
			return true
		}
	}
	return false
}

// Service is a host-mounted protocol component bound to its well-known
// address. ConfigKey names the service in host configuration.
type Service struct {
	Address   common.Address
	ConfigKey string
}

// mounted is kept sorted by address for deterministic iteration.
var mounted = make([]Service, 0)

// Register mounts a service. Both the address and the config key must be
// unique, and the address must be reserved for market services.
func Register(svc Service) error {
	if !ReservedAddress(svc.Address) {
		return fmt.Errorf("address %s not in a reserved market range", svc.Address)
	}
	for _, existing := range mounted {
		if existing.ConfigKey == svc.ConfigKey {
			return fmt.Errorf("config key %q already used by a market service", svc.ConfigKey)
		}
		if existing.Address == svc.Address {
			return fmt.Errorf("address %s already used by a market service", svc.Address)
		}
	}
	mounted = append(mounted, svc)
	sort.Slice(mounted, func(i, j int) bool {
		return less(mounted[i].Address, mounted[j].Address)
	})
	return nil
}

// ByAddress returns the service mounted at address.
func ByAddress(address common.Address) (Service, bool) {
	for _, svc := range mounted {
		if svc.Address == address {
			return svc, true
		}
	}
	return Service{}, false
}

// ByConfigKey returns the service with the given config key.
func ByConfigKey(key string) (Service, bool) {
	for _, svc := range mounted {
		if svc.ConfigKey == key {
			return svc, true
		}
	}
	return Service{}, false
}

// Services returns all mounted services in address order.
func Services() []Service {
	out := make([]Service, len(mounted))
	copy(out, mounted)
	return out
}
