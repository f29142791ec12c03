package state

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var balancePrefix = []byte("balance:")

func balanceKey(addr common.Address) []byte {
	buf := make([]byte, len(balancePrefix)+common.AddressLength)
	copy(buf, balancePrefix)
	copy(buf[len(balancePrefix):], addr[:])
	return buf
}

// Balance returns the native balance held by addr. Unknown accounts hold zero.
func (m *Manager) Balance(addr common.Address) (*uint256.Int, error) {
	var stored big.Int
	ok, err := m.KVGet(balanceKey(addr), &stored)
	if err != nil {
		return nil, fmt.Errorf("balance %s: %w", addr.Hex(), err)
	}
	if !ok {
		return new(uint256.Int), nil
	}
	amount, overflow := uint256.FromBig(&stored)
	if overflow {
		return nil, fmt.Errorf("balance %s: stored value exceeds 256 bits", addr.Hex())
	}
	return amount, nil
}

// SetBalance overwrites the native balance held by addr.
func (m *Manager) SetBalance(addr common.Address, amount *uint256.Int) error {
	if amount == nil {
		amount = new(uint256.Int)
	}
	return m.KVPut(balanceKey(addr), amount.ToBig())
}
