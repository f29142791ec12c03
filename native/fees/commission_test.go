package fees

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

func TestCommissionApply(t *testing.T) {
	tests := []struct {
		name  string
		bps   uint32
		gross uint64
		fee   uint64
		net   uint64
	}{
		{name: "zero rate", bps: 0, gross: 14, fee: 0, net: 14},
		{name: "two and a half percent", bps: 250, gross: 1000, fee: 25, net: 975},
		{name: "rounds down", bps: 250, gross: 14, fee: 0, net: 14},
		{name: "full rate", bps: MaxBps, gross: 9, fee: 9, net: 0},
		{name: "zero gross", bps: 500, gross: 0, fee: 0, net: 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			split := Commission{Bps: tc.bps}.Apply(uint256.NewInt(tc.gross))
			if split.Fee.Uint64() != tc.fee {
				t.Fatalf("fee: expected %d got %s", tc.fee, split.Fee)
			}
			if split.Net.Uint64() != tc.net {
				t.Fatalf("net: expected %d got %s", tc.net, split.Net)
			}
			sum := new(uint256.Int).Add(split.Fee, split.Net)
			if sum.Uint64() != tc.gross {
				t.Fatalf("fee + net must equal gross, got %s", sum)
			}
		})
	}
}

func TestCommissionApplyLargeAmounts(t *testing.T) {
	max := new(uint256.Int).SetAllOne()
	split := Commission{Bps: 100}.Apply(max)
	sum, overflow := new(uint256.Int).AddOverflow(split.Fee, split.Net)
	if overflow || !sum.Eq(max) {
		t.Fatalf("expected fee + net to reconstruct max uint256, got %s (overflow=%v)", sum, overflow)
	}
	if split.Fee.IsZero() {
		t.Fatalf("expected non-zero fee on max amount")
	}
}

func TestCommissionValidate(t *testing.T) {
	if err := (Commission{Bps: MaxBps + 1}).Validate(); !errors.Is(err, ErrBpsOutOfRange) {
		t.Fatalf("expected ErrBpsOutOfRange, got %v", err)
	}
	if err := (Commission{Bps: 10}).Validate(); !errors.Is(err, ErrSinkRequired) {
		t.Fatalf("expected ErrSinkRequired, got %v", err)
	}
	sink := common.HexToAddress("0x00000000000000000000000000000000000000fe")
	if err := (Commission{Bps: 10, Sink: sink}).Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := (Commission{}).Validate(); err != nil {
		t.Fatalf("zero commission must be valid: %v", err)
	}
}
