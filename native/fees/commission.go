package fees

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// MaxBps is the denominator of every basis-point rate.
const MaxBps = 10_000

var (
	ErrBpsOutOfRange = errors.New("fees: commission bps out of range")
	ErrSinkRequired  = errors.New("fees: commission sink required when bps > 0")
)

var bpsDenominator = uint256.NewInt(MaxBps)

// Commission captures the fee charged when a campaign owner withdraws the
// raised funds. Refunds are never charged.
type Commission struct {
	Bps  uint32
	Sink common.Address
}

// Split summarises how a gross payout is divided between the recipient and the
// commission sink.
type Split struct {
	Gross *uint256.Int
	Fee   *uint256.Int
	Net   *uint256.Int
}

// Validate ensures the commission can be applied.
func (c Commission) Validate() error {
	if c.Bps > MaxBps {
		return fmt.Errorf("%w: %d", ErrBpsOutOfRange, c.Bps)
	}
	if c.Bps > 0 && c.Sink == (common.Address{}) {
		return ErrSinkRequired
	}
	return nil
}

// Apply computes fee = gross * bps / 10_000, rounding down, and the remaining
// net amount. The fee never exceeds the gross amount.
func (c Commission) Apply(gross *uint256.Int) Split {
	result := Split{Fee: new(uint256.Int), Net: new(uint256.Int), Gross: new(uint256.Int)}
	if gross == nil || gross.IsZero() {
		return result
	}
	result.Gross.Set(gross)
	result.Net.Set(gross)
	if c.Bps == 0 {
		return result
	}
	bps := c.Bps
	if bps > MaxBps {
		bps = MaxBps
	}
	fee, overflow := new(uint256.Int).MulDivOverflow(gross, uint256.NewInt(uint64(bps)), bpsDenominator)
	if overflow || fee.Cmp(gross) >= 0 {
		result.Fee.Set(gross)
		result.Net.Clear()
		return result
	}
	result.Fee = fee
	result.Net.Sub(gross, fee)
	return result
}
