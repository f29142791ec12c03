package crowdfund

import (
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// VaultAddress is the module account holding every donated unit until it is
// refunded or withdrawn.
var VaultAddress = common.BytesToAddress(ethcrypto.Keccak256([]byte("crowdfund/vault"))[12:])

// Campaign is a fundraising effort with a goal, a deadline and an owner who may
// withdraw once the goal has been met. Goal, Deadline, Owner and the fixed
// amount settings never change after creation. Refunded latches on the first
// successful refund claim.
type Campaign struct {
	ID                     uint64
	Owner                  common.Address
	Title                  string
	Description            string
	Goal                   *uint256.Int
	Deadline               int64
	FixedDonationAmount    bool
	RequiredDonationAmount *uint256.Int
	AmountRaised           *uint256.Int
	Completed              bool
	Withdrawn              bool
	Refunded               bool
	CreatedAt              int64
}

// Clone returns a deep copy of the campaign so callers can safely mutate
// the copy without affecting the stored instance.
func (c *Campaign) Clone() *Campaign {
	if c == nil {
		return nil
	}
	clone := *c
	clone.Goal = cloneAmount(c.Goal)
	clone.RequiredDonationAmount = cloneAmount(c.RequiredDonationAmount)
	clone.AmountRaised = cloneAmount(c.AmountRaised)
	return &clone
}

// Open reports whether donations are still accepted at the supplied time.
// Donate checks the same conditions individually so each failure keeps its
// own error.
func (c *Campaign) Open(now int64) bool {
	return c != nil && now < c.Deadline && !c.Completed
}

// CreateParams carries the caller-supplied campaign definition.
type CreateParams struct {
	Title                  string
	Description            string
	Goal                   *uint256.Int
	Deadline               int64
	FixedDonationAmount    bool
	RequiredDonationAmount *uint256.Int
}

// DonorEntry is a single row of the donor ledger.
type DonorEntry struct {
	Donor  common.Address
	Amount *uint256.Int
}

// Snapshot is a read-only view of a campaign together with its donor ledger.
// Donors are listed in first-donation order with their current amounts,
// including donors whose entries were zeroed by a refund.
type Snapshot struct {
	Campaign *Campaign
	Donors   []DonorEntry
}

// Payout describes the terminal transfer performed by Withdraw.
type Payout struct {
	CampaignID uint64
	Recipient  common.Address
	Gross      *uint256.Int
	Net        *uint256.Int
	Fee        *uint256.Int
	FeeSink    common.Address
}

func cloneAmount(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(v)
}

// goalReached is the completion predicate. Equality completes.
func goalReached(raised, goal *uint256.Int) bool {
	if raised == nil || goal == nil {
		return false
	}
	return !raised.Lt(goal)
}
