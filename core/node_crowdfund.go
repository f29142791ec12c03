package core

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"crowdchain/native/crowdfund"
	"crowdchain/observability"
)

// CreateCampaign registers a campaign owned by owner.
func (n *Node) CreateCampaign(ctx context.Context, owner common.Address, params crowdfund.CreateParams) (*crowdfund.Campaign, error) {
	var created *crowdfund.Campaign
	err := n.execute(ctx, "create", func(tx *txContext) error {
		c, err := tx.engine.Create(owner, params)
		if err != nil {
			return err
		}
		created = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	observability.Crowdfund().SetCampaigns(created.ID + 1)
	n.logger.Info("campaign created", "campaign", created.ID, "op", "create", "caller", owner.Hex(), "goal", created.Goal.Dec(), "deadline", created.Deadline)
	return created, nil
}

// Donate records a donation of value from donor.
func (n *Node) Donate(ctx context.Context, id uint64, donor common.Address, value *uint256.Int) (*crowdfund.Campaign, error) {
	var updated *crowdfund.Campaign
	err := n.execute(ctx, "donate", func(tx *txContext) error {
		c, err := tx.engine.Donate(id, donor, value)
		if err != nil {
			return err
		}
		updated = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	observability.Crowdfund().AddValue("donate", value)
	n.logger.Info("donation recorded", "campaign", id, "op", "donate", "caller", donor.Hex(), "amount", value.Dec(), "raised", updated.AmountRaised.Dec(), "completed", updated.Completed)
	return updated, nil
}

// Withdraw pays a completed campaign's raised funds to its owner.
func (n *Node) Withdraw(ctx context.Context, id uint64, caller common.Address) (*crowdfund.Payout, error) {
	var payout *crowdfund.Payout
	err := n.execute(ctx, "withdraw", func(tx *txContext) error {
		p, err := tx.engine.Withdraw(id, caller)
		if err != nil {
			return err
		}
		payout = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	observability.Crowdfund().AddValue("withdraw", payout.Gross)
	n.logger.Info("campaign withdrawn", "campaign", id, "op", "withdraw", "caller", caller.Hex(), "payout", payout.Net.Dec(), "fee", payout.Fee.Dec())
	return payout, nil
}

// ClaimRefund returns caller's contribution to a failed campaign.
func (n *Node) ClaimRefund(ctx context.Context, id uint64, caller common.Address) (*uint256.Int, error) {
	var refunded *uint256.Int
	err := n.execute(ctx, "refund", func(tx *txContext) error {
		amount, err := tx.engine.ClaimRefund(id, caller)
		if err != nil {
			return err
		}
		refunded = amount
		return nil
	})
	if err != nil {
		return nil, err
	}
	observability.Crowdfund().AddValue("refund", refunded)
	n.logger.Info("refund claimed", "campaign", id, "op", "refund", "caller", caller.Hex(), "amount", refunded.Dec())
	return refunded, nil
}

// Campaign returns the snapshot of a campaign including its donors.
func (n *Node) Campaign(id uint64) (*crowdfund.Snapshot, error) {
	var snap *crowdfund.Snapshot
	err := n.read(func(tx *txContext) error {
		s, err := tx.engine.Snapshot(id)
		snap = s
		return err
	})
	return snap, err
}

// Donation returns donor's ledger entry for the campaign.
func (n *Node) Donation(id uint64, donor common.Address) (*uint256.Int, error) {
	var amount *uint256.Int
	err := n.read(func(tx *txContext) error {
		a, err := tx.engine.Donation(id, donor)
		amount = a
		return err
	})
	return amount, err
}

// Campaigns pages through campaigns in id order.
func (n *Node) Campaigns(offset, limit uint64) ([]*crowdfund.Campaign, error) {
	var out []*crowdfund.Campaign
	err := n.read(func(tx *txContext) error {
		list, err := tx.engine.List(offset, limit)
		out = list
		return err
	})
	return out, err
}

// CampaignCount returns the number of campaigns ever created.
func (n *Node) CampaignCount() (uint64, error) {
	var count uint64
	err := n.read(func(tx *txContext) error {
		c, err := tx.engine.Count()
		count = c
		return err
	})
	return count, err
}

// Balance returns the native balance of addr.
func (n *Node) Balance(addr common.Address) (*uint256.Int, error) {
	var bal *uint256.Int
	err := n.read(func(tx *txContext) error {
		b, err := tx.ledger.Balance(addr)
		bal = b
		return err
	})
	return bal, err
}
