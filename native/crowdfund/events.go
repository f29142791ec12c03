package crowdfund

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"crowdchain/core/events"
)

func newCreatedEvent(c *Campaign) events.CrowdfundCreated {
	return events.CrowdfundCreated{
		CampaignID: c.ID,
		Owner:      c.Owner,
		Title:      c.Title,
		Goal:       c.Goal.ToBig(),
		Deadline:   c.Deadline,
		Fixed:      c.FixedDonationAmount,
		Required:   c.RequiredDonationAmount.ToBig(),
		CreatedAt:  c.CreatedAt,
	}
}

func newDonatedEvent(c *Campaign, donor common.Address, amount *uint256.Int, ts int64) events.CrowdfundDonated {
	return events.CrowdfundDonated{
		CampaignID: c.ID,
		Donor:      donor,
		Amount:     amount.ToBig(),
		Raised:     c.AmountRaised.ToBig(),
		Timestamp:  ts,
	}
}

func newCompletedEvent(c *Campaign, ts int64) events.CrowdfundCompleted {
	return events.CrowdfundCompleted{
		CampaignID: c.ID,
		Raised:     c.AmountRaised.ToBig(),
		Goal:       c.Goal.ToBig(),
		Timestamp:  ts,
	}
}

func newRefundedEvent(c *Campaign, donor common.Address, amount *uint256.Int, ts int64) events.CrowdfundRefunded {
	return events.CrowdfundRefunded{
		CampaignID: c.ID,
		Donor:      donor,
		Amount:     amount.ToBig(),
		Raised:     c.AmountRaised.ToBig(),
		Timestamp:  ts,
	}
}

func newWithdrawnEvent(p *Payout, ts int64) events.CrowdfundWithdrawn {
	return events.CrowdfundWithdrawn{
		CampaignID: p.CampaignID,
		Owner:      p.Recipient,
		Payout:     p.Net.ToBig(),
		Fee:        p.Fee.ToBig(),
		FeeSink:    p.FeeSink,
		Timestamp:  ts,
	}
}
