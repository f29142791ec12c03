package events

import (
	"math/big"
	"strconv"

	"crowdchain/core/types"

	"github.com/ethereum/go-ethereum/common"
)

const (
	TypeCrowdfundCreated   = "crowdfund.created"
	TypeCrowdfundDonated   = "crowdfund.donated"
	TypeCrowdfundCompleted = "crowdfund.completed"
	TypeCrowdfundRefunded  = "crowdfund.refunded"
	TypeCrowdfundWithdrawn = "crowdfund.withdrawn"
)

type CrowdfundCreated struct {
	CampaignID uint64
	Owner      common.Address
	Title      string
	Goal       *big.Int
	Deadline   int64
	Fixed      bool
	Required   *big.Int
	CreatedAt  int64
}

func (CrowdfundCreated) EventType() string { return TypeCrowdfundCreated }

func (e CrowdfundCreated) Event() *types.Event {
	return &types.Event{
		Type: TypeCrowdfundCreated,
		Attributes: map[string]string{
			"campaign":  uintToString(e.CampaignID),
			"owner":     e.Owner.Hex(),
			"title":     e.Title,
			"goal":      formatAmount(e.Goal),
			"deadline":  intToString(e.Deadline),
			"fixed":     strconv.FormatBool(e.Fixed),
			"required":  formatAmount(e.Required),
			"createdAt": intToString(e.CreatedAt),
		},
	}
}

type CrowdfundDonated struct {
	CampaignID uint64
	Donor      common.Address
	Amount     *big.Int
	Raised     *big.Int
	Timestamp  int64
}

func (CrowdfundDonated) EventType() string { return TypeCrowdfundDonated }

func (e CrowdfundDonated) Event() *types.Event {
	return &types.Event{
		Type: TypeCrowdfundDonated,
		Attributes: map[string]string{
			"campaign":  uintToString(e.CampaignID),
			"donor":     e.Donor.Hex(),
			"amount":    formatAmount(e.Amount),
			"raised":    formatAmount(e.Raised),
			"timestamp": intToString(e.Timestamp),
		},
	}
}

type CrowdfundCompleted struct {
	CampaignID uint64
	Raised     *big.Int
	Goal       *big.Int
	Timestamp  int64
}

func (CrowdfundCompleted) EventType() string { return TypeCrowdfundCompleted }

func (e CrowdfundCompleted) Event() *types.Event {
	return &types.Event{
		Type: TypeCrowdfundCompleted,
		Attributes: map[string]string{
			"campaign":  uintToString(e.CampaignID),
			"raised":    formatAmount(e.Raised),
			"goal":      formatAmount(e.Goal),
			"timestamp": intToString(e.Timestamp),
		},
	}
}

type CrowdfundRefunded struct {
	CampaignID uint64
	Donor      common.Address
	Amount     *big.Int
	Raised     *big.Int
	Timestamp  int64
}

func (CrowdfundRefunded) EventType() string { return TypeCrowdfundRefunded }

func (e CrowdfundRefunded) Event() *types.Event {
	return &types.Event{
		Type: TypeCrowdfundRefunded,
		Attributes: map[string]string{
			"campaign":  uintToString(e.CampaignID),
			"donor":     e.Donor.Hex(),
			"amount":    formatAmount(e.Amount),
			"raised":    formatAmount(e.Raised),
			"timestamp": intToString(e.Timestamp),
		},
	}
}

type CrowdfundWithdrawn struct {
	CampaignID uint64
	Owner      common.Address
	Payout     *big.Int
	Fee        *big.Int
	FeeSink    common.Address
	Timestamp  int64
}

func (CrowdfundWithdrawn) EventType() string { return TypeCrowdfundWithdrawn }

func (e CrowdfundWithdrawn) Event() *types.Event {
	attrs := map[string]string{
		"campaign":  uintToString(e.CampaignID),
		"owner":     e.Owner.Hex(),
		"payout":    formatAmount(e.Payout),
		"fee":       formatAmount(e.Fee),
		"timestamp": intToString(e.Timestamp),
	}
	if e.FeeSink != (common.Address{}) {
		attrs["feeSink"] = e.FeeSink.Hex()
	}
	return &types.Event{Type: TypeCrowdfundWithdrawn, Attributes: attrs}
}

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func intToString(v int64) string {
	return strconv.FormatInt(v, 10)
}

func uintToString(v uint64) string {
	return strconv.FormatUint(v, 10)
}
