package state

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"crowdchain/native/crowdfund"
)

var (
	crowdfundCampaignPrefix   = []byte("crowdfund/campaign/")
	crowdfundCampaignCountKey = []byte("crowdfund/campaign-count")
	crowdfundDonationPrefix   = []byte("crowdfund/donation/")
	crowdfundDonorCountPrefix = []byte("crowdfund/donor-count/")
	crowdfundDonorIndexPrefix = []byte("crowdfund/donor/")
)

func crowdfundCampaignKey(id uint64) []byte {
	buf := make([]byte, len(crowdfundCampaignPrefix)+8)
	copy(buf, crowdfundCampaignPrefix)
	binary.BigEndian.PutUint64(buf[len(crowdfundCampaignPrefix):], id)
	return buf
}

func crowdfundDonationKey(id uint64, donor common.Address) []byte {
	buf := make([]byte, len(crowdfundDonationPrefix)+8+common.AddressLength)
	copy(buf, crowdfundDonationPrefix)
	binary.BigEndian.PutUint64(buf[len(crowdfundDonationPrefix):], id)
	copy(buf[len(crowdfundDonationPrefix)+8:], donor[:])
	return buf
}

func crowdfundDonorCountKey(id uint64) []byte {
	buf := make([]byte, len(crowdfundDonorCountPrefix)+8)
	copy(buf, crowdfundDonorCountPrefix)
	binary.BigEndian.PutUint64(buf[len(crowdfundDonorCountPrefix):], id)
	return buf
}

func crowdfundDonorIndexKey(id uint64, index uint64) []byte {
	buf := make([]byte, len(crowdfundDonorIndexPrefix)+16)
	copy(buf, crowdfundDonorIndexPrefix)
	binary.BigEndian.PutUint64(buf[len(crowdfundDonorIndexPrefix):], id)
	binary.BigEndian.PutUint64(buf[len(crowdfundDonorIndexPrefix)+8:], index)
	return buf
}

type storedCampaign struct {
	ID                     uint64
	Owner                  common.Address
	Title                  string
	Description            string
	Goal                   *big.Int
	Deadline               *big.Int
	FixedDonationAmount    bool
	RequiredDonationAmount *big.Int
	AmountRaised           *big.Int
	Completed              bool
	Withdrawn              bool
	CreatedAt              *big.Int
	Refunded               bool     `rlp:"optional"`
}

func newStoredCampaign(c *crowdfund.Campaign) *storedCampaign {
	return &storedCampaign{
		ID:                     c.ID,
		Owner:                  c.Owner,
		Title:                  c.Title,
		Description:            c.Description,
		Goal:                   amountToBig(c.Goal),
		Deadline:               big.NewInt(c.Deadline),
		FixedDonationAmount:    c.FixedDonationAmount,
		RequiredDonationAmount: amountToBig(c.RequiredDonationAmount),
		AmountRaised:           amountToBig(c.AmountRaised),
		Completed:              c.Completed,
		Withdrawn:              c.Withdrawn,
		CreatedAt:              big.NewInt(c.CreatedAt),
		Refunded:               c.Refunded,
	}
}

func (s *storedCampaign) toCampaign() (*crowdfund.Campaign, error) {
	goal, err := amountFromBig(s.Goal)
	if err != nil {
		return nil, err
	}
	required, err := amountFromBig(s.RequiredDonationAmount)
	if err != nil {
		return nil, err
	}
	raised, err := amountFromBig(s.AmountRaised)
	if err != nil {
		return nil, err
	}
	out := &crowdfund.Campaign{
		ID:                     s.ID,
		Owner:                  s.Owner,
		Title:                  s.Title,
		Description:            s.Description,
		Goal:                   goal,
		FixedDonationAmount:    s.FixedDonationAmount,
		RequiredDonationAmount: required,
		AmountRaised:           raised,
		Completed:              s.Completed,
		Withdrawn:              s.Withdrawn,
		Refunded:               s.Refunded,
	}
	if s.Deadline != nil {
		out.Deadline = s.Deadline.Int64()
	}
	if s.CreatedAt != nil {
		out.CreatedAt = s.CreatedAt.Int64()
	}
	return out, nil
}

func amountToBig(v *uint256.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v.ToBig()
}

func amountFromBig(v *big.Int) (*uint256.Int, error) {
	if v == nil {
		return new(uint256.Int), nil
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("crowdfund: negative stored amount")
	}
	out, overflow := uint256.FromBig(v)
	if overflow {
		return nil, fmt.Errorf("crowdfund: stored amount exceeds 256 bits")
	}
	return out, nil
}

// CrowdfundCampaignCount returns the number of campaigns ever registered.
func (m *Manager) CrowdfundCampaignCount() (uint64, error) {
	var count uint64
	if _, err := m.KVGet(crowdfundCampaignCountKey, &count); err != nil {
		return 0, err
	}
	return count, nil
}

// CrowdfundSetCampaignCount records the next campaign identifier.
func (m *Manager) CrowdfundSetCampaignCount(count uint64) error {
	return m.KVPut(crowdfundCampaignCountKey, count)
}

// CrowdfundCampaignPut persists the campaign record.
func (m *Manager) CrowdfundCampaignPut(c *crowdfund.Campaign) error {
	if c == nil {
		return fmt.Errorf("crowdfund: nil campaign")
	}
	return m.KVPut(crowdfundCampaignKey(c.ID), newStoredCampaign(c))
}

// CrowdfundCampaignGet loads the campaign stored under id.
func (m *Manager) CrowdfundCampaignGet(id uint64) (*crowdfund.Campaign, bool, error) {
	stored := new(storedCampaign)
	ok, err := m.KVGet(crowdfundCampaignKey(id), stored)
	if err != nil || !ok {
		return nil, false, err
	}
	campaign, err := stored.toCampaign()
	if err != nil {
		return nil, false, err
	}
	return campaign, true, nil
}

// CrowdfundDonationGet returns the ledger entry for donor. Missing entries
// read as zero.
func (m *Manager) CrowdfundDonationGet(id uint64, donor common.Address) (*uint256.Int, error) {
	var stored big.Int
	ok, err := m.KVGet(crowdfundDonationKey(id, donor), &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return new(uint256.Int), nil
	}
	return amountFromBig(&stored)
}

// CrowdfundDonationPut writes the ledger entry for donor. The first write for
// a donor also appends it to the campaign's donor index.
func (m *Manager) CrowdfundDonationPut(id uint64, donor common.Address, amount *uint256.Int) error {
	key := crowdfundDonationKey(id, donor)
	seen, err := m.KVGet(key, nil)
	if err != nil {
		return err
	}
	if !seen {
		if err := m.appendDonor(id, donor); err != nil {
			return err
		}
	}
	return m.KVPut(key, amountToBig(amount))
}

func (m *Manager) appendDonor(id uint64, donor common.Address) error {
	var count uint64
	if _, err := m.KVGet(crowdfundDonorCountKey(id), &count); err != nil {
		return err
	}
	if err := m.KVPut(crowdfundDonorIndexKey(id, count), donor); err != nil {
		return err
	}
	return m.KVPut(crowdfundDonorCountKey(id), count+1)
}

// CrowdfundDonors lists every address that ever donated to the campaign, in
// first-donation order.
func (m *Manager) CrowdfundDonors(id uint64) ([]common.Address, error) {
	var count uint64
	if _, err := m.KVGet(crowdfundDonorCountKey(id), &count); err != nil {
		return nil, err
	}
	donors := make([]common.Address, 0, count)
	for i := uint64(0); i < count; i++ {
		var donor common.Address
		ok, err := m.KVGet(crowdfundDonorIndexKey(id, i), &donor)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("crowdfund: donor index %d/%d missing", id, i)
		}
		donors = append(donors, donor)
	}
	return donors, nil
}
