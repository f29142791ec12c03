package crowdfund

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"golang.org/x/text/unicode/norm"

	"crowdchain/core/events"
	"crowdchain/native/bank"
	"crowdchain/native/fees"
)

var (
	errNilState   = errors.New("crowdfund engine: state not configured")
	errNilBank    = errors.New("crowdfund engine: bank not configured")
	errNilFeeSink = errors.New("crowdfund engine: fee sink not configured")
)

type engineState interface {
	CrowdfundCampaignCount() (uint64, error)
	CrowdfundCampaignGet(id uint64) (*Campaign, bool, error)
	CrowdfundCampaignPut(c *Campaign) error
	CrowdfundSetCampaignCount(count uint64) error
	CrowdfundDonationGet(id uint64, donor common.Address) (*uint256.Int, error)
	CrowdfundDonationPut(id uint64, donor common.Address, amount *uint256.Int) error
	CrowdfundDonors(id uint64) ([]common.Address, error)
}

type transferer interface {
	Transfer(from, to common.Address, amount *uint256.Int) error
}

// Engine implements the campaign registry, the donation processor and the
// withdrawal/refund flows. An engine is bound to a single transaction: its
// state, bank and clock are all scoped to the enclosing commit.
type Engine struct {
	state      engineState
	bank       transferer
	emitter    events.Emitter
	commission fees.Commission
	nowFn      func() int64
}

// NewEngine creates an engine with a no-op emitter and a zero commission.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the ledger backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetBank configures the value transfer backend.
func (e *Engine) SetBank(b transferer) { e.bank = b }

// SetCommission configures the fee charged on withdrawal.
func (e *Engine) SetCommission(c fees.Commission) { e.commission = c }

// SetNowFunc overrides the time source used by the engine.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(evt events.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(evt)
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.bank == nil {
		return errNilBank
	}
	return nil
}

func (e *Engine) loadCampaign(id uint64) (*Campaign, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	campaign, ok, err := e.state.CrowdfundCampaignGet(id)
	if err != nil {
		return nil, fmt.Errorf("load campaign %d: %w", id, err)
	}
	if !ok {
		return nil, ErrCampaignNotFound
	}
	return campaign, nil
}

func (e *Engine) storeCampaign(c *Campaign) error {
	if err := e.state.CrowdfundCampaignPut(c); err != nil {
		return fmt.Errorf("store campaign %d: %w", c.ID, err)
	}
	return nil
}

func (e *Engine) transfer(from, to common.Address, amount *uint256.Int) error {
	if err := e.bank.Transfer(from, to, amount); err != nil {
		if errors.Is(err, bank.ErrInsufficientBalance) {
			return ErrInsufficientBalance
		}
		return err
	}
	return nil
}

// Create registers a new campaign and returns it. Identifiers are assigned
// sequentially starting at zero.
func (e *Engine) Create(owner common.Address, params CreateParams) (*Campaign, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if owner == (common.Address{}) {
		return nil, ErrInvalidOwner
	}
	title := norm.NFC.String(strings.TrimSpace(params.Title))
	if params.Goal == nil || params.Goal.IsZero() {
		return nil, ErrInvalidGoal
	}
	now := e.now()
	if params.Deadline <= now {
		return nil, ErrInvalidDeadline
	}
	required := new(uint256.Int)
	if params.FixedDonationAmount {
		if params.RequiredDonationAmount == nil || params.RequiredDonationAmount.IsZero() {
			return nil, ErrInvalidRequired
		}
		required.Set(params.RequiredDonationAmount)
	}
	id, err := e.state.CrowdfundCampaignCount()
	if err != nil {
		return nil, fmt.Errorf("campaign count: %w", err)
	}
	campaign := &Campaign{
		ID:                     id,
		Owner:                  owner,
		Title:                  title,
		Description:            norm.NFC.String(strings.TrimSpace(params.Description)),
		Goal:                   new(uint256.Int).Set(params.Goal),
		Deadline:               params.Deadline,
		FixedDonationAmount:    params.FixedDonationAmount,
		RequiredDonationAmount: required,
		AmountRaised:           new(uint256.Int),
		CreatedAt:              now,
	}
	if err := e.storeCampaign(campaign); err != nil {
		return nil, err
	}
	if err := e.state.CrowdfundSetCampaignCount(id + 1); err != nil {
		return nil, fmt.Errorf("campaign count: %w", err)
	}
	e.emit(newCreatedEvent(campaign))
	return campaign.Clone(), nil
}

// Donate records value from donor against the campaign and pulls the funds
// into the module vault. Completion is evaluated in the same step.
func (e *Engine) Donate(id uint64, donor common.Address, value *uint256.Int) (*Campaign, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	campaign, err := e.loadCampaign(id)
	if err != nil {
		return nil, err
	}
	now := e.now()
	if now >= campaign.Deadline {
		return nil, ErrDeadlinePassed
	}
	if campaign.Completed {
		return nil, ErrAlreadyCompleted
	}
	if value == nil || value.IsZero() {
		return nil, ErrZeroValue
	}
	if campaign.FixedDonationAmount && !value.Eq(campaign.RequiredDonationAmount) {
		return nil, ErrAmountMismatch
	}
	entry, err := e.state.CrowdfundDonationGet(id, donor)
	if err != nil {
		return nil, fmt.Errorf("load donation: %w", err)
	}
	raised, overflow := new(uint256.Int).AddOverflow(campaign.AmountRaised, value)
	if overflow {
		return nil, ErrOverflow
	}
	updatedEntry, overflow := new(uint256.Int).AddOverflow(entry, value)
	if overflow {
		return nil, ErrOverflow
	}

	// Pull funds before touching the ledger; a failed transfer leaves no entry.
	if err := e.transfer(donor, VaultAddress, value); err != nil {
		return nil, err
	}
	campaign.AmountRaised = raised
	completedNow := goalReached(raised, campaign.Goal)
	if completedNow {
		campaign.Completed = true
	}
	if err := e.state.CrowdfundDonationPut(id, donor, updatedEntry); err != nil {
		return nil, fmt.Errorf("store donation: %w", err)
	}
	if err := e.storeCampaign(campaign); err != nil {
		return nil, err
	}
	e.emit(newDonatedEvent(campaign, donor, value, now))
	if completedNow {
		e.emit(newCompletedEvent(campaign, now))
	}
	return campaign.Clone(), nil
}

// Withdraw releases the raised funds of a completed campaign to its owner,
// routing the commission to the fee sink. It succeeds at most once.
func (e *Engine) Withdraw(id uint64, caller common.Address) (*Payout, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	campaign, err := e.loadCampaign(id)
	if err != nil {
		return nil, err
	}
	if caller != campaign.Owner {
		return nil, ErrUnauthorized
	}
	if !campaign.Completed {
		return nil, ErrNotCompleted
	}
	if campaign.Withdrawn {
		return nil, ErrAlreadyWithdrawn
	}
	split := e.commission.Apply(campaign.AmountRaised)
	if !split.Fee.IsZero() && e.commission.Sink == (common.Address{}) {
		return nil, errNilFeeSink
	}

	campaign.Withdrawn = true
	if err := e.storeCampaign(campaign); err != nil {
		return nil, err
	}
	if err := e.transfer(VaultAddress, campaign.Owner, split.Net); err != nil {
		return nil, err
	}
	if err := e.transfer(VaultAddress, e.commission.Sink, split.Fee); err != nil {
		return nil, err
	}
	payout := &Payout{
		CampaignID: id,
		Recipient:  campaign.Owner,
		Gross:      split.Gross,
		Net:        split.Net,
		Fee:        split.Fee,
		FeeSink:    e.commission.Sink,
	}
	e.emit(newWithdrawnEvent(payout, e.now()))
	return payout, nil
}

// ClaimRefund returns the caller's full contribution once the deadline has
// passed without the campaign completing.
func (e *Engine) ClaimRefund(id uint64, caller common.Address) (*uint256.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	campaign, err := e.loadCampaign(id)
	if err != nil {
		return nil, err
	}
	now := e.now()
	if now < campaign.Deadline {
		return nil, ErrDeadlineNotPassed
	}
	if campaign.Completed {
		return nil, ErrCampaignCompleted
	}
	entry, err := e.state.CrowdfundDonationGet(id, caller)
	if err != nil {
		return nil, fmt.Errorf("load donation: %w", err)
	}
	if entry.IsZero() {
		return nil, ErrNoFundsToClaim
	}
	raised, underflow := new(uint256.Int).SubOverflow(campaign.AmountRaised, entry)
	if underflow {
		return nil, fmt.Errorf("crowdfund engine: ledger inconsistent for campaign %d", id)
	}

	campaign.AmountRaised = raised
	campaign.Refunded = true
	if err := e.state.CrowdfundDonationPut(id, caller, new(uint256.Int)); err != nil {
		return nil, fmt.Errorf("store donation: %w", err)
	}
	if err := e.storeCampaign(campaign); err != nil {
		return nil, err
	}
	if err := e.transfer(VaultAddress, caller, entry); err != nil {
		return nil, err
	}
	e.emit(newRefundedEvent(campaign, caller, entry, now))
	return entry, nil
}

// Campaign returns a copy of the stored campaign.
func (e *Engine) Campaign(id uint64) (*Campaign, error) {
	campaign, err := e.loadCampaign(id)
	if err != nil {
		return nil, err
	}
	return campaign.Clone(), nil
}

// Donation returns the current ledger entry for donor. Unknown donors read as
// zero; unknown campaigns fail with ErrCampaignNotFound.
func (e *Engine) Donation(id uint64, donor common.Address) (*uint256.Int, error) {
	if _, err := e.loadCampaign(id); err != nil {
		return nil, err
	}
	amount, err := e.state.CrowdfundDonationGet(id, donor)
	if err != nil {
		return nil, fmt.Errorf("load donation: %w", err)
	}
	return amount, nil
}

// Snapshot returns the campaign together with its donor ledger.
func (e *Engine) Snapshot(id uint64) (*Snapshot, error) {
	campaign, err := e.loadCampaign(id)
	if err != nil {
		return nil, err
	}
	donors, err := e.state.CrowdfundDonors(id)
	if err != nil {
		return nil, fmt.Errorf("load donors: %w", err)
	}
	snap := &Snapshot{Campaign: campaign, Donors: make([]DonorEntry, 0, len(donors))}
	for _, donor := range donors {
		amount, err := e.state.CrowdfundDonationGet(id, donor)
		if err != nil {
			return nil, fmt.Errorf("load donation: %w", err)
		}
		snap.Donors = append(snap.Donors, DonorEntry{Donor: donor, Amount: amount})
	}
	return snap, nil
}

// Count returns the number of campaigns ever created.
func (e *Engine) Count() (uint64, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	return e.state.CrowdfundCampaignCount()
}

// List returns up to limit campaigns starting at offset in id order.
func (e *Engine) List(offset, limit uint64) ([]*Campaign, error) {
	count, err := e.Count()
	if err != nil {
		return nil, err
	}
	if offset >= count || limit == 0 {
		return []*Campaign{}, nil
	}
	end := count
	if limit < count-offset {
		end = offset + limit
	}
	out := make([]*Campaign, 0, end-offset)
	for id := offset; id < end; id++ {
		campaign, err := e.loadCampaign(id)
		if err != nil {
			return nil, err
		}
		out = append(out, campaign)
	}
	return out, nil
}
