package rpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"crowdchain/config"
	"crowdchain/core"
	"crowdchain/indexer"
	"crowdchain/native/crowdfund"
)

const (
	codeCrowdfundInvalidParams = -32030
	codeCrowdfundNotFound      = -32031
	codeCrowdfundTemporal      = -32032
	codeCrowdfundForbidden     = -32033
	codeCrowdfundConflict      = -32034
	codeCrowdfundFunds         = -32035
)

const defaultListLimit = 50

type campaignIDParams struct {
	ID      *uint64 `json:"id"`
	ChainID uint64  `json:"chainId,omitempty"`
}

type createCampaignParams struct {
	Title                  string `json:"title"`
	Description            string `json:"description"`
	Goal                   string `json:"goal"`
	Deadline               int64  `json:"deadline"`
	FixedDonationAmount    bool   `json:"fixedDonationAmount"`
	RequiredDonationAmount string `json:"requiredDonationAmount,omitempty"`
	ChainID                uint64 `json:"chainId,omitempty"`
}

type donateParams struct {
	ID      *uint64 `json:"id"`
	Amount  string  `json:"amount"`
	ChainID uint64  `json:"chainId,omitempty"`
}

type donationParams struct {
	ID      *uint64 `json:"id"`
	Address string  `json:"address"`
}

type listParams struct {
	Offset uint64 `json:"offset"`
	Limit  uint64 `json:"limit"`
}

type listEventsParams struct {
	ID      *uint64 `json:"id,omitempty"`
	Address string  `json:"address,omitempty"`
	Limit   int     `json:"limit,omitempty"`
}

type chainParams struct {
	ChainID uint64 `json:"chainId,omitempty"`
}

type addressParams struct {
	Address string `json:"address"`
}

type campaignJSON struct {
	ID                     uint64 `json:"id"`
	Owner                  string `json:"owner"`
	Title                  string `json:"title"`
	Description            string `json:"description"`
	Goal                   string `json:"goal"`
	Deadline               int64  `json:"deadline"`
	FixedDonationAmount    bool   `json:"fixedDonationAmount"`
	RequiredDonationAmount string `json:"requiredDonationAmount"`
	AmountRaised           string `json:"amountRaised"`
	Completed              bool   `json:"completed"`
	Withdrawn              bool   `json:"withdrawn"`
	Refunded               bool   `json:"refunded"`
	Open                   bool   `json:"open"`
	CreatedAt              int64  `json:"createdAt"`
}

type donorJSON struct {
	Donor  string `json:"donor"`
	Amount string `json:"amount"`
}

type snapshotJSON struct {
	Campaign campaignJSON `json:"campaign"`
	Donors   []donorJSON  `json:"donors"`
}

type payoutJSON struct {
	CampaignID uint64  `json:"campaignId"`
	Recipient  string  `json:"recipient"`
	Gross      string  `json:"gross"`
	Net        string  `json:"net"`
	Fee        string  `json:"fee"`
	FeeSink    *string `json:"feeSink,omitempty"`
}

type refundJSON struct {
	CampaignID uint64 `json:"campaignId"`
	Donor      string `json:"donor"`
	Amount     string `json:"amount"`
}

type balanceJSON struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
}

type donationJSON struct {
	CampaignID uint64 `json:"campaignId"`
	Donor      string `json:"donor"`
	Amount     string `json:"amount"`
}

type eventRowJSON struct {
	Sequence   uint64            `json:"sequence"`
	CampaignID uint64            `json:"campaignId"`
	Type       string            `json:"type"`
	Actor      string            `json:"actor,omitempty"`
	Amount     string            `json:"amount,omitempty"`
	Attributes map[string]string `json:"attributes"`
	OccurredAt int64             `json:"occurredAt"`
}

type deploymentJSON struct {
	ChainID uint64 `json:"chainId"`
	Name    string `json:"name"`
	Address string `json:"address"`
}

func (s *Server) crowdfundMethods() map[string]method {
	return map[string]method{
		"crowdfund_createCampaign": {handler: s.handleCreateCampaign, auth: true},
		"crowdfund_donate":         {handler: s.handleDonate, auth: true},
		"crowdfund_withdraw":       {handler: s.handleWithdraw, auth: true},
		"crowdfund_claimRefund":    {handler: s.handleClaimRefund, auth: true},
		"crowdfund_getCampaign":    {handler: s.handleGetCampaign},
		"crowdfund_getDonation":    {handler: s.handleGetDonation},
		"crowdfund_listCampaigns":  {handler: s.handleListCampaigns},
		"crowdfund_campaignCount":  {handler: s.handleCampaignCount},
		"crowdfund_listEvents":     {handler: s.handleListEvents},
		"crowdfund_deployment":     {handler: s.handleDeployment},
		"bank_getBalance":          {handler: s.handleGetBalance},
	}
}

func (s *Server) handleCreateCampaign(r *http.Request, params []json.RawMessage) (interface{}, *methodError) {
	var p createCampaignParams
	if failed := decodeParams(params, &p); failed != nil {
		return nil, failed
	}
	if failed := s.checkChain(p.ChainID); failed != nil {
		return nil, failed
	}
	caller, _ := callerFrom(r.Context())
	goal, err := config.ParseAmount(p.Goal)
	if err != nil {
		return nil, crowdfundParamError("goal", err)
	}
	create := crowdfund.CreateParams{
		Title:               p.Title,
		Description:         p.Description,
		Goal:                goal,
		Deadline:            p.Deadline,
		FixedDonationAmount: p.FixedDonationAmount,
	}
	if strings.TrimSpace(p.RequiredDonationAmount) != "" {
		required, err := config.ParseAmount(p.RequiredDonationAmount)
		if err != nil {
			return nil, crowdfundParamError("requiredDonationAmount", err)
		}
		create.RequiredDonationAmount = required
	}
	campaign, err := s.node.CreateCampaign(r.Context(), caller, create)
	if err != nil {
		return nil, crowdfundError(err)
	}
	return formatCampaign(campaign, s.node.Now()), nil
}

func (s *Server) handleDonate(r *http.Request, params []json.RawMessage) (interface{}, *methodError) {
	var p donateParams
	if failed := decodeParams(params, &p); failed != nil {
		return nil, failed
	}
	if failed := s.checkChain(p.ChainID); failed != nil {
		return nil, failed
	}
	id, failed := requireID(p.ID)
	if failed != nil {
		return nil, failed
	}
	amount, err := config.ParseAmount(p.Amount)
	if err != nil {
		return nil, crowdfundParamError("amount", err)
	}
	caller, _ := callerFrom(r.Context())
	campaign, err := s.node.Donate(r.Context(), id, caller, amount)
	if err != nil {
		return nil, crowdfundError(err)
	}
	return formatCampaign(campaign, s.node.Now()), nil
}

func (s *Server) handleWithdraw(r *http.Request, params []json.RawMessage) (interface{}, *methodError) {
	var p campaignIDParams
	if failed := decodeParams(params, &p); failed != nil {
		return nil, failed
	}
	if failed := s.checkChain(p.ChainID); failed != nil {
		return nil, failed
	}
	id, failed := requireID(p.ID)
	if failed != nil {
		return nil, failed
	}
	caller, _ := callerFrom(r.Context())
	payout, err := s.node.Withdraw(r.Context(), id, caller)
	if err != nil {
		return nil, crowdfundError(err)
	}
	return formatPayout(payout), nil
}

func (s *Server) handleClaimRefund(r *http.Request, params []json.RawMessage) (interface{}, *methodError) {
	var p campaignIDParams
	if failed := decodeParams(params, &p); failed != nil {
		return nil, failed
	}
	if failed := s.checkChain(p.ChainID); failed != nil {
		return nil, failed
	}
	id, failed := requireID(p.ID)
	if failed != nil {
		return nil, failed
	}
	caller, _ := callerFrom(r.Context())
	amount, err := s.node.ClaimRefund(r.Context(), id, caller)
	if err != nil {
		return nil, crowdfundError(err)
	}
	return refundJSON{CampaignID: id, Donor: caller.Hex(), Amount: amount.Dec()}, nil
}

func (s *Server) handleGetCampaign(_ *http.Request, params []json.RawMessage) (interface{}, *methodError) {
	var p campaignIDParams
	if failed := decodeParams(params, &p); failed != nil {
		return nil, failed
	}
	id, failed := requireID(p.ID)
	if failed != nil {
		return nil, failed
	}
	snapshot, err := s.node.Campaign(id)
	if err != nil {
		return nil, crowdfundError(err)
	}
	result := snapshotJSON{Campaign: formatCampaign(snapshot.Campaign, s.node.Now()), Donors: make([]donorJSON, 0, len(snapshot.Donors))}
	for _, entry := range snapshot.Donors {
		result.Donors = append(result.Donors, donorJSON{Donor: entry.Donor.Hex(), Amount: amountString(entry.Amount)})
	}
	return result, nil
}

func (s *Server) handleGetDonation(_ *http.Request, params []json.RawMessage) (interface{}, *methodError) {
	var p donationParams
	if failed := decodeParams(params, &p); failed != nil {
		return nil, failed
	}
	id, failed := requireID(p.ID)
	if failed != nil {
		return nil, failed
	}
	donor, err := config.ParseAddress(p.Address)
	if err != nil {
		return nil, crowdfundParamError("address", err)
	}
	amount, err := s.node.Donation(id, donor)
	if err != nil {
		return nil, crowdfundError(err)
	}
	return donationJSON{CampaignID: id, Donor: donor.Hex(), Amount: amountString(amount)}, nil
}

func (s *Server) handleListCampaigns(_ *http.Request, params []json.RawMessage) (interface{}, *methodError) {
	var p listParams
	if len(params) > 0 {
		if failed := decodeParams(params, &p); failed != nil {
			return nil, failed
		}
	}
	if p.Limit == 0 {
		p.Limit = defaultListLimit
	}
	campaigns, err := s.node.Campaigns(p.Offset, p.Limit)
	if err != nil {
		return nil, crowdfundError(err)
	}
	now := s.node.Now()
	out := make([]campaignJSON, 0, len(campaigns))
	for _, c := range campaigns {
		out = append(out, formatCampaign(c, now))
	}
	return out, nil
}

func (s *Server) handleCampaignCount(_ *http.Request, _ []json.RawMessage) (interface{}, *methodError) {
	count, err := s.node.CampaignCount()
	if err != nil {
		return nil, crowdfundError(err)
	}
	return count, nil
}

func (s *Server) handleListEvents(r *http.Request, params []json.RawMessage) (interface{}, *methodError) {
	if s.index == nil {
		return nil, newMethodError(http.StatusServiceUnavailable, codeUnavailable, "event indexer disabled", nil)
	}
	var p listEventsParams
	if failed := decodeParams(params, &p); failed != nil {
		return nil, failed
	}
	var (
		rows []indexer.EventRow
		err  error
	)
	switch {
	case p.ID != nil && strings.TrimSpace(p.Address) != "":
		return nil, newMethodError(http.StatusBadRequest, codeInvalidParams, "specify either id or address", nil)
	case p.ID != nil:
		rows, err = s.index.ListByCampaign(r.Context(), *p.ID, p.Limit)
	case strings.TrimSpace(p.Address) != "":
		addr, parseErr := config.ParseAddress(p.Address)
		if parseErr != nil {
			return nil, crowdfundParamError("address", parseErr)
		}
		rows, err = s.index.ListByActor(r.Context(), addr.Hex(), p.Limit)
	default:
		return nil, newMethodError(http.StatusBadRequest, codeInvalidParams, "id or address required", nil)
	}
	if err != nil {
		return nil, newMethodError(http.StatusInternalServerError, codeServerError, "failed to query event history", err.Error())
	}
	out := make([]eventRowJSON, 0, len(rows))
	for _, row := range rows {
		out = append(out, eventRowJSON{
			Sequence:   row.Sequence,
			CampaignID: row.CampaignID,
			Type:       row.Type,
			Actor:      row.Actor,
			Amount:     row.Amount,
			Attributes: row.Attrs(),
			OccurredAt: row.OccurredAt.Unix(),
		})
	}
	return out, nil
}

func (s *Server) handleDeployment(_ *http.Request, params []json.RawMessage) (interface{}, *methodError) {
	var p chainParams
	if len(params) > 0 {
		if failed := decodeParams(params, &p); failed != nil {
			return nil, failed
		}
	}
	chainID := p.ChainID
	if chainID == 0 {
		chainID = s.node.ChainID()
	}
	for _, dep := range s.cfg.Deployments {
		if dep.ChainID == chainID {
			return deploymentJSON{ChainID: dep.ChainID, Name: dep.Name, Address: common.HexToAddress(dep.Address).Hex()}, nil
		}
	}
	return nil, newMethodError(http.StatusNotFound, codeCrowdfundNotFound, fmt.Sprintf("no deployment for chain %d", chainID), nil)
}

func (s *Server) handleGetBalance(_ *http.Request, params []json.RawMessage) (interface{}, *methodError) {
	var p addressParams
	if failed := decodeParams(params, &p); failed != nil {
		return nil, failed
	}
	addr, err := config.ParseAddress(p.Address)
	if err != nil {
		return nil, crowdfundParamError("address", err)
	}
	balance, err := s.node.Balance(addr)
	if err != nil {
		return nil, newMethodError(http.StatusInternalServerError, codeServerError, "failed to load balance", err.Error())
	}
	return balanceJSON{Address: addr.Hex(), Balance: amountString(balance)}, nil
}

// checkChain rejects mutations addressed to a different deployment.
func (s *Server) checkChain(chainID uint64) *methodError {
	if chainID == 0 || chainID == s.node.ChainID() {
		return nil
	}
	return newMethodError(http.StatusBadRequest, codeInvalidParams, "chainId does not match this ledger", map[string]uint64{
		"expected": s.node.ChainID(),
		"got":      chainID,
	})
}

func decodeParams(params []json.RawMessage, dst interface{}) *methodError {
	if len(params) != 1 {
		return newMethodError(http.StatusBadRequest, codeInvalidParams, "expected a single parameter object", nil)
	}
	dec := json.NewDecoder(bytes.NewReader(params[0]))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return newMethodError(http.StatusBadRequest, codeInvalidParams, "invalid parameter object", err.Error())
	}
	return nil
}

func requireID(id *uint64) (uint64, *methodError) {
	if id == nil {
		return 0, newMethodError(http.StatusBadRequest, codeInvalidParams, "id required", nil)
	}
	return *id, nil
}

func crowdfundParamError(field string, err error) *methodError {
	return newMethodError(http.StatusBadRequest, codeCrowdfundInvalidParams, fmt.Sprintf("invalid %s", field), err.Error())
}

// crowdfundError maps a ledger failure onto its JSON-RPC code and HTTP status.
func crowdfundError(err error) *methodError {
	if errors.Is(err, core.ErrNodeClosed) {
		return newMethodError(http.StatusServiceUnavailable, codeUnavailable, "ledger unavailable", nil)
	}
	kind := crowdfund.Kind(err)
	var (
		status int
		code   int
	)
	switch kind {
	case "validation":
		status, code = http.StatusBadRequest, codeCrowdfundInvalidParams
	case "not_found":
		status, code = http.StatusNotFound, codeCrowdfundNotFound
	case "temporal":
		status, code = http.StatusConflict, codeCrowdfundTemporal
	case "authorization":
		status, code = http.StatusForbidden, codeCrowdfundForbidden
	case "state":
		status, code = http.StatusConflict, codeCrowdfundConflict
	case "funds":
		status, code = http.StatusPaymentRequired, codeCrowdfundFunds
	default:
		return newMethodError(http.StatusInternalServerError, codeServerError, "internal ledger error", err.Error())
	}
	message := err.Error()
	var domainErr *crowdfund.Error
	if errors.As(err, &domainErr) {
		message = domainErr.Reason
	}
	return newMethodError(status, code, message, map[string]string{"kind": kind})
}

// formatCampaign renders c; open is evaluated against the node clock at now.
func formatCampaign(c *crowdfund.Campaign, now int64) campaignJSON {
	if c == nil {
		return campaignJSON{}
	}
	return campaignJSON{
		ID:                     c.ID,
		Owner:                  c.Owner.Hex(),
		Title:                  c.Title,
		Description:            c.Description,
		Goal:                   amountString(c.Goal),
		Deadline:               c.Deadline,
		FixedDonationAmount:    c.FixedDonationAmount,
		RequiredDonationAmount: amountString(c.RequiredDonationAmount),
		AmountRaised:           amountString(c.AmountRaised),
		Completed:              c.Completed,
		Withdrawn:              c.Withdrawn,
		Refunded:               c.Refunded,
		Open:                   c.Open(now),
		CreatedAt:              c.CreatedAt,
	}
}

func formatPayout(p *crowdfund.Payout) payoutJSON {
	out := payoutJSON{
		CampaignID: p.CampaignID,
		Recipient:  p.Recipient.Hex(),
		Gross:      amountString(p.Gross),
		Net:        amountString(p.Net),
		Fee:        amountString(p.Fee),
	}
	if p.FeeSink != (common.Address{}) {
		sink := p.FeeSink.Hex()
		out.FeeSink = &sink
	}
	return out
}

func amountString(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}
