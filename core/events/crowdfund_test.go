package events

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestCrowdfundDonatedAttributes(t *testing.T) {
	donor := common.HexToAddress("0x00000000000000000000000000000000000000d1")
	evt := CrowdfundDonated{CampaignID: 7, Donor: donor, Amount: big.NewInt(3), Raised: big.NewInt(10), Timestamp: 42}
	rendered := Render(evt)
	if rendered.Type != TypeCrowdfundDonated {
		t.Fatalf("unexpected type %q", rendered.Type)
	}
	want := map[string]string{
		"campaign":  "7",
		"donor":     donor.Hex(),
		"amount":    "3",
		"raised":    "10",
		"timestamp": "42",
	}
	for k, v := range want {
		if rendered.Attributes[k] != v {
			t.Fatalf("attribute %s: expected %q got %q", k, v, rendered.Attributes[k])
		}
	}
}

func TestWithdrawnOmitsEmptySink(t *testing.T) {
	evt := CrowdfundWithdrawn{CampaignID: 1, Payout: big.NewInt(9), Fee: nil}
	rendered := evt.Event()
	if _, ok := rendered.Attributes["feeSink"]; ok {
		t.Fatalf("expected no feeSink attribute when sink unset")
	}
	if rendered.Attributes["fee"] != "0" {
		t.Fatalf("nil fee should render as 0, got %q", rendered.Attributes["fee"])
	}
}

func TestBufferPreservesOrder(t *testing.T) {
	var buf Buffer
	buf.Emit(CrowdfundCreated{CampaignID: 0})
	buf.Emit(CrowdfundDonated{CampaignID: 0})
	buf.Emit(nil)
	got := buf.Events()
	if len(got) != 2 {
		t.Fatalf("expected 2 buffered events, got %d", len(got))
	}
	if got[0].EventType() != TypeCrowdfundCreated || got[1].EventType() != TypeCrowdfundDonated {
		t.Fatalf("unexpected order: %s, %s", got[0].EventType(), got[1].EventType())
	}
}
