package bank

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	ErrInsufficientBalance = errors.New("bank: insufficient balance")
	ErrBalanceOverflow     = errors.New("bank: balance overflow")
	errNilState            = errors.New("bank: state not configured")
)

type balanceState interface {
	Balance(addr common.Address) (*uint256.Int, error)
	SetBalance(addr common.Address, amount *uint256.Int) error
}

// CreditHook is invoked after a transfer has been applied to state. A non-nil
// error aborts the enclosing operation.
type CreditHook func(from, to common.Address, amount *uint256.Int) error

// Ledger moves native balances between accounts.
type Ledger struct {
	state balanceState
	hook  CreditHook
}

// NewLedger binds a ledger to the provided balance store.
func NewLedger(state balanceState) *Ledger {
	return &Ledger{state: state}
}

// SetCreditHook installs the hook fired for every credited recipient.
func (l *Ledger) SetCreditHook(hook CreditHook) { l.hook = hook }

// Balance returns the balance held by addr.
func (l *Ledger) Balance(addr common.Address) (*uint256.Int, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	return l.state.Balance(addr)
}

// Mint credits addr without a matching debit. Only genesis seeding uses it.
func (l *Ledger) Mint(addr common.Address, amount *uint256.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if amount == nil || amount.IsZero() {
		return nil
	}
	current, err := l.state.Balance(addr)
	if err != nil {
		return err
	}
	updated, overflow := new(uint256.Int).AddOverflow(current, amount)
	if overflow {
		return ErrBalanceOverflow
	}
	return l.state.SetBalance(addr, updated)
}

// Transfer debits from and credits to. Balances are written before the credit
// hook runs, so a hook observing the ledger sees the post-transfer state.
func (l *Ledger) Transfer(from, to common.Address, amount *uint256.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if amount == nil || amount.IsZero() {
		return nil
	}
	fromBal, err := l.state.Balance(from)
	if err != nil {
		return err
	}
	if fromBal.Lt(amount) {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientBalance, fromBal, amount)
	}
	if from != to {
		toBal, err := l.state.Balance(to)
		if err != nil {
			return err
		}
		credited, overflow := new(uint256.Int).AddOverflow(toBal, amount)
		if overflow {
			return ErrBalanceOverflow
		}
		if err := l.state.SetBalance(from, new(uint256.Int).Sub(fromBal, amount)); err != nil {
			return err
		}
		if err := l.state.SetBalance(to, credited); err != nil {
			return err
		}
	}
	if l.hook != nil {
		return l.hook(from, to, new(uint256.Int).Set(amount))
	}
	return nil
}
