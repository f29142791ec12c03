package crowdfund

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Receiver is a programmable payee. Receive runs after the ledger has been
// updated and the funds credited, inside the same transaction; the engine it
// is handed is bound to that transaction. Returning an error aborts the whole
// operation.
type Receiver interface {
	Receive(engine *Engine, from common.Address, amount *uint256.Int) error
}

// ReceiverFunc adapts a function to the Receiver interface.
type ReceiverFunc func(engine *Engine, from common.Address, amount *uint256.Int) error

// Receive implements Receiver.
func (f ReceiverFunc) Receive(engine *Engine, from common.Address, amount *uint256.Int) error {
	return f(engine, from, amount)
}
