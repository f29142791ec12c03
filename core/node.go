package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"crowdchain/core/events"
	"crowdchain/core/state"
	"crowdchain/native/bank"
	"crowdchain/native/crowdfund"
	"crowdchain/native/fees"
	"crowdchain/observability"
	"crowdchain/storage"
)

// ErrNodeClosed is returned by operations issued after Close.
var ErrNodeClosed = errors.New("core: node closed")

// GenesisAlloc seeds a balance the first time a data directory is opened.
type GenesisAlloc struct {
	Address common.Address
	Balance *uint256.Int
}

// Config wires the node's collaborators.
type Config struct {
	ChainID    uint64
	Commission fees.Commission
	Clock      Clock
	Logger     *slog.Logger
	Genesis    []GenesisAlloc
}

// Node is the execution substrate for the crowdfunding ledger. Every operation
// runs under a single mutex, which gives all callers one total order, and
// mutations run inside a storage overlay that commits as a single batch.
type Node struct {
	db         storage.Database
	mu         sync.Mutex
	closed     bool
	clock      Clock
	chainID    uint64
	commission fees.Commission
	logger     *slog.Logger
	receivers  map[common.Address]crowdfund.Receiver
	stream     eventStream
}

// txContext holds everything bound to one transaction.
type txContext struct {
	overlay *storage.Overlay
	manager *state.Manager
	ledger  *bank.Ledger
	engine  *crowdfund.Engine
	events  *events.Buffer
	now     int64
}

// NewNode opens a node over db and applies the genesis allocations once.
func NewNode(db storage.Database, cfg Config) (*Node, error) {
	if db == nil {
		return nil, fmt.Errorf("core: database required")
	}
	if err := cfg.Commission.Validate(); err != nil {
		return nil, err
	}
	clock := cfg.Clock
	if clock == nil {
		clock = NewSystemClock()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	n := &Node{
		db:         db,
		clock:      clock,
		chainID:    cfg.ChainID,
		commission: cfg.Commission,
		logger:     logger.With("component", "node"),
		receivers:  make(map[common.Address]crowdfund.Receiver),
	}
	if err := n.applyGenesis(cfg.Genesis); err != nil {
		return nil, err
	}
	count, err := n.CampaignCount()
	if err != nil {
		return nil, err
	}
	observability.Crowdfund().SetCampaigns(count)
	return n, nil
}

// ChainID reports the chain identifier this node serves.
func (n *Node) ChainID() uint64 { return n.chainID }

// Commission returns the withdrawal fee policy.
func (n *Node) Commission() fees.Commission { return n.commission }

// Now samples the node clock.
func (n *Node) Now() int64 { return n.clock.Now() }

// Close releases the underlying database. Subsequent calls fail.
func (n *Node) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return nil
	}
	n.closed = true
	return n.db.Close()
}

// RegisterReceiver installs a programmable payee for addr. Passing nil removes
// any existing receiver.
func (n *Node) RegisterReceiver(addr common.Address, r crowdfund.Receiver) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if r == nil {
		delete(n.receivers, addr)
		return
	}
	n.receivers[addr] = r
}

// SubscribeEvents streams committed events after cursor. The returned backlog
// holds retained events newer than the cursor.
func (n *Node) SubscribeEvents(ctx context.Context, cursor string) (<-chan EventRecord, func(), []EventRecord) {
	return n.stream.subscribe(ctx, cursor, 0)
}

func (n *Node) begin(base storage.Database, now int64) *txContext {
	overlay := storage.NewOverlay(base)
	manager := state.NewManager(overlay)
	ledger := bank.NewLedger(manager)
	buf := &events.Buffer{}
	engine := crowdfund.NewEngine()
	engine.SetState(manager)
	engine.SetBank(ledger)
	engine.SetEmitter(buf)
	engine.SetCommission(n.commission)
	engine.SetNowFunc(func() int64 { return now })
	ledger.SetCreditHook(func(from, to common.Address, amount *uint256.Int) error {
		receiver, ok := n.receivers[to]
		if !ok {
			return nil
		}
		if err := receiver.Receive(engine, from, amount); err != nil {
			return fmt.Errorf("receiver %s: %w", to.Hex(), err)
		}
		return nil
	})
	return &txContext{overlay: overlay, manager: manager, ledger: ledger, engine: engine, events: buf, now: now}
}

// execute runs fn inside a transaction. fn's writes and events are either all
// committed or all discarded.
func (n *Node) execute(ctx context.Context, op string, fn func(tx *txContext) error) error {
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	start := time.Now()
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return ErrNodeClosed
	}

	tx := n.begin(n.db, n.clock.Now())
	err := fn(tx)
	if err == nil {
		if commitErr := tx.overlay.Commit(); commitErr != nil {
			err = fmt.Errorf("commit %s: %w", op, commitErr)
		}
	}
	observability.Crowdfund().Observe(op, crowdfund.Kind(err), time.Since(start))
	if err != nil {
		tx.overlay.Discard()
		n.logger.Debug("crowdfund operation rejected", "op", op, "kind", crowdfund.Kind(err), "error", err)
		return err
	}
	for _, evt := range tx.events.Events() {
		n.stream.publish(tx.now, events.Render(evt))
	}
	return nil
}

// read runs fn against committed state under the node mutex.
func (n *Node) read(fn func(tx *txContext) error) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return ErrNodeClosed
	}
	tx := n.begin(n.db, n.clock.Now())
	defer tx.overlay.Discard()
	return fn(tx)
}

func (n *Node) applyGenesis(allocs []GenesisAlloc) error {
	return n.execute(context.Background(), "genesis", func(tx *txContext) error {
		applied, err := tx.manager.GenesisApplied()
		if err != nil {
			return err
		}
		if applied {
			return nil
		}
		for _, alloc := range allocs {
			if err := tx.ledger.Mint(alloc.Address, alloc.Balance); err != nil {
				return fmt.Errorf("genesis %s: %w", alloc.Address.Hex(), err)
			}
		}
		if err := tx.manager.MarkGenesisApplied(); err != nil {
			return err
		}
		if len(allocs) > 0 {
			n.logger.Info("genesis balances applied", "accounts", len(allocs))
		}
		return nil
	})
}
