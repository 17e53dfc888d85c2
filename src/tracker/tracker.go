package tracker

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	logger "github.com/sirupsen/logrus"

	"loankeeper/src/model"
	"loankeeper/src/signal"
)

// ConflictKind is the closed set of tracker state conflicts.
type ConflictKind string

const (
	ConflictDuplicateOpen  ConflictKind = "duplicate-open"
	ConflictNotFound       ConflictKind = "close-with-no-match"
	ConflictAmbiguousClose ConflictKind = "ambiguous-close"
)

// StateConflictError reports an instruction that conflicts with the tracked
// position set. The set is left unchanged on every conflict.
type StateConflictError struct {
	Kind   ConflictKind
	Symbol string
	Side   string
}

func (e *StateConflictError) Error() string {
	switch e.Kind {
	case ConflictDuplicateOpen:
		return fmt.Sprintf("an open %s position already exists for %s", e.Side, e.Symbol)
	case ConflictAmbiguousClose:
		return fmt.Sprintf("both long and short are open for %s, close must name a side", e.Symbol)
	default:
		return fmt.Sprintf("no open position found to close for %s", e.Symbol)
	}
}

// Store persists position transitions. The tracker stays authoritative in
// memory; the store is the durable copy behind it.
type Store interface {
	SaveOpen(ctx context.Context, position *model.Position) error
	SaveClose(ctx context.Context, position *model.Position) error
}

// ExecuteFunc runs the side effect a transition depends on, typically the
// exchange order. It runs under the symbol lock after conflict checks and
// before anything is committed: when it fails, the position set and the store
// are left exactly as they were. A nil ExecuteFunc commits unconditionally.
type ExecuteFunc func(ctx context.Context, position *model.Position) error

// Tracker owns the open-position set. All mutations for a given symbol are
// serialized by a per-symbol lock so unrelated symbols never block each other.
type Tracker struct {
	store Store
	now   func() time.Time

	mu        sync.Mutex
	locks     map[string]*sync.Mutex
	positions map[string]*model.Position // key: symbol/side
}

func New(store Store) *Tracker {
	return &Tracker{
		store:     store,
		now:       time.Now,
		locks:     make(map[string]*sync.Mutex),
		positions: make(map[string]*model.Position),
	}
}

// Warm preloads open positions, typically from the database at startup.
func (t *Tracker) Warm(positions []model.Position) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := range positions {
		p := positions[i]
		if p.Status != model.PositionStatusOpen {
			continue
		}
		t.positions[positionKey(p.Symbol, p.Side)] = &p
	}
}

// Open tracks a new position for an open-long/open-short instruction. A
// second open for the same (symbol, side) is rejected as a duplicate rather
// than silently overwritten, so the original entry price survives. The
// position is only tracked once execute reports the order went through; a
// rejected order leaves no trace, so the same signal can be retried.
func (t *Tracker) Open(ctx context.Context, strategyID uint, inst *signal.Instruction, entryPrice float64, execute ExecuteFunc) (*model.Position, error) {
	side := inst.PositionSide()

	lock := t.symbolLock(inst.Symbol)
	lock.Lock()
	defer lock.Unlock()

	key := positionKey(inst.Symbol, side)
	if t.lookup(key) != nil {
		return nil, &StateConflictError{Kind: ConflictDuplicateOpen, Symbol: inst.Symbol, Side: side}
	}

	qty, _ := inst.Quantity.Float64()
	position := &model.Position{
		StrategyID: strategyID,
		Symbol:     inst.Symbol,
		Side:       side,
		Quantity:   qty,
		EntryPrice: entryPrice,
		Status:     model.PositionStatusOpen,
		OpenedAt:   t.now(),
	}

	if execute != nil {
		if err := execute(ctx, position); err != nil {
			return nil, err
		}
	}

	if t.store != nil {
		if err := t.store.SaveOpen(ctx, position); err != nil {
			return nil, err
		}
	}

	t.insert(key, position)

	logger.WithFields(logger.Fields{
		"symbol":      inst.Symbol,
		"side":        side,
		"quantity":    qty,
		"entry_price": entryPrice,
	}).Info("Tracking position")

	return position, nil
}

// Close resolves and closes the open position matching a close instruction.
// An explicit side qualifier wins; with both sides open and no qualifier the
// close is ambiguous; with no open position it is a not-found conflict. Exit
// metadata is recorded, the full tracked quantity is always closed. The open
// struct in the set is never written after publication: the transition is
// built on a copy and the entry dropped only once execute and the store both
// succeed, so concurrent snapshot readers never observe a half-closed row.
func (t *Tracker) Close(ctx context.Context, inst *signal.Instruction, exitPrice float64, execute ExecuteFunc) (*model.Position, error) {
	lock := t.symbolLock(inst.Symbol)
	lock.Lock()
	defer lock.Unlock()

	side, err := t.resolveCloseSide(inst)
	if err != nil {
		return nil, err
	}

	key := positionKey(inst.Symbol, side)
	position := t.lookup(key)
	if position == nil {
		return nil, &StateConflictError{Kind: ConflictNotFound, Symbol: inst.Symbol, Side: side}
	}

	closed := *position
	if execute != nil {
		if err := execute(ctx, &closed); err != nil {
			return nil, err
		}
	}

	now := t.now()
	closed.Status = model.PositionStatusClosed
	closed.ExitPrice = &exitPrice
	closed.ClosedAt = &now

	if t.store != nil {
		if err := t.store.SaveClose(ctx, &closed); err != nil {
			return nil, err
		}
	}

	t.remove(key)

	logger.WithFields(logger.Fields{
		"symbol":     inst.Symbol,
		"side":       side,
		"exit_price": exitPrice,
	}).Info("Closed tracked position")

	return &closed, nil
}

// OpenPositions returns a stable snapshot of every open position.
func (t *Tracker) OpenPositions() []model.Position {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]model.Position, 0, len(t.positions))
	for _, p := range t.positions {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Symbol != out[j].Symbol {
			return out[i].Symbol < out[j].Symbol
		}
		return out[i].Side < out[j].Side
	})
	return out
}

func (t *Tracker) resolveCloseSide(inst *signal.Instruction) (string, error) {
	switch inst.CloseSide {
	case signal.SideLong:
		return model.PositionSideLong, nil
	case signal.SideShort:
		return model.PositionSideShort, nil
	}

	longOpen := t.lookup(positionKey(inst.Symbol, model.PositionSideLong)) != nil
	shortOpen := t.lookup(positionKey(inst.Symbol, model.PositionSideShort)) != nil

	switch {
	case longOpen && shortOpen:
		return "", &StateConflictError{Kind: ConflictAmbiguousClose, Symbol: inst.Symbol}
	case longOpen:
		return model.PositionSideLong, nil
	case shortOpen:
		return model.PositionSideShort, nil
	default:
		return "", &StateConflictError{Kind: ConflictNotFound, Symbol: inst.Symbol}
	}
}

// symbolLock hands out the serialization lock for one symbol.
func (t *Tracker) symbolLock(symbol string) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()

	lock, ok := t.locks[symbol]
	if !ok {
		lock = &sync.Mutex{}
		t.locks[symbol] = lock
	}
	return lock
}

func (t *Tracker) lookup(key string) *model.Position {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.positions[key]
}

func (t *Tracker) insert(key string, position *model.Position) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.positions[key] = position
}

func (t *Tracker) remove(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.positions, key)
}

func positionKey(symbol, side string) string {
	return symbol + "/" + side
}
