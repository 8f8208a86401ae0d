package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"shiftbook/internal/booking"
)

// ErrStale is returned to a load that was overtaken by a newer one.
var ErrStale = errors.New("view superseded by a newer request")

type LoadFunc func(ctx context.Context, year int, month time.Month) (*booking.ViewModel, error)

// Board holds the latest view of one session. Starting a load cancels the one
// in flight, and a result is applied only if no newer load began meanwhile.
type Board struct {
	load LoadFunc

	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc
	view   *booking.ViewModel
}

func NewBoard(load LoadFunc) *Board {
	return &Board{load: load}
}

// Show loads the month. On error the previous view is returned with it.
func (b *Board) Show(ctx context.Context, year int, month time.Month) (*booking.ViewModel, error) {
	b.mu.Lock()
	b.gen++
	gen := b.gen
	if b.cancel != nil {
		b.cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	b.mu.Unlock()

	vm, err := b.load(ctx, year, month)

	b.mu.Lock()
	defer b.mu.Unlock()
	cancel()
	if gen != b.gen {
		return nil, ErrStale
	}
	b.cancel = nil
	if err != nil {
		return b.view, err
	}
	b.view = vm
	return vm, nil
}

// Apply installs a view produced by a mutation and supersedes pending loads.
func (b *Board) Apply(vm *booking.ViewModel) {
	if vm == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.gen++
	if b.cancel != nil {
		b.cancel()
		b.cancel = nil
	}
	b.view = vm
}

func (b *Board) Current() *booking.ViewModel {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.view
}

// Boards keeps one Board per session token. A board unused for longer than
// the idle TTL is evicted on a later lookup.
type Boards struct {
	mu        sync.Mutex
	idle      time.Duration
	now       func() time.Time
	lastSweep time.Time
	boards    map[string]*boardEntry
}

type boardEntry struct {
	board *Board
	used  time.Time
}

// NewBoards returns an empty set; idle <= 0 disables eviction.
func NewBoards(idle time.Duration) *Boards {
	return &Boards{idle: idle, now: time.Now, boards: make(map[string]*boardEntry)}
}

// For returns the token's board, creating it with load on first use.
func (bs *Boards) For(token string, load LoadFunc) *Board {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	now := bs.now()
	bs.sweep(now)

	e, ok := bs.boards[token]
	if !ok {
		e = &boardEntry{board: NewBoard(load)}
		bs.boards[token] = e
	}
	e.used = now
	return e.board
}

// Drop forgets the token's board, e.g. on sign-out or when the token is rejected.
func (bs *Boards) Drop(token string) {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	if e, ok := bs.boards[token]; ok {
		e.board.stop()
		delete(bs.boards, token)
	}
}

func (bs *Boards) Len() int {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	return len(bs.boards)
}

// sweep runs at most once per idle period. Callers hold bs.mu.
func (bs *Boards) sweep(now time.Time) {
	if bs.idle <= 0 || now.Sub(bs.lastSweep) < bs.idle {
		return
	}
	bs.lastSweep = now
	for token, e := range bs.boards {
		if now.Sub(e.used) > bs.idle {
			e.board.stop()
			delete(bs.boards, token)
		}
	}
}

// stop cancels the load in flight, if any.
func (b *Board) stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancel != nil {
		b.cancel()
		b.cancel = nil
	}
}
