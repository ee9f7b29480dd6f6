package mail

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
)

const (
	DefaultPoolSize = 10
	DefaultQuota    = 100
)

// ErrAccountNotConfigured is returned when the active slot has no
// credentials. The send counter is left where it was.
var ErrAccountNotConfigured = errors.New("mail: account not configured")

// Config sizes the rotation.
type Config struct {
	PoolSize int
	Quota    int
}

// Selection is the account chosen for one message plus diagnostics.
type Selection struct {
	Account    Account
	Slot       int
	UsedInSlot int
	TotalSent  int64
}

// RotationStatus is a read-only view of the rotation.
type RotationStatus struct {
	Slot            int   `json:"slot"`
	UsedInSlot      int   `json:"used_in_slot"`
	RemainingInSlot int   `json:"remaining_in_slot"`
	TotalSent       int64 `json:"total_sent"`
	PoolSize        int   `json:"pool_size"`
	Quota           int   `json:"quota"`
	Configured      bool  `json:"configured"`
}

// Rotator hands out accounts in quota-sized runs.
type Rotator struct {
	pool    Pool
	counter Counter
	size    int64
	quota   int64
	logger  *log.Entry
}

// NewRotator binds a pool and counter. A nil counter uses a MemoryCounter.
func NewRotator(pool Pool, counter Counter, cfg Config, logger *log.Entry) (*Rotator, error) {
	if pool == nil {
		return nil, errors.New("mail: nil pool")
	}
	if cfg.PoolSize == 0 {
		cfg.PoolSize = pool.Size()
	}
	if cfg.Quota == 0 {
		cfg.Quota = DefaultQuota
	}
	if cfg.PoolSize < 1 || cfg.Quota < 1 {
		return nil, errors.New("mail: pool size and quota must be positive")
	}
	if counter == nil {
		counter = &MemoryCounter{}
	}
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}

	return &Rotator{
		pool:    pool,
		counter: counter,
		size:    int64(cfg.PoolSize),
		quota:   int64(cfg.Quota),
		logger:  logger,
	}, nil
}

func (r *Rotator) slotFor(n int64) int {
	if n < 0 {
		n = 0
	}
	return int((n / r.quota) % r.size)
}

// Next reserves the next counter value and returns the account that owns
// it. Reservation is a single atomic increment, so concurrent callers never
// share a value. A missing account rolls the reservation back only while no
// later reservation exists; otherwise the value stays spent.
func (r *Rotator) Next(ctx context.Context) (Selection, error) {
	n, err := r.counter.Incr(ctx)
	if err != nil {
		return Selection{}, err
	}
	prev := n - 1
	slot := r.slotFor(prev)

	account, ok := r.pool.Account(slot)
	if !ok {
		swapped, err := r.counter.CompareAndSwap(ctx, n, prev)
		if err != nil {
			r.logger.WithError(err).Warn("mail: failed to roll back send counter")
		} else if !swapped {
			r.logger.WithField("slot", slot).Debug("mail: counter moved on, reservation left in place")
		}
		return Selection{}, fmt.Errorf("%w: slot %d", ErrAccountNotConfigured, slot)
	}

	used := int(prev%r.quota) + 1
	if used == 1 && prev > 0 {
		r.logger.WithField("slot", slot).Info("mail: rotated to next account")
	}

	return Selection{
		Account:    account,
		Slot:       slot,
		UsedInSlot: used,
		TotalSent:  n,
	}, nil
}

// Status reports the slot the next message would use.
func (r *Rotator) Status(ctx context.Context) (RotationStatus, error) {
	n, err := r.counter.Load(ctx)
	if err != nil {
		return RotationStatus{}, err
	}
	if n < 0 {
		n = 0
	}
	slot := r.slotFor(n)
	used := int(n % r.quota)
	_, configured := r.pool.Account(slot)

	return RotationStatus{
		Slot:            slot,
		UsedInSlot:      used,
		RemainingInSlot: int(r.quota) - used,
		TotalSent:       n,
		PoolSize:        int(r.size),
		Quota:           int(r.quota),
		Configured:      configured,
	}, nil
}

// Skip moves the counter to the first value of the next slot.
func (r *Rotator) Skip(ctx context.Context) (RotationStatus, error) {
	n, err := r.counter.Load(ctx)
	if err != nil {
		return RotationStatus{}, err
	}
	if n < 0 {
		n = 0
	}
	next := (n/r.quota + 1) * r.quota
	if err := r.counter.Store(ctx, next); err != nil {
		return RotationStatus{}, err
	}
	r.logger.WithFields(log.Fields{"from": r.slotFor(n), "to": r.slotFor(next)}).Warn("mail: account slot skipped")
	return r.Status(ctx)
}

// ReportQuotaExceeded skips slot if it is still the active one. It reports
// whether a skip happened.
func (r *Rotator) ReportQuotaExceeded(ctx context.Context, slot int) (bool, error) {
	status, err := r.Status(ctx)
	if err != nil {
		return false, err
	}
	if status.Slot != slot {
		return false, nil
	}
	if _, err := r.Skip(ctx); err != nil {
		return false, err
	}
	return true, nil
}
