// Package points keeps the loyalty-point history. The history lives in the
// headless CMS, not in the primary database: every row carries both the
// balance change and the resulting balance, and the current balance of a user
// is whatever the most recent row says.
package points

import (
	"context"
	"fmt"
	"sync"

	"github.com/MAGICGrants/campaign-site"
)

// Store is the CMS collection holding point history rows.
type Store interface {
	LatestEntry(ctx context.Context, userID string) (*campaign.PointEntry, error)
	CreateEntry(ctx context.Context, entry *campaign.PointEntry) error
}

// Ledger serializes balance updates per user. The CMS API has no transactions,
// so without this two concurrent grants to the same user could both read the
// same balance and one update would be lost.
type Ledger struct {
	store Store

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewLedger(store Store) *Ledger {
	return &Ledger{store: store, locks: make(map[string]*sync.Mutex)}
}

func (l *Ledger) userLock(userID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock, ok := l.locks[userID]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[userID] = lock
	}
	return lock
}

// Balance returns the user's current balance, taken from the latest history
// row. A user with no history has balance 0.
func (l *Ledger) Balance(ctx context.Context, userID string) (int64, error) {
	entry, err := l.store.LatestEntry(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("could not get point balance: %w", err)
	}
	if entry == nil {
		return 0, nil
	}
	return entry.Balance, nil
}

// Grant appends a positive balance change referencing the donation that
// funded it.
func (l *Ledger) Grant(ctx context.Context, points int64, d *campaign.Donation) error {
	if d.UserID == nil {
		return fmt.Errorf("cannot give points for donation %s with no user", d.ID)
	}
	userID := *d.UserID

	lock := l.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	balance, err := l.Balance(ctx, userID)
	if err != nil {
		return err
	}

	if err := l.store.CreateEntry(ctx, &campaign.PointEntry{
		UserID:        userID,
		BalanceChange: points,
		Balance:       balance + points,
		DonationID:    d.ID,
		ProjectName:   d.ProjectName,
		ProjectSlug:   d.ProjectSlug,
		FundSlug:      d.FundSlug,
	}); err != nil {
		return fmt.Errorf("could not create point history entry: %w", err)
	}
	return nil
}

// Deduct appends a negative balance change for a perk redemption.
func (l *Ledger) Deduct(ctx context.Context, userID string, points int64, perkID, orderID string) error {
	lock := l.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	balance, err := l.Balance(ctx, userID)
	if err != nil {
		return err
	}
	if balance < points {
		return campaign.Statusf(400, "Not enough points: balance %d, needed %d", balance, points)
	}

	if err := l.store.CreateEntry(ctx, &campaign.PointEntry{
		UserID:        userID,
		BalanceChange: -points,
		Balance:       balance - points,
		PerkID:        perkID,
		OrderID:       orderID,
	}); err != nil {
		return fmt.Errorf("could not create point history entry: %w", err)
	}
	return nil
}
