// Package memory is an in-process implementation of store.UnitOfWork used by
// application tests. A single mutex serializes units of work, which stands in
// for the row locks the Postgres repositories take.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/khidma/service-settlement/internal/domain/booking"
	"github.com/khidma/service-settlement/internal/domain/payout"
	"github.com/khidma/service-settlement/internal/domain/promo"
	"github.com/khidma/service-settlement/internal/domain/store"
	"github.com/khidma/service-settlement/internal/domain/wallet"
	"github.com/khidma/service-settlement/pkg/domain"
)

type accountKey struct {
	owner   uuid.UUID
	account wallet.Account
}

type state struct {
	promos      map[uuid.UUID]promo.Snapshot
	usages      []promo.Usage
	bookings    map[uuid.UUID]booking.Snapshot
	ledger      map[accountKey][]wallet.Transaction
	profiles    map[uuid.UUID]payout.ProviderProfile
	withdrawals map[uuid.UUID]payout.Snapshot
}

func newState() *state {
	return &state{
		promos:      map[uuid.UUID]promo.Snapshot{},
		bookings:    map[uuid.UUID]booking.Snapshot{},
		ledger:      map[accountKey][]wallet.Transaction{},
		profiles:    map[uuid.UUID]payout.ProviderProfile{},
		withdrawals: map[uuid.UUID]payout.Snapshot{},
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.promos {
		c.promos[k] = v
	}
	c.usages = append([]promo.Usage(nil), s.usages...)
	for k, v := range s.bookings {
		c.bookings[k] = v
	}
	for k, v := range s.ledger {
		c.ledger[k] = append([]wallet.Transaction(nil), v...)
	}
	for k, v := range s.profiles {
		c.profiles[k] = v
	}
	for k, v := range s.withdrawals {
		c.withdrawals[k] = v
	}
	return c
}

// Store holds all aggregates in memory.
type Store struct {
	mu          sync.Mutex
	data        *state
	failCommits int
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{data: newState()}
}

// FailNextCommits makes the next n units of work fail with a persistence
// conflict instead of committing.
func (s *Store) FailNextCommits(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failCommits = n
}

// Do runs fn against a private copy of the data and commits it when fn
// returns nil.
func (s *Store) Do(ctx context.Context, fn func(r store.Repositories) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.data.clone()
	if err := fn(reposFor(base{st: work, lock: noLock})); err != nil {
		return err
	}
	if s.failCommits > 0 {
		s.failCommits--
		return domain.NewConflictError("simulated serialization failure")
	}
	s.data = work
	return nil
}

// Repos returns repositories that read and write committed data directly.
func (s *Store) Repos() store.Repositories {
	return reposFor(base{owner: s, lock: func() func() {
		s.mu.Lock()
		return s.mu.Unlock
	}})
}

func noLock() func() { return func() {} }

func reposFor(b base) store.Repositories {
	return store.Repositories{
		Promos:   &promoRepo{b},
		Bookings: &bookingRepo{b},
		Ledger:   &ledgerRepo{b},
		Payouts:  &payoutRepo{b},
	}
}

// base resolves the state a repository works on. Transactional repositories
// carry their own copy; committed ones read the store under its mutex.
type base struct {
	st    *state
	owner *Store
	lock  func() func()
}

func (b base) with(fn func(st *state) error) error {
	unlock := b.lock()
	defer unlock()
	st := b.st
	if st == nil {
		st = b.owner.data
	}
	return fn(st)
}

func page(total, p, limit int) (int, int) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if p <= 0 {
		p = 1
	}
	start := (p - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}
	return start, end
}

// --- promos ---

type promoRepo struct{ base }

func (r *promoRepo) Save(_ context.Context, p *promo.PromoCode) error {
	return r.with(func(st *state) error {
		for _, existing := range st.promos {
			if existing.Code == p.Code() {
				return &domain.DomainError{Err: domain.ErrConflict, Message: "PromoCode " + p.Code() + " already exists"}
			}
		}
		st.promos[p.ID()] = p.Snapshot()
		return nil
	})
}

func (r *promoRepo) Update(_ context.Context, p *promo.PromoCode) error {
	return r.with(func(st *state) error {
		cur, ok := st.promos[p.ID()]
		if !ok {
			return domain.NewNotFoundError("PromoCode", p.ID().String())
		}
		if cur.Version != p.Version()-1 {
			return domain.NewConflictError("promo code was modified by another transaction")
		}
		next := p.Snapshot()
		next.UsedCount = cur.UsedCount
		st.promos[p.ID()] = next
		return nil
	})
}

func (r *promoRepo) FindByID(_ context.Context, id uuid.UUID) (*promo.PromoCode, error) {
	var out *promo.PromoCode
	err := r.with(func(st *state) error {
		s, ok := st.promos[id]
		if !ok {
			return domain.NewNotFoundError("PromoCode", id.String())
		}
		out = promo.Reconstruct(s)
		return nil
	})
	return out, err
}

func (r *promoRepo) FindByCode(_ context.Context, code string) (*promo.PromoCode, error) {
	var out *promo.PromoCode
	err := r.with(func(st *state) error {
		code = promo.NormalizeCode(code)
		for _, s := range st.promos {
			if s.Code == code {
				out = promo.Reconstruct(s)
				return nil
			}
		}
		return domain.NewNotFoundError("PromoCode", code)
	})
	return out, err
}

func (r *promoRepo) FindByCodeForUpdate(ctx context.Context, code string) (*promo.PromoCode, error) {
	return r.FindByCode(ctx, code)
}

func (r *promoRepo) List(_ context.Context, f promo.ListFilter) ([]*promo.PromoCode, int64, error) {
	var out []*promo.PromoCode
	err := r.with(func(st *state) error {
		for _, s := range st.promos {
			if f.OwnerID != nil && (s.OwnerID == nil || *s.OwnerID != *f.OwnerID) {
				continue
			}
			if f.ActiveOnly && !s.IsActive {
				continue
			}
			out = append(out, promo.Reconstruct(s))
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt().After(out[j].CreatedAt()) })
	start, end := page(len(out), f.Page, f.Limit)
	return out[start:end], int64(len(out)), err
}

func (r *promoRepo) IncrementUsedCount(_ context.Context, id uuid.UUID) error {
	return r.with(func(st *state) error {
		s, ok := st.promos[id]
		if !ok || (s.UsageLimit != nil && s.UsedCount >= *s.UsageLimit) {
			return promo.ReasonUsageLimitReached.Err()
		}
		s.UsedCount++
		st.promos[id] = s
		return nil
	})
}

func (r *promoRepo) CountUsage(_ context.Context, promoID, userID uuid.UUID) (int64, error) {
	var n int64
	err := r.with(func(st *state) error {
		for _, u := range st.usages {
			if u.PromoCodeID == promoID && u.UserID == userID {
				n++
			}
		}
		return nil
	})
	return n, err
}

func (r *promoRepo) SaveUsage(_ context.Context, u *promo.Usage) error {
	return r.with(func(st *state) error {
		for _, existing := range st.usages {
			if existing.PromoCodeID == u.PromoCodeID && existing.BookingID == u.BookingID {
				return &domain.DomainError{Err: domain.ErrConflict, Message: "promo already redeemed for booking"}
			}
		}
		st.usages = append(st.usages, *u)
		return nil
	})
}

func (r *promoRepo) ReleaseUsage(_ context.Context, promoID, bookingID uuid.UUID) error {
	return r.with(func(st *state) error {
		for i, u := range st.usages {
			if u.PromoCodeID != promoID || u.BookingID != bookingID {
				continue
			}
			st.usages = append(st.usages[:i:i], st.usages[i+1:]...)
			if s, ok := st.promos[promoID]; ok && s.UsedCount > 0 {
				s.UsedCount--
				st.promos[promoID] = s
			}
			return nil
		}
		return nil
	})
}

// --- bookings ---

type bookingRepo struct{ base }

func (r *bookingRepo) Save(_ context.Context, b *booking.Booking) error {
	return r.with(func(st *state) error {
		st.bookings[b.ID()] = b.Snapshot()
		return nil
	})
}

func (r *bookingRepo) FindByID(_ context.Context, id uuid.UUID) (*booking.Booking, error) {
	var out *booking.Booking
	err := r.with(func(st *state) error {
		s, ok := st.bookings[id]
		if !ok {
			return domain.NewNotFoundError("Booking", id.String())
		}
		out = booking.Reconstitute(s)
		return nil
	})
	return out, err
}

func (r *bookingRepo) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*booking.Booking, error) {
	return r.FindByID(ctx, id)
}

func (r *bookingRepo) Update(_ context.Context, b *booking.Booking) error {
	return r.with(func(st *state) error {
		cur, ok := st.bookings[b.ID()]
		if !ok || cur.Version != b.Version()-1 {
			return domain.NewConflictError("booking was modified by another transaction")
		}
		st.bookings[b.ID()] = b.Snapshot()
		return nil
	})
}

func (r *bookingRepo) ConfirmPayment(_ context.Context, b *booking.Booking) error {
	return r.with(func(st *state) error {
		cur, ok := st.bookings[b.ID()]
		if !ok || cur.Version != b.Version()-1 ||
			cur.Status != booking.StatusPending || cur.PaymentStatus != booking.PaymentUnpaid {
			return domain.NewConflictError("booking is no longer awaiting payment")
		}
		st.bookings[b.ID()] = b.Snapshot()
		return nil
	})
}

func (r *bookingRepo) ExpireIfDue(_ context.Context, id uuid.UUID, now time.Time) (bool, error) {
	changed := false
	err := r.with(func(st *state) error {
		s, ok := st.bookings[id]
		if !ok {
			return nil
		}
		b := booking.Reconstitute(s)
		if b.Expire(now) != nil {
			return nil
		}
		st.bookings[id] = b.Snapshot()
		changed = true
		return nil
	})
	return changed, err
}

func (r *bookingRepo) FindExpiredIDs(_ context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	var overdue []booking.Snapshot
	err := r.with(func(st *state) error {
		for _, s := range st.bookings {
			if s.Status == booking.StatusPending && s.PaymentStatus == booking.PaymentUnpaid &&
				s.PaymentDeadline != nil && s.PaymentDeadline.Before(now) {
				overdue = append(overdue, s)
			}
		}
		return nil
	})
	sort.Slice(overdue, func(i, j int) bool { return overdue[i].PaymentDeadline.Before(*overdue[j].PaymentDeadline) })
	if limit > 0 && len(overdue) > limit {
		overdue = overdue[:limit]
	}
	ids := make([]uuid.UUID, len(overdue))
	for i, s := range overdue {
		ids[i] = s.ID
	}
	return ids, err
}

func (r *bookingRepo) List(_ context.Context, f booking.ListFilter) ([]*booking.Booking, int64, error) {
	var out []*booking.Booking
	err := r.with(func(st *state) error {
		for _, s := range st.bookings {
			if f.ClientID != nil && s.ClientID != *f.ClientID {
				continue
			}
			if f.ProviderID != nil && s.ProviderID != *f.ProviderID {
				continue
			}
			if f.Status != "" && s.Status != f.Status {
				continue
			}
			out = append(out, booking.Reconstitute(s))
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt().After(out[j].CreatedAt()) })
	start, end := page(len(out), f.Page, f.Limit)
	return out[start:end], int64(len(out)), err
}

// --- ledger ---

type ledgerRepo struct{ base }

func (r *ledgerRepo) LockAccount(context.Context, uuid.UUID, wallet.Account) error {
	return nil
}

func (r *ledgerRepo) Latest(_ context.Context, ownerID uuid.UUID, account wallet.Account) (*wallet.Transaction, error) {
	var out *wallet.Transaction
	err := r.with(func(st *state) error {
		rows := st.ledger[accountKey{ownerID, account}]
		if len(rows) > 0 {
			last := rows[len(rows)-1]
			out = &last
		}
		return nil
	})
	return out, err
}

func (r *ledgerRepo) Append(_ context.Context, tx *wallet.Transaction) error {
	return r.with(func(st *state) error {
		key := accountKey{tx.OwnerID, tx.Account}
		if int64(len(st.ledger[key])+1) != tx.Sequence {
			return domain.NewConflictError("ledger sequence already taken")
		}
		st.ledger[key] = append(st.ledger[key], *tx)
		return nil
	})
}

func (r *ledgerRepo) List(ctx context.Context, ownerID uuid.UUID, account wallet.Account, p, limit int) ([]*wallet.Transaction, int64, error) {
	all, err := r.ListAll(ctx, ownerID, account)
	if err != nil {
		return nil, 0, err
	}
	for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
		all[i], all[j] = all[j], all[i]
	}
	start, end := page(len(all), p, limit)
	return all[start:end], int64(len(all)), nil
}

func (r *ledgerRepo) ListAll(_ context.Context, ownerID uuid.UUID, account wallet.Account) ([]*wallet.Transaction, error) {
	var out []*wallet.Transaction
	err := r.with(func(st *state) error {
		rows := st.ledger[accountKey{ownerID, account}]
		out = make([]*wallet.Transaction, len(rows))
		for i := range rows {
			row := rows[i]
			out[i] = &row
		}
		return nil
	})
	return out, err
}

// --- payouts ---

type payoutRepo struct{ base }

func (r *payoutRepo) FindProfile(_ context.Context, providerID uuid.UUID) (*payout.ProviderProfile, error) {
	var out *payout.ProviderProfile
	err := r.with(func(st *state) error {
		if p, ok := st.profiles[providerID]; ok {
			out = &p
		}
		return nil
	})
	return out, err
}

func (r *payoutRepo) UpsertProfile(_ context.Context, p *payout.ProviderProfile) error {
	return r.with(func(st *state) error {
		st.profiles[p.ProviderID] = *p
		return nil
	})
}

func (r *payoutRepo) SaveRequest(_ context.Context, w *payout.WithdrawalRequest) error {
	return r.with(func(st *state) error {
		st.withdrawals[w.ID()] = w.Snapshot()
		return nil
	})
}

func (r *payoutRepo) FindRequest(_ context.Context, id uuid.UUID) (*payout.WithdrawalRequest, error) {
	var out *payout.WithdrawalRequest
	err := r.with(func(st *state) error {
		s, ok := st.withdrawals[id]
		if !ok {
			return domain.NewNotFoundError("WithdrawalRequest", id.String())
		}
		out = payout.Reconstitute(s)
		return nil
	})
	return out, err
}

func (r *payoutRepo) FindRequestForUpdate(ctx context.Context, id uuid.UUID) (*payout.WithdrawalRequest, error) {
	return r.FindRequest(ctx, id)
}

func (r *payoutRepo) UpdateRequest(_ context.Context, w *payout.WithdrawalRequest) error {
	return r.with(func(st *state) error {
		cur, ok := st.withdrawals[w.ID()]
		if !ok || cur.Version != w.Version()-1 {
			return domain.NewConflictError("withdrawal request was modified by another transaction")
		}
		st.withdrawals[w.ID()] = w.Snapshot()
		return nil
	})
}

func (r *payoutRepo) SumReserved(_ context.Context, providerID uuid.UUID) (decimal.Decimal, error) {
	sum := decimal.Zero
	err := r.with(func(st *state) error {
		for _, s := range st.withdrawals {
			if s.ProviderID != providerID {
				continue
			}
			for _, reserving := range payout.ReservingStatuses {
				if s.Status == reserving {
					sum = sum.Add(s.Amount)
				}
			}
		}
		return nil
	})
	return sum, err
}

func (r *payoutRepo) List(_ context.Context, f payout.ListFilter) ([]*payout.WithdrawalRequest, int64, error) {
	var out []*payout.WithdrawalRequest
	err := r.with(func(st *state) error {
		for _, s := range st.withdrawals {
			if f.ProviderID != nil && s.ProviderID != *f.ProviderID {
				continue
			}
			if f.Status != "" && !strings.EqualFold(string(s.Status), string(f.Status)) {
				continue
			}
			out = append(out, payout.Reconstitute(s))
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt().After(out[j].CreatedAt()) })
	start, end := page(len(out), f.Page, f.Limit)
	return out[start:end], int64(len(out)), err
}

var _ store.UnitOfWork = (*Store)(nil)
