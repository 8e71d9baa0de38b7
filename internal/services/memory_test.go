package services

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"bankledger/internal/events"
	"bankledger/internal/identifiers"
	"bankledger/internal/ledger"
	"bankledger/internal/store"
	"bankledger/internal/websocket"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

type memState struct {
	owners    map[string]store.Owner
	accounts  map[string]store.Account
	movements []ledger.Movement
	audit     []store.AuditEntry
}

func (s memState) clone() memState {
	c := memState{
		owners:    make(map[string]store.Owner, len(s.owners)),
		accounts:  make(map[string]store.Account, len(s.accounts)),
		movements: append([]ledger.Movement(nil), s.movements...),
		audit:     append([]store.AuditEntry(nil), s.audit...),
	}
	for k, v := range s.owners {
		c.owners[k] = v
	}
	for k, v := range s.accounts {
		c.accounts[k] = v
	}
	return c
}

// memStore implements every store interface over maps. Writes that would break
// a database constraint fail with the same pq error codes.
type memStore struct {
	mu    sync.Mutex
	state memState
	jobs  map[int64]store.Job
	clock *fakeClock

	insertErr        error
	createAccountErr []error
	onInsert         func()
}

func newMemStore(clock *fakeClock) *memStore {
	return &memStore{
		state: memState{
			owners:   map[string]store.Owner{},
			accounts: map[string]store.Account{},
		},
		jobs: map[int64]store.Job{
			1:  {ID: 1, Name: "Medico", MonthlySalary: decimal.RequireFromString("2000.00")},
			5:  {ID: 5, Name: "Programmatore", MonthlySalary: decimal.RequireFromString("1500.00")},
			10: {ID: 10, Name: "Disoccupato", MonthlySalary: decimal.Zero},
		},
		clock: clock,
	}
}

func (m *memStore) snapshot() memState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.clone()
}

func (m *memStore) restore(state memState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = state
}

func (m *memStore) seedOwner(id string) store.Owner {
	m.mu.Lock()
	defer m.mu.Unlock()
	owner := store.Owner{ID: id, HolderCode: "CT" + id, CreatedAt: m.clock.Now()}
	m.state.owners[id] = owner
	return owner
}

func (m *memStore) seedAccount(id, number, ownerID string, balance int64, createdAt time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.accounts[id] = store.Account{ID: id, Number: number, OwnerID: ownerID, Balance: balance, CreatedAt: createdAt, UpdatedAt: createdAt}
	if balance > 0 {
		target := id
		m.state.movements = append(m.state.movements, ledger.Movement{
			ID: "seed-" + id, Kind: ledger.KindDeposit, AmountMinor: balance, TargetID: &target, CreatedAt: createdAt,
		})
	}
}

func (m *memStore) balance(id string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.accounts[id].Balance
}

func (m *memStore) movementCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.state.movements)
}

func (m *memStore) derived(id string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return ledger.Balance(id, m.state.movements)
}

// accounts

func (m *memStore) Create(_ context.Context, _ store.Execer, id, number, ownerID string, createdAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.createAccountErr) > 0 {
		err := m.createAccountErr[0]
		m.createAccountErr = m.createAccountErr[1:]
		return err
	}
	for _, account := range m.state.accounts {
		if account.Number == number {
			return &pq.Error{Code: "23505", Constraint: accountNumberConstraint}
		}
	}
	m.state.accounts[id] = store.Account{ID: id, Number: number, OwnerID: ownerID, CreatedAt: createdAt, UpdatedAt: createdAt}
	return nil
}

func (m *memStore) NumberExists(_ context.Context, _ store.Getter, number string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, account := range m.state.accounts {
		if account.Number == number {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) GetByID(_ context.Context, accountID string) (store.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.state.accounts[accountID]
	if !ok {
		return store.Account{}, sql.ErrNoRows
	}
	return account, nil
}

func (m *memStore) GetByNumber(_ context.Context, number string) (store.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, account := range m.state.accounts {
		if account.Number == number {
			return account, nil
		}
	}
	return store.Account{}, sql.ErrNoRows
}

func (m *memStore) ListByOwner(_ context.Context, ownerID string) ([]store.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var rows []store.Account
	for _, account := range m.state.accounts {
		if account.OwnerID == ownerID {
			rows = append(rows, account)
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
			return rows[i].ID < rows[j].ID
		}
		return rows[i].CreatedAt.Before(rows[j].CreatedAt)
	})
	return rows, nil
}

func (m *memStore) GetForUpdate(ctx context.Context, _ store.Getter, accountID string) (store.Account, error) {
	return m.GetByID(ctx, accountID)
}

func (m *memStore) ListByOwnerForUpdate(ctx context.Context, _ store.Selecter, ownerID string) ([]store.Account, error) {
	rows, err := m.ListByOwner(ctx, ownerID)
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })
	return rows, err
}

func (m *memStore) UpdateBalance(_ context.Context, _ store.Execer, accountID string, balance int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if balance < 0 {
		return &pq.Error{Code: "23514", Constraint: "accounts_balance_non_negative"}
	}
	account := m.state.accounts[accountID]
	account.Balance = balance
	account.UpdatedAt = m.clock.Now()
	m.state.accounts[accountID] = account
	return nil
}

func (m *memStore) LatestOpenedAt(_ context.Context, _ store.Getter, ownerID string) (*time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *time.Time
	for _, account := range m.state.accounts {
		if account.OwnerID != ownerID {
			continue
		}
		created := account.CreatedAt
		if latest == nil || created.After(*latest) {
			latest = &created
		}
	}
	return latest, nil
}

func (m *memStore) DeleteByOwner(_ context.Context, _ store.Execer, ownerID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var deleted int64
	for id, account := range m.state.accounts {
		if account.OwnerID == ownerID {
			delete(m.state.accounts, id)
			deleted++
		}
	}
	return deleted, nil
}

// movements

func (m *memStore) Insert(_ context.Context, _ store.Getter, mv ledger.Movement) (ledger.Movement, error) {
	if m.onInsert != nil {
		m.onInsert()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return ledger.Movement{}, m.insertErr
	}
	if mv.ClientRequestID != nil {
		for _, existing := range m.state.movements {
			if existing.ClientRequestID != nil && *existing.ClientRequestID == *mv.ClientRequestID {
				return ledger.Movement{}, &pq.Error{Code: "23505", Constraint: clientRequestConstraint}
			}
		}
	}
	mv.CreatedAt = m.clock.Advance(time.Millisecond)
	m.state.movements = append(m.state.movements, mv)
	return mv, nil
}

func (m *memStore) ListForAccount(_ context.Context, accountID string, limit, offset int) ([]ledger.Movement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var rows []ledger.Movement
	for _, mv := range m.state.movements {
		if mv.Source() == accountID || mv.Target() == accountID {
			rows = append(rows, mv)
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
			return rows[i].ID > rows[j].ID
		}
		return rows[i].CreatedAt.After(rows[j].CreatedAt)
	})
	if offset >= len(rows) {
		return nil, nil
	}
	rows = rows[offset:]
	if limit < len(rows) {
		rows = rows[:limit]
	}
	return rows, nil
}

func (m *memStore) AllForAccount(ctx context.Context, _ store.Selecter, accountID string) ([]ledger.Movement, error) {
	return m.ListForAccount(ctx, accountID, 1<<30, 0)
}

// audit

func (m *memStore) Log(_ context.Context, _ store.Execer, actorID, action, entityType, entityID, data string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry := store.AuditEntry{Action: action, EntityType: entityType, EntityID: entityID, Data: data, CreatedAt: m.clock.Now()}
	if actorID != "" {
		entry.ActorOwnerID = &actorID
	}
	m.state.audit = append(m.state.audit, entry)
	return nil
}

func (m *memStore) ListByActor(_ context.Context, ownerID string, limit, offset int) ([]store.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var rows []store.AuditEntry
	for i := len(m.state.audit) - 1; i >= 0; i-- {
		entry := m.state.audit[i]
		if entry.ActorOwnerID != nil && *entry.ActorOwnerID == ownerID {
			rows = append(rows, entry)
		}
	}
	if offset >= len(rows) {
		return nil, nil
	}
	rows = rows[offset:]
	if limit < len(rows) {
		rows = rows[:limit]
	}
	return rows, nil
}

// memOwners adapts memStore to OwnerStore; the method sets overlap with AccountStore.
type memOwners struct{ *memStore }

func (o memOwners) Create(_ context.Context, _ store.Execer, owner store.Owner) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, existing := range o.state.owners {
		if existing.HolderCode == owner.HolderCode {
			return &pq.Error{Code: "23505", Constraint: holderCodeConstraint}
		}
	}
	owner.CreatedAt = o.clock.Now()
	o.state.owners[owner.ID] = owner
	return nil
}

func (o memOwners) HolderCodeExists(_ context.Context, _ store.Getter, code string) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, existing := range o.state.owners {
		if existing.HolderCode == code {
			return true, nil
		}
	}
	return false, nil
}

func (o memOwners) GetByHolderCode(_ context.Context, code string) (store.Owner, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, existing := range o.state.owners {
		if existing.HolderCode == code {
			return existing, nil
		}
	}
	return store.Owner{}, sql.ErrNoRows
}

func (o memOwners) GetByID(_ context.Context, ownerID string) (store.Owner, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	owner, ok := o.state.owners[ownerID]
	if !ok {
		return store.Owner{}, sql.ErrNoRows
	}
	return owner, nil
}

func (o memOwners) GetForUpdate(ctx context.Context, _ store.Getter, ownerID string) (store.Owner, error) {
	return o.GetByID(ctx, ownerID)
}

func (o memOwners) Delete(_ context.Context, _ store.Execer, ownerID string) (int64, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.state.owners[ownerID]; !ok {
		return 0, nil
	}
	delete(o.state.owners, ownerID)
	return 1, nil
}

type memJobs struct{ *memStore }

func (j memJobs) GetByName(_ context.Context, name string) (store.Job, error) {
	for _, job := range j.jobs {
		if job.Name == name {
			return job, nil
		}
	}
	return store.Job{}, sql.ErrNoRows
}

func (j memJobs) GetByID(_ context.Context, jobID int64) (store.Job, error) {
	job, ok := j.jobs[jobID]
	if !ok {
		return store.Job{}, sql.ErrNoRows
	}
	return job, nil
}

func (j memJobs) List(context.Context) ([]store.Job, error) {
	rows := make([]store.Job, 0, len(j.jobs))
	for _, job := range j.jobs {
		rows = append(rows, job)
	}
	sort.Slice(rows, func(a, b int) bool { return rows[a].Name < rows[b].Name })
	return rows, nil
}

// memTxRunner runs one unit of work at a time and restores the previous state
// when it fails, like a serializable database transaction.
type memTxRunner struct {
	mu        sync.Mutex
	store     *memStore
	conflicts int
	attempts  int
}

func (r *memTxRunner) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	r.attempts++
	before := r.store.snapshot()
	err := fn(nil)
	if err == nil && r.conflicts > 0 {
		r.conflicts--
		err = &pq.Error{Code: "40001", Message: "could not serialize access due to concurrent update"}
	}
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		r.store.restore(before)
		return err
	}
	return nil
}

type recordingHub struct {
	mu      sync.Mutex
	updates map[string][]websocket.BalanceUpdate
}

func (h *recordingHub) BroadcastBalance(ownerID string, update websocket.BalanceUpdate) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.updates == nil {
		h.updates = map[string][]websocket.BalanceUpdate{}
	}
	h.updates[ownerID] = append(h.updates[ownerID], update)
}

func (h *recordingHub) count(ownerID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.updates[ownerID])
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.MovementCommitted
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, event events.MovementCommitted) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

type harness struct {
	clock     *fakeClock
	store     *memStore
	runner    *memTxRunner
	hub       *recordingHub
	publisher *recordingPublisher
	engine    *Engine
	owners    *OwnerService
	accounts  *AccountService
	teller    *Teller
}

func newHarness() *harness {
	clock := newFakeClock()
	mem := newMemStore(clock)
	runner := &memTxRunner{store: mem}
	hub := &recordingHub{}
	publisher := &recordingPublisher{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	engine := NewEngine(runner, mem, mem, mem, hub, publisher, logger)
	owners := NewOwnerService(runner, memOwners{mem}, mem, memJobs{mem}, mem, identifiers.HolderCodes(), logger)
	accounts := NewAccountService(runner, engine, memOwners{mem}, mem, mem, mem, AccountServiceConfig{
		OpeningWindow:     24 * time.Hour,
		WelcomeBonusMinor: 10000,
		Numbers:           identifiers.AccountNumbers(),
	}, logger)
	accounts.now = clock.Now
	teller := NewTeller(engine, mem, memOwners{mem}, memJobs{mem})

	return &harness{
		clock:     clock,
		store:     mem,
		runner:    runner,
		hub:       hub,
		publisher: publisher,
		engine:    engine,
		owners:    owners,
		accounts:  accounts,
		teller:    teller,
	}
}
