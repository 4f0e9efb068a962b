package store

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"landregistry/internal/registry/models"
	id "landregistry/pkg/domain"
	"landregistry/pkg/platform/sentinel"
)

type roleKey struct {
	role     models.Role
	identity id.Address
}

type ledgerState struct {
	properties map[id.TokenID]*models.Property
	mints      map[id.MintRequestID]*models.MintRequest
	roles      map[roleKey]*models.RoleGrant
	balances   map[id.Address]id.Amount
	events     []models.Event
	published  []bool
	// unpublished is the index of the oldest event not yet published.
	unpublished int
	nextToken   uint64
	nextMint    uint64
}

// InMemoryLedger keeps the ledger in process. Transactions run one at a time
// against a staged overlay that is folded into the committed state only when
// the transaction function succeeds, so readers never see partial writes.
type InMemoryLedger struct {
	writer sync.Mutex
	mu     sync.RWMutex
	state  ledgerState
}

func NewInMemoryLedger() *InMemoryLedger {
	return &InMemoryLedger{
		state: ledgerState{
			properties: make(map[id.TokenID]*models.Property),
			mints:      make(map[id.MintRequestID]*models.MintRequest),
			roles:      make(map[roleKey]*models.RoleGrant),
			balances:   make(map[id.Address]id.Amount),
		},
	}
}

// RunInTx stages every write made through s and commits them together.
func (l *InMemoryLedger) RunInTx(ctx context.Context, fn func(s Store) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.writer.Lock()
	defer l.writer.Unlock()

	tx := newMemoryTx(&l.state)
	if err := fn(tx); err != nil {
		return err
	}
	l.mu.Lock()
	tx.commit()
	l.mu.Unlock()
	return nil
}

func (l *InMemoryLedger) Close() error { return nil }

func (l *InMemoryLedger) write(ctx context.Context, fn func(s Store) error) error {
	return l.RunInTx(ctx, fn)
}

func (l *InMemoryLedger) read() (*memoryTx, func()) {
	l.mu.RLock()
	return &memoryTx{base: &l.state}, l.mu.RUnlock
}

func (l *InMemoryLedger) NextTokenID(ctx context.Context) (tokenID id.TokenID, err error) {
	err = l.write(ctx, func(s Store) error {
		tokenID, err = s.NextTokenID(ctx)
		return err
	})
	return tokenID, err
}

func (l *InMemoryLedger) NextMintRequestID(ctx context.Context) (requestID id.MintRequestID, err error) {
	err = l.write(ctx, func(s Store) error {
		requestID, err = s.NextMintRequestID(ctx)
		return err
	})
	return requestID, err
}

func (l *InMemoryLedger) SaveProperty(ctx context.Context, p *models.Property) error {
	return l.write(ctx, func(s Store) error { return s.SaveProperty(ctx, p) })
}

func (l *InMemoryLedger) FindProperty(ctx context.Context, tokenID id.TokenID) (*models.Property, error) {
	view, done := l.read()
	defer done()
	return view.FindProperty(ctx, tokenID)
}

func (l *InMemoryLedger) ListProperties(ctx context.Context, filter PropertyFilter) ([]*models.Property, error) {
	view, done := l.read()
	defer done()
	return view.ListProperties(ctx, filter)
}

func (l *InMemoryLedger) CountProperties(ctx context.Context) (int, error) {
	view, done := l.read()
	defer done()
	return view.CountProperties(ctx)
}

func (l *InMemoryLedger) CountPropertiesByStatus(ctx context.Context) ([]models.StatusCount, error) {
	view, done := l.read()
	defer done()
	return view.CountPropertiesByStatus(ctx)
}

func (l *InMemoryLedger) CountPendingMintRequests(ctx context.Context) (int, error) {
	view, done := l.read()
	defer done()
	return view.CountPendingMintRequests(ctx)
}

func (l *InMemoryLedger) SaveMintRequest(ctx context.Context, r *models.MintRequest) error {
	return l.write(ctx, func(s Store) error { return s.SaveMintRequest(ctx, r) })
}

func (l *InMemoryLedger) FindMintRequest(ctx context.Context, requestID id.MintRequestID) (*models.MintRequest, error) {
	view, done := l.read()
	defer done()
	return view.FindMintRequest(ctx, requestID)
}

func (l *InMemoryLedger) ListMintRequests(ctx context.Context, pendingOnly bool) ([]*models.MintRequest, error) {
	view, done := l.read()
	defer done()
	return view.ListMintRequests(ctx, pendingOnly)
}

func (l *InMemoryLedger) SaveRoleGrant(ctx context.Context, g *models.RoleGrant) error {
	return l.write(ctx, func(s Store) error { return s.SaveRoleGrant(ctx, g) })
}

func (l *InMemoryLedger) DeleteRoleGrant(ctx context.Context, role models.Role, identity id.Address) error {
	return l.write(ctx, func(s Store) error { return s.DeleteRoleGrant(ctx, role, identity) })
}

func (l *InMemoryLedger) FindRoleGrant(ctx context.Context, role models.Role, identity id.Address) (*models.RoleGrant, error) {
	view, done := l.read()
	defer done()
	return view.FindRoleGrant(ctx, role, identity)
}

func (l *InMemoryLedger) ListRoleGrants(ctx context.Context, identity id.Address) ([]*models.RoleGrant, error) {
	view, done := l.read()
	defer done()
	return view.ListRoleGrants(ctx, identity)
}

func (l *InMemoryLedger) Credit(ctx context.Context, identity id.Address, amount id.Amount) error {
	return l.write(ctx, func(s Store) error { return s.Credit(ctx, identity, amount) })
}

func (l *InMemoryLedger) Debit(ctx context.Context, identity id.Address, amount id.Amount) error {
	return l.write(ctx, func(s Store) error { return s.Debit(ctx, identity, amount) })
}

func (l *InMemoryLedger) Balance(ctx context.Context, identity id.Address) (id.Amount, error) {
	view, done := l.read()
	defer done()
	return view.Balance(ctx, identity)
}

func (l *InMemoryLedger) AppendEvent(ctx context.Context, e *models.Event) error {
	return l.write(ctx, func(s Store) error { return s.AppendEvent(ctx, e) })
}

func (l *InMemoryLedger) ListEvents(ctx context.Context, tokenID id.TokenID) ([]models.Event, error) {
	view, done := l.read()
	defer done()
	return view.ListEvents(ctx, tokenID)
}

func (l *InMemoryLedger) ListUnpublishedEvents(_ context.Context, limit int) ([]models.Event, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []models.Event
	for i := l.state.unpublished; i < len(l.state.events); i++ {
		if limit > 0 && len(out) >= limit {
			break
		}
		if !l.state.published[i] {
			out = append(out, l.state.events[i].Clone())
		}
	}
	return out, nil
}

func (l *InMemoryLedger) MarkEventsPublished(_ context.Context, sequences []uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, seq := range sequences {
		idx := int(seq) - 1
		if seq == 0 || idx >= len(l.state.events) {
			return fmt.Errorf("mark event %d published: %w", seq, sentinel.ErrNotFound)
		}
		l.state.published[idx] = true
	}
	for l.state.unpublished < len(l.state.published) && l.state.published[l.state.unpublished] {
		l.state.unpublished++
	}
	return nil
}

// memoryTx reads through staged writes to the committed base. A nil entry in
// roles marks a staged delete. A memoryTx with nil maps is a read-only view.
type memoryTx struct {
	base       *ledgerState
	properties map[id.TokenID]*models.Property
	mints      map[id.MintRequestID]*models.MintRequest
	roles      map[roleKey]*models.RoleGrant
	balances   map[id.Address]id.Amount
	events     []models.Event
	nextToken  uint64
	nextMint   uint64
}

func newMemoryTx(base *ledgerState) *memoryTx {
	return &memoryTx{
		base:       base,
		properties: make(map[id.TokenID]*models.Property),
		mints:      make(map[id.MintRequestID]*models.MintRequest),
		roles:      make(map[roleKey]*models.RoleGrant),
		balances:   make(map[id.Address]id.Amount),
		nextToken:  base.nextToken,
		nextMint:   base.nextMint,
	}
}

func (t *memoryTx) commit() {
	b := t.base
	for k, p := range t.properties {
		b.properties[k] = p
	}
	for k, r := range t.mints {
		b.mints[k] = r
	}
	for k, g := range t.roles {
		if g == nil {
			delete(b.roles, k)
			continue
		}
		b.roles[k] = g
	}
	for k, v := range t.balances {
		b.balances[k] = v
	}
	b.events = append(b.events, t.events...)
	b.published = append(b.published, make([]bool, len(t.events))...)
	b.nextToken = t.nextToken
	b.nextMint = t.nextMint
}

func (t *memoryTx) NextTokenID(_ context.Context) (id.TokenID, error) {
	next := t.nextToken
	t.nextToken++
	return id.TokenID(next), nil
}

func (t *memoryTx) NextMintRequestID(_ context.Context) (id.MintRequestID, error) {
	next := t.nextMint
	t.nextMint++
	return id.MintRequestID(next), nil
}

func (t *memoryTx) SaveProperty(_ context.Context, p *models.Property) error {
	t.properties[p.TokenID] = p.Clone()
	return nil
}

func (t *memoryTx) property(tokenID id.TokenID) (*models.Property, bool) {
	if p, ok := t.properties[tokenID]; ok {
		return p, true
	}
	p, ok := t.base.properties[tokenID]
	return p, ok
}

func (t *memoryTx) FindProperty(_ context.Context, tokenID id.TokenID) (*models.Property, error) {
	p, ok := t.property(tokenID)
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return p.Clone(), nil
}

func (t *memoryTx) ListProperties(_ context.Context, filter PropertyFilter) ([]*models.Property, error) {
	out := make([]*models.Property, 0)
	for tokenID := range t.propertyIDs() {
		p, _ := t.property(tokenID)
		if filter.Matches(p) {
			out = append(out, p.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *models.Property) int {
		return cmp.Compare(a.TokenID, b.TokenID)
	})
	return out, nil
}

func (t *memoryTx) propertyIDs() map[id.TokenID]struct{} {
	ids := make(map[id.TokenID]struct{}, len(t.base.properties)+len(t.properties))
	for k := range t.base.properties {
		ids[k] = struct{}{}
	}
	for k := range t.properties {
		ids[k] = struct{}{}
	}
	return ids
}

func (t *memoryTx) CountProperties(_ context.Context) (int, error) {
	return len(t.propertyIDs()), nil
}

func (t *memoryTx) CountPropertiesByStatus(_ context.Context) ([]models.StatusCount, error) {
	type bucket struct {
		status models.Status
		frozen bool
	}
	counts := make(map[bucket]int)
	for tokenID := range t.propertyIDs() {
		p, _ := t.property(tokenID)
		counts[bucket{p.Status, p.Frozen}]++
	}
	out := make([]models.StatusCount, 0, len(counts))
	for b, n := range counts {
		out = append(out, models.StatusCount{Status: b.status, Frozen: b.frozen, Count: n})
	}
	return out, nil
}

func (t *memoryTx) SaveMintRequest(_ context.Context, r *models.MintRequest) error {
	t.mints[r.ID] = r.Clone()
	return nil
}

func (t *memoryTx) mint(requestID id.MintRequestID) (*models.MintRequest, bool) {
	if r, ok := t.mints[requestID]; ok {
		return r, true
	}
	r, ok := t.base.mints[requestID]
	return r, ok
}

func (t *memoryTx) FindMintRequest(_ context.Context, requestID id.MintRequestID) (*models.MintRequest, error) {
	r, ok := t.mint(requestID)
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return r.Clone(), nil
}

func (t *memoryTx) ListMintRequests(_ context.Context, pendingOnly bool) ([]*models.MintRequest, error) {
	ids := make(map[id.MintRequestID]struct{}, len(t.base.mints)+len(t.mints))
	for k := range t.base.mints {
		ids[k] = struct{}{}
	}
	for k := range t.mints {
		ids[k] = struct{}{}
	}
	out := make([]*models.MintRequest, 0)
	for requestID := range ids {
		r, _ := t.mint(requestID)
		if pendingOnly && !r.Pending {
			continue
		}
		out = append(out, r.Clone())
	}
	slices.SortFunc(out, func(a, b *models.MintRequest) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (t *memoryTx) CountPendingMintRequests(_ context.Context) (int, error) {
	n := 0
	for requestID := range t.base.mints {
		if _, shadowed := t.mints[requestID]; !shadowed && t.base.mints[requestID].Pending {
			n++
		}
	}
	for _, r := range t.mints {
		if r.Pending {
			n++
		}
	}
	return n, nil
}

func (t *memoryTx) SaveRoleGrant(_ context.Context, g *models.RoleGrant) error {
	c := *g
	t.roles[roleKey{g.Role, g.Identity}] = &c
	return nil
}

func (t *memoryTx) roleGrant(key roleKey) (*models.RoleGrant, bool) {
	if g, ok := t.roles[key]; ok {
		return g, g != nil
	}
	g, ok := t.base.roles[key]
	return g, ok
}

func (t *memoryTx) DeleteRoleGrant(_ context.Context, role models.Role, identity id.Address) error {
	key := roleKey{role, identity}
	if _, ok := t.roleGrant(key); !ok {
		return sentinel.ErrNotFound
	}
	t.roles[key] = nil
	return nil
}

func (t *memoryTx) FindRoleGrant(_ context.Context, role models.Role, identity id.Address) (*models.RoleGrant, error) {
	g, ok := t.roleGrant(roleKey{role, identity})
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	c := *g
	return &c, nil
}

func (t *memoryTx) ListRoleGrants(_ context.Context, identity id.Address) ([]*models.RoleGrant, error) {
	keys := make(map[roleKey]struct{})
	for k := range t.base.roles {
		if k.identity == identity {
			keys[k] = struct{}{}
		}
	}
	for k := range t.roles {
		if k.identity == identity {
			keys[k] = struct{}{}
		}
	}
	out := make([]*models.RoleGrant, 0, len(keys))
	for k := range keys {
		if g, ok := t.roleGrant(k); ok {
			c := *g
			out = append(out, &c)
		}
	}
	slices.SortFunc(out, func(a, b *models.RoleGrant) int {
		return cmp.Compare(a.Role, b.Role)
	})
	return out, nil
}

func (t *memoryTx) balance(identity id.Address) id.Amount {
	if v, ok := t.balances[identity]; ok {
		return v
	}
	return t.base.balances[identity]
}

func (t *memoryTx) Credit(_ context.Context, identity id.Address, amount id.Amount) error {
	sum, ok := t.balance(identity).Add(amount)
	if !ok {
		return sentinel.ErrOverflow
	}
	t.balances[identity] = sum
	return nil
}

func (t *memoryTx) Debit(_ context.Context, identity id.Address, amount id.Amount) error {
	current := t.balance(identity)
	if current < amount {
		return sentinel.ErrInsufficientFunds
	}
	t.balances[identity] = current - amount
	return nil
}

func (t *memoryTx) Balance(_ context.Context, identity id.Address) (id.Amount, error) {
	return t.balance(identity), nil
}

func (t *memoryTx) AppendEvent(_ context.Context, e *models.Event) error {
	e.Sequence = uint64(len(t.base.events)+len(t.events)) + 1
	t.events = append(t.events, e.Clone())
	return nil
}

func (t *memoryTx) ListEvents(_ context.Context, tokenID id.TokenID) ([]models.Event, error) {
	out := make([]models.Event, 0)
	for _, batch := range [][]models.Event{t.base.events, t.events} {
		for _, e := range batch {
			if e.TokenID != nil && *e.TokenID == tokenID {
				out = append(out, e.Clone())
			}
		}
	}
	return out, nil
}
