// internal/service/billing/fakes_test.go
package billing

import (
	"context"
	"sync"
	"time"

	"wakili-service/internal/domain/billing"
	"wakili-service/internal/gateway"
	xerrors "wakili-service/internal/pkg/errors"

	"go.uber.org/zap"
)

// In-memory stores mirroring the Postgres repositories closely enough to
// exercise the lifecycle rules, including the one-live-subscription-per-owner
// constraint.

type fakeSubscriptionStore struct {
	mu     sync.Mutex
	nextID int64
	subs   map[int64]*billing.Subscription
}

func newFakeSubscriptionStore() *fakeSubscriptionStore {
	return &fakeSubscriptionStore{subs: make(map[int64]*billing.Subscription)}
}

func (s *fakeSubscriptionStore) Create(ctx context.Context, sub *billing.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.subs {
		if existing.OwnerID == sub.OwnerID && !existing.Status.IsTerminal() {
			return xerrors.ErrSubscriptionExists
		}
	}
	s.nextID++
	sub.ID = s.nextID
	sub.CreatedAt = time.Now()
	sub.UpdatedAt = sub.CreatedAt
	copied := *sub
	s.subs[sub.ID] = &copied
	return nil
}

func (s *fakeSubscriptionStore) FindByID(ctx context.Context, id int64) (*billing.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[id]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	copied := *sub
	return &copied, nil
}

func (s *fakeSubscriptionStore) FindByReference(ctx context.Context, reference string) (*billing.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.subs {
		if sub.Reference == reference {
			copied := *sub
			return &copied, nil
		}
	}
	return nil, xerrors.ErrNotFound
}

func (s *fakeSubscriptionStore) FindByExternalID(ctx context.Context, externalID string) (*billing.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.subs {
		if sub.ExternalSubscriptionID.Valid && sub.ExternalSubscriptionID.String == externalID {
			copied := *sub
			return &copied, nil
		}
	}
	return nil, xerrors.ErrNotFound
}

func (s *fakeSubscriptionStore) FindNonTerminalByOwner(ctx context.Context, ownerID int64) (*billing.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.subs {
		if sub.OwnerID == ownerID && !sub.Status.IsTerminal() {
			copied := *sub
			return &copied, nil
		}
	}
	return nil, xerrors.ErrNotFound
}

func (s *fakeSubscriptionStore) FindDueForRenewal(ctx context.Context, now time.Time) ([]*billing.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []*billing.Subscription
	for _, sub := range s.subs {
		if sub.Status != billing.StatusActive {
			continue
		}
		if !sub.CurrentPeriodEnd.After(now) || (sub.NextRetryAt.Valid && !sub.NextRetryAt.Time.After(now)) {
			copied := *sub
			due = append(due, &copied)
		}
	}
	return due, nil
}

func (s *fakeSubscriptionStore) Update(ctx context.Context, sub *billing.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subs[sub.ID]; !ok {
		return xerrors.ErrNotFound
	}
	sub.UpdatedAt = time.Now()
	copied := *sub
	s.subs[sub.ID] = &copied
	return nil
}

type fakePaymentStore struct {
	mu       sync.Mutex
	nextID   int64
	payments []*billing.Payment
}

func (s *fakePaymentStore) Create(ctx context.Context, p *billing.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	p.ID = s.nextID
	p.CreatedAt = time.Now()
	copied := *p
	s.payments = append(s.payments, &copied)
	return nil
}

func (s *fakePaymentStore) FindSucceededByTracker(ctx context.Context, trackerRef string) (*billing.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.payments {
		if p.TrackerRef == trackerRef && p.Status == billing.PaymentSucceeded {
			copied := *p
			return &copied, nil
		}
	}
	return nil, xerrors.ErrNotFound
}

func (s *fakePaymentStore) ListBySubscription(ctx context.Context, subscriptionID int64) ([]*billing.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*billing.Payment
	for _, p := range s.payments {
		if p.SubscriptionID == subscriptionID {
			copied := *p
			out = append(out, &copied)
		}
	}
	return out, nil
}

type fakeEventStore struct {
	mu     sync.Mutex
	tokens map[string]*billing.Event
}

func newFakeEventStore() *fakeEventStore {
	return &fakeEventStore{tokens: make(map[string]*billing.Event)}
}

func (s *fakeEventStore) Insert(ctx context.Context, e *billing.Event) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tokens[e.EventToken]; ok {
		return false, nil
	}
	copied := *e
	s.tokens[e.EventToken] = &copied
	return true, nil
}

func (s *fakeEventStore) ExistsByToken(ctx context.Context, token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tokens[token]
	return ok, nil
}

type fakePlanStore struct {
	mu    sync.Mutex
	plans map[string]*billing.Plan
}

func newFakePlanStore(plans ...*billing.Plan) *fakePlanStore {
	s := &fakePlanStore{plans: make(map[string]*billing.Plan)}
	for i, p := range plans {
		p.ID = int64(i + 1)
		s.plans[p.PlanCode] = p
	}
	return s
}

func (s *fakePlanStore) Create(ctx context.Context, p *billing.Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.plans[p.PlanCode]; ok {
		return xerrors.ErrDuplicateEntry
	}
	p.ID = int64(len(s.plans) + 1)
	s.plans[p.PlanCode] = p
	return nil
}

func (s *fakePlanStore) FindByCode(ctx context.Context, planCode string) (*billing.Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.plans[planCode]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	return p, nil
}

func (s *fakePlanStore) List(ctx context.Context, publicOnly bool) ([]*billing.Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*billing.Plan
	for _, p := range s.plans {
		if publicOnly && !p.IsPublic {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

type fakeOwnerDirectory struct{}

func (fakeOwnerDirectory) Resolve(ctx context.Context, ownerID int64) (*billing.OwnerContact, error) {
	return &billing.OwnerContact{
		OwnerID:  ownerID,
		FullName: "Wanjiku Kamau",
		Email:    "wanjiku@example.co.ke",
		Phone:    "+254700000001",
	}, nil
}

// fakeGateway scripts gateway behavior per test. Charge outcomes are consumed
// in order so a test can script decline, decline, success.
type fakeGateway struct {
	mu sync.Mutex

	sessions []gateway.SessionRequest

	verifyResults map[string]gateway.VerifyResult
	verifyErr     error

	chargeOutcomes []gateway.ChargeResult
	chargeErr      error
	chargeCalls    []string

	cancelledExternal []string
	sessionErr        error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{verifyResults: make(map[string]gateway.VerifyResult)}
}

func (g *fakeGateway) CreateSession(ctx context.Context, req gateway.SessionRequest) (string, error) {
	if g.sessionErr != nil {
		return "", g.sessionErr
	}
	g.mu.Lock()
	g.sessions = append(g.sessions, req)
	g.mu.Unlock()
	return "trk_" + req.Reference, nil
}

func (g *fakeGateway) BuildCheckoutURL(ctx context.Context, trackerRef, redirectURL, cancelURL string) (string, error) {
	return "https://checkout.test/pay?tracker=" + trackerRef, nil
}

func (g *fakeGateway) VerifyPayment(ctx context.Context, trackerRef string) (gateway.VerifyResult, error) {
	if g.verifyErr != nil {
		return gateway.VerifyResult{}, g.verifyErr
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if res, ok := g.verifyResults[trackerRef]; ok {
		return res, nil
	}
	return gateway.VerifyResult{IsPaid: false, State: "pending"}, nil
}

func (g *fakeGateway) ChargeOffSession(ctx context.Context, customerRef string, amount float64, currency, orderRef string) (gateway.ChargeResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.chargeCalls = append(g.chargeCalls, orderRef)
	if g.chargeErr != nil {
		return gateway.ChargeResult{}, g.chargeErr
	}
	if len(g.chargeOutcomes) == 0 {
		return gateway.ChargeResult{Success: true, TrackerRef: "trk_" + orderRef, ChargeRef: "chg_" + orderRef}, nil
	}
	out := g.chargeOutcomes[0]
	g.chargeOutcomes = g.chargeOutcomes[1:]
	if out.TrackerRef == "" {
		out.TrackerRef = "trk_" + orderRef
	}
	return out, nil
}

func (g *fakeGateway) CreateCustomer(ctx context.Context, req gateway.CustomerRequest) (string, error) {
	return "cus_test", nil
}

func (g *fakeGateway) CreatePlan(ctx context.Context, req gateway.PlanRequest) (string, error) {
	return "plan_test", nil
}

func (g *fakeGateway) CreateSubscriptionCheckout(ctx context.Context, externalPlanID, customerEmail, reference, redirectURL string) (string, error) {
	return "https://checkout.test/subscribe?ref=" + reference, nil
}

func (g *fakeGateway) CancelSubscription(ctx context.Context, externalSubscriptionID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancelledExternal = append(g.cancelledExternal, externalSubscriptionID)
	return nil
}

func verifyPaid(chargeRef string) gateway.VerifyResult {
	return gateway.VerifyResult{IsPaid: true, Reference: chargeRef, State: "completed"}
}

// testEnv bundles an engine with its fakes and a controllable clock.
type testEnv struct {
	engine   *Engine
	subs     *fakeSubscriptionStore
	payments *fakePaymentStore
	events   *fakeEventStore
	plans    *fakePlanStore
	gw       *fakeGateway
	clock    time.Time
}

func newTestEnv() *testEnv {
	env := &testEnv{
		subs:     newFakeSubscriptionStore(),
		payments: &fakePaymentStore{},
		events:   newFakeEventStore(),
		plans: newFakePlanStore(&billing.Plan{
			PlanCode:     "advocate_monthly",
			Name:         "Advocate Monthly",
			Price:        2500,
			Currency:     "KES",
			BillingCycle: billing.CycleMonthly,
			Status:       "active",
			IsPublic:     true,
		}),
		gw:    newFakeGateway(),
		clock: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC),
	}
	env.engine = NewEngine(
		env.subs, env.payments, env.events, env.plans,
		fakeOwnerDirectory{}, env.gw,
		DefaultConfig(), zap.NewNop(),
	)
	env.engine.now = func() time.Time { return env.clock }
	return env
}

func (env *testEnv) advance(d time.Duration) {
	env.clock = env.clock.Add(d)
}

func (env *testEnv) setClock(t time.Time) {
	env.clock = t
}
