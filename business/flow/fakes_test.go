package flow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"gorm.io/datatypes"

	"studyCafeCRM/business/targeting"
	"studyCafeCRM/domain"
)

// memStore backs both repository interfaces so conditional writes see the
// same rows, like the postgres implementation does inside a transaction.
type memStore struct {
	mu         sync.Mutex
	flows      map[uint]domain.AutomationFlow
	dispatches map[string]domain.Dispatch
	logs       []domain.ActionLogEntry
	nextID     uint

	// conflictsLeft makes the next n conditional writes lose the race
	conflictsLeft int
	settleCalls   int
}

func newMemStore() *memStore {
	return &memStore{
		flows:      map[uint]domain.AutomationFlow{},
		dispatches: map[string]domain.Dispatch{},
	}
}

func (m *memStore) Create(_ context.Context, flow *domain.AutomationFlow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	flow.ID = m.nextID
	if flow.CreatedAt.IsZero() {
		flow.CreatedAt = time.Now()
	}
	m.flows[flow.ID] = *flow
	return nil
}

func (m *memStore) FindByID(_ context.Context, id uint) (domain.AutomationFlow, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.flows[id]
	return f, ok, nil
}

func (m *memStore) FindActive(_ context.Context) ([]domain.AutomationFlow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.AutomationFlow
	for _, f := range m.flows {
		if f.IsActive {
			out = append(out, f)
		}
	}
	return out, nil
}

func (m *memStore) UpdateIfVersion(_ context.Context, flow *domain.AutomationFlow, expected int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateLocked(flow, expected), nil
}

func (m *memStore) updateLocked(flow *domain.AutomationFlow, expected int) bool {
	if m.conflictsLeft > 0 {
		m.conflictsLeft--
		return false
	}
	cur, ok := m.flows[flow.ID]
	if !ok || cur.Version != expected {
		return false
	}
	flow.Version = expected + 1
	m.flows[flow.ID] = *flow
	return true
}

func (m *memStore) FindDispatch(_ context.Context, id string) (domain.Dispatch, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.dispatches[id]
	return d, ok, nil
}

func (m *memStore) Launch(_ context.Context, l Launch) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.updateLocked(l.Flow, l.ExpectedVersion) {
		return false, nil
	}
	m.dispatches[l.Dispatch.ID] = l.Dispatch
	m.logs = append(m.logs, l.Entries...)
	return true, nil
}

func (m *memStore) Settle(_ context.Context, s Settlement) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settleCalls++
	if s.Flow != nil && !m.updateLocked(s.Flow, s.ExpectedVersion) {
		return false, nil
	}
	if s.Dispatch == nil {
		return true, nil
	}
	m.dispatches[s.Dispatch.ID] = *s.Dispatch
	if !s.MarkOutcomes {
		return true, nil
	}

	failed := map[string]bool{}
	for _, p := range s.FailedPhones {
		failed[p] = true
	}
	for i := range m.logs {
		e := &m.logs[i]
		if e.DispatchID != s.Dispatch.ID {
			continue
		}
		switch {
		case s.AllFailed || failed[e.Phone]:
			e.Outcome = domain.ActionOutcomeFailed
		case e.Outcome == domain.ActionOutcomeDispatched:
			e.Outcome = domain.ActionOutcomeSucceeded
		}
	}
	return true, nil
}

func (m *memStore) ActedPhonesSince(_ context.Context, flowID uint, since time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, e := range m.logs {
		if e.FlowID == flowID && !e.ActedAt.Before(since) && e.Outcome != domain.ActionOutcomeFailed {
			out = append(out, e.Phone)
		}
	}
	return out, nil
}

func (m *memStore) flow(id uint) domain.AutomationFlow {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flows[id]
}

func (m *memStore) outcomes(dispatchID string) map[string]domain.ActionOutcome {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string]domain.ActionOutcome{}
	for _, e := range m.logs {
		if e.DispatchID == dispatchID {
			out[e.Phone] = e.Outcome
		}
	}
	return out
}

type fakeTargeter struct {
	targets    []targeting.Target
	err        error
	failBranch uint
}

func (f *fakeTargeter) Resolve(_ context.Context, scope domain.Scope, flow domain.AutomationFlow, _ time.Time) ([]targeting.Target, error) {
	if !scope.CanAccessBranch(flow.BranchID) {
		return nil, domain.ErrForbidden
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.failBranch != 0 && f.failBranch == flow.BranchID {
		return nil, errors.New("classifier unavailable")
	}
	return append([]targeting.Target(nil), f.targets...), nil
}

func (f *fakeTargeter) Targets(ctx context.Context, scope domain.Scope, flow domain.AutomationFlow, ref time.Time) ([]string, error) {
	t, err := f.Resolve(ctx, scope, flow, ref)
	if err != nil {
		return nil, err
	}
	return targeting.Phones(t), nil
}

type fakeSink struct {
	mu   sync.Mutex
	jobs []domain.Job
	err  error
}

func (f *fakeSink) Publish(_ context.Context, job domain.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.jobs = append(f.jobs, job)
	return nil
}

func (f *fakeSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.jobs)
}

var errSinkDown = errors.New("worker unreachable")

var t0 = time.Date(2024, 6, 30, 9, 0, 0, 0, time.UTC)

func intPtr(v int) *int { return &v }

func activeMessageFlow(branchID uint, dedupDays *int) domain.AutomationFlow {
	return domain.AutomationFlow{
		BranchID:      branchID,
		Name:          "win-back",
		FlowType:      domain.FlowTypeMessage,
		IsActive:      true,
		Status:        domain.FlowStatusActive,
		TriggerConfig: datatypes.NewJSONType(domain.TriggerConfig{Schedule: "0 10 * * *"}),
		FilterConfig:  datatypes.NewJSONType(domain.FilterConfig{}),
		MessageConfig: datatypes.NewJSONType(&domain.MessageConfig{Template: "we miss you", DeduplicateDays: dedupDays}),
		PointConfig:   datatypes.NewJSONType[*domain.PointConfig](nil),
	}
}

func withPoint(f domain.AutomationFlow, pc *domain.PointConfig) domain.AutomationFlow {
	f.PointConfig = datatypes.NewJSONType(pc)
	f.MessageConfig = datatypes.NewJSONType[*domain.MessageConfig](nil)
	return f
}

func seed(store *memStore, f domain.AutomationFlow) domain.AutomationFlow {
	_ = store.Create(context.Background(), &f)
	return store.flow(f.ID)
}

func targetsOf(phones ...string) []targeting.Target {
	out := make([]targeting.Target, 0, len(phones))
	for i, p := range phones {
		out = append(out, targeting.Target{CustomerID: uint(i + 1), Phone: p})
	}
	return out
}

type harness struct {
	store      *memStore
	targeter   *fakeTargeter
	sink       *fakeSink
	dispatcher *Dispatcher
	ingestor   *Ingestor
	ids        atomic.Int64
}

func newHarness(phones ...string) *harness {
	h := &harness{
		store:    newMemStore(),
		targeter: &fakeTargeter{targets: targetsOf(phones...)},
		sink:     &fakeSink{},
	}
	h.dispatcher = NewDispatcher(h.store, h.store, h.targeter, targeting.NewGuard(h.store), h.sink, DispatcherOptions{
		Timeout:  time.Hour,
		Location: time.UTC,
	})
	h.dispatcher.newID = func() string {
		return fmt.Sprintf("dsp-%d", h.ids.Add(1))
	}
	h.ingestor = NewIngestor(h.store, h.store)
	h.ingestor.now = func() time.Time { return t0.Add(30 * time.Minute) }
	return h
}
