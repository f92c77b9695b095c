package usecases

import (
	"context"
	"sync"
	"time"

	"github.com/inferpay/inferpay/internal/application/session/hosttransport"
	"github.com/inferpay/inferpay/internal/application/session/ledger"
	"github.com/inferpay/inferpay/internal/domain/grant"
	"github.com/inferpay/inferpay/internal/domain/session"
	vo "github.com/inferpay/inferpay/internal/domain/session/valueobjects"
	"github.com/inferpay/inferpay/internal/infrastructure/ratelimit"
	apperrors "github.com/inferpay/inferpay/internal/shared/errors"
)

// ====== Session Repository Fake ======

type fakeSessionRepo struct {
	mu       sync.Mutex
	sessions map[uint]*session.Session
	nextID   uint
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{sessions: make(map[uint]*session.Session)}
}

func (r *fakeSessionRepo) Create(_ context.Context, s *session.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	s.SetID(r.nextID)
	r.sessions[s.ID()] = s
	return nil
}

func (r *fakeSessionRepo) Update(_ context.Context, s *session.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID()] = s
	return nil
}

func (r *fakeSessionRepo) GetByID(_ context.Context, id uint) (*session.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("session not found")
	}
	return s, nil
}

func (r *fakeSessionRepo) GetByLedgerSessionID(_ context.Context, ledgerSessionID uint64) (*session.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		if s.LedgerSessionID() == ledgerSessionID {
			return s, nil
		}
	}
	return nil, apperrors.NewNotFoundError("session not found")
}

func (r *fakeSessionRepo) GetActiveByClientID(_ context.Context, clientID string) (*session.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		if s.ClientID() == clientID && s.State() == vo.StateActive {
			return s, nil
		}
	}
	return nil, nil
}

func (r *fakeSessionRepo) ListByClientID(_ context.Context, clientID string) ([]*session.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*session.Session
	for _, s := range r.sessions {
		if s.ClientID() == clientID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *fakeSessionRepo) ListFailedWithRetainedSnapshots(_ context.Context) ([]*session.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*session.Session
	for _, s := range r.sessions {
		if s.State() == vo.StateFailed {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *fakeSessionRepo) ListExpiredActive(_ context.Context) ([]*session.Session, error) {
	return nil, nil
}

// ====== Ledger Fake ======

type fakeLedger struct {
	mu sync.Mutex

	nextSessionID uint64
	openErrs      []error
	openCalls     int

	checkpoints    []ledger.Checkpoint
	checkpointErrs []error

	settleCalls int
	settleErrs  []error
	settledIDs  []uint64

	status    *ledger.SessionStatus
	statusErr error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{nextSessionID: 100}
}

func (l *fakeLedger) popErr(errs *[]error) error {
	if len(*errs) == 0 {
		return nil
	}
	err := (*errs)[0]
	*errs = (*errs)[1:]
	return err
}

func (l *fakeLedger) OpenSession(_ context.Context, _ ledger.OpenParams) (uint64, *ledger.Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.openCalls++
	if err := l.popErr(&l.openErrs); err != nil {
		return 0, nil, err
	}
	l.nextSessionID++
	return l.nextSessionID, &ledger.Receipt{TxHash: "0xopen"}, nil
}

func (l *fakeLedger) SubmitCheckpoint(_ context.Context, cp ledger.Checkpoint) (*ledger.Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.popErr(&l.checkpointErrs); err != nil {
		return nil, err
	}
	l.checkpoints = append(l.checkpoints, cp)
	return &ledger.Receipt{TxHash: "0xcp"}, nil
}

func (l *fakeLedger) Settle(_ context.Context, sessionID uint64, _ int64) (*ledger.Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.settleCalls++
	if err := l.popErr(&l.settleErrs); err != nil {
		return nil, err
	}
	l.settledIDs = append(l.settledIDs, sessionID)
	return &ledger.Receipt{TxHash: "0xsettle"}, nil
}

func (l *fakeLedger) SessionStatus(_ context.Context, sessionID uint64) (*ledger.SessionStatus, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.statusErr != nil {
		return nil, l.statusErr
	}
	if l.status != nil {
		return l.status, nil
	}
	return &ledger.SessionStatus{SessionID: sessionID, Active: true}, nil
}

// ====== Signer Fake ======

type fakeSigner struct {
	addr      string
	authErr   error
	switchErr error
	grants    []grant.AuthorizationRequest
}

func newFakeSigner() *fakeSigner {
	return &fakeSigner{addr: "0xclient"}
}

func (s *fakeSigner) Address(_ context.Context) (string, error) {
	return s.addr, nil
}

func (s *fakeSigner) AuthorizeGrant(_ context.Context, req grant.AuthorizationRequest) error {
	if s.authErr != nil {
		return s.authErr
	}
	s.grants = append(s.grants, req)
	return nil
}

func (s *fakeSigner) SignAndSend(_ context.Context, _ grant.CallBundle) (string, error) {
	return "0xtx", nil
}

func (s *fakeSigner) SwitchNetwork(_ context.Context, _ uint64) error {
	return s.switchErr
}

// ====== Transport Fake ======

type fakeTransport struct {
	reply    *hosttransport.PromptResponse
	replyErr error
	chunks   []hosttransport.Chunk
	hosts    []hosttransport.HostInfo
	hostsErr error
	requests []hosttransport.PromptRequest
}

func (t *fakeTransport) SendPrompt(_ context.Context, _ string, req hosttransport.PromptRequest) (*hosttransport.PromptResponse, error) {
	t.requests = append(t.requests, req)
	if t.replyErr != nil {
		return nil, t.replyErr
	}
	return t.reply, nil
}

func (t *fakeTransport) StreamPrompt(_ context.Context, _ string, req hosttransport.PromptRequest, onChunk func(hosttransport.Chunk)) (*hosttransport.PromptResponse, error) {
	t.requests = append(t.requests, req)
	if t.replyErr != nil {
		return nil, t.replyErr
	}
	for _, c := range t.chunks {
		onChunk(c)
	}
	return t.reply, nil
}

func (t *fakeTransport) DiscoverHosts(_ context.Context, _ string) ([]hosttransport.HostInfo, error) {
	if t.hostsErr != nil {
		return nil, t.hostsErr
	}
	return t.hosts, nil
}

// ====== Limiter Fake ======

type stubLimiter struct {
	deny    map[ratelimit.Kind]bool
	resetAt time.Time
}

func newStubLimiter() *stubLimiter {
	return &stubLimiter{deny: make(map[ratelimit.Kind]bool)}
}

func (l *stubLimiter) Check(_ context.Context, _ string, kind ratelimit.Kind) (ratelimit.Result, error) {
	if l.deny[kind] {
		return ratelimit.Result{Allowed: false, ResetAt: l.resetAt}, nil
	}
	return ratelimit.Result{Allowed: true, Remaining: 1}, nil
}
