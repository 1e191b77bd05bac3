package grant

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/caregrid/caregrid/internal/platform/audit"
	"github.com/caregrid/caregrid/internal/platform/errs"
)

type mockRepo struct {
	grants map[uuid.UUID]*AccessGrant
}

func newMockRepo() *mockRepo {
	return &mockRepo{grants: make(map[uuid.UUID]*AccessGrant)}
}

func (m *mockRepo) Create(_ context.Context, g *AccessGrant) error {
	cp := *g
	m.grants[g.ID] = &cp
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*AccessGrant, error) {
	g, ok := m.grants[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	cp := *g
	return &cp, nil
}

func (m *mockRepo) GetByPatientAndOrg(_ context.Context, patientID, orgID uuid.UUID) (*AccessGrant, error) {
	var revoked *AccessGrant
	for _, g := range m.grants {
		if g.PatientID != patientID || g.OrganizationID != orgID {
			continue
		}
		if g.Status != StatusRevoked {
			cp := *g
			return &cp, nil
		}
		if revoked == nil || g.CreatedAt.After(revoked.CreatedAt) {
			revoked = g
		}
	}
	if revoked != nil {
		cp := *revoked
		return &cp, nil
	}
	return nil, errs.ErrNotFound
}

func (m *mockRepo) ListByPatient(_ context.Context, patientID uuid.UUID) ([]*AccessGrant, error) {
	var out []*AccessGrant
	for _, g := range m.grants {
		if g.PatientID == patientID {
			cp := *g
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockRepo) UpdateStatus(_ context.Context, id uuid.UUID, status Status, revokedAt *time.Time) error {
	g, ok := m.grants[id]
	if !ok {
		return errs.ErrNotFound
	}
	g.Status = status
	g.RevokedAt = revokedAt
	return nil
}

type memAuditStore struct {
	entries []*audit.Entry
	fail    bool
}

func (s *memAuditStore) Insert(_ context.Context, e *audit.Entry) error {
	if s.fail {
		return errors.New("store down")
	}
	cp := *e
	s.entries = append(s.entries, &cp)
	return nil
}

func (s *memAuditStore) Select(_ context.Context, _ audit.Filter) ([]*audit.Entry, error) {
	return s.entries, nil
}

func newTestService(repo Repository, store *memAuditStore, ttl time.Duration) *Service {
	auditor := audit.NewService(store, zerolog.Nop())
	return NewService(repo, auditor, ttl, zerolog.Nop())
}

func TestCreate_StartsPending(t *testing.T) {
	repo := newMockRepo()
	store := &memAuditStore{}
	svc := newTestService(repo, store, time.Minute)

	patient, org := uuid.New(), uuid.New()
	g, err := svc.Create(context.Background(), patient, org)
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if g.Status != StatusPending {
		t.Errorf("status = %s, want pending", g.Status)
	}

	// A pending grant confers no access.
	if err := svc.Authorize(context.Background(), patient, org); !errors.Is(err, errs.ErrForbidden) {
		t.Errorf("pending grant must not authorize, got %v", err)
	}

	if len(store.entries) != 1 || store.entries[0].Action != "grant_created" {
		t.Errorf("expected one grant_created audit entry, got %+v", store.entries)
	}
}

func TestGet(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo, &memAuditStore{}, time.Minute)

	patient, org := uuid.New(), uuid.New()
	created, err := svc.Create(context.Background(), patient, org)
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	got, err := svc.Get(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got.ID != created.ID || got.PatientID != patient {
		t.Error("Get() returned the wrong grant")
	}

	if _, err := svc.Get(context.Background(), uuid.New()); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("unknown id: expected ErrNotFound, got %v", err)
	}
}

func TestCreate_RejectsDuplicateLiveGrant(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo, &memAuditStore{}, time.Minute)

	patient, org := uuid.New(), uuid.New()
	if _, err := svc.Create(context.Background(), patient, org); err != nil {
		t.Fatalf("first Create() error: %v", err)
	}
	if _, err := svc.Create(context.Background(), patient, org); !errors.Is(err, errs.ErrValidation) {
		t.Errorf("duplicate live grant: expected ErrValidation, got %v", err)
	}
}

func TestCreate_AllowedAfterRevoke(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo, &memAuditStore{}, time.Minute)

	patient, org := uuid.New(), uuid.New()
	g, err := svc.Create(context.Background(), patient, org)
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if _, err := svc.Revoke(context.Background(), g.ID, patient); err != nil {
		t.Fatalf("Revoke() error: %v", err)
	}
	if _, err := svc.Create(context.Background(), patient, org); err != nil {
		t.Errorf("fresh grant after revoke should be allowed, got %v", err)
	}
}

func TestActivate_Lifecycle(t *testing.T) {
	repo := newMockRepo()
	store := &memAuditStore{}
	svc := newTestService(repo, store, time.Minute)

	patient, org := uuid.New(), uuid.New()
	g, _ := svc.Create(context.Background(), patient, org)

	activated, err := svc.Activate(context.Background(), g.ID, patient)
	if err != nil {
		t.Fatalf("Activate() error: %v", err)
	}
	if activated.Status != StatusActive {
		t.Errorf("status = %s, want active", activated.Status)
	}
	if err := svc.Authorize(context.Background(), patient, org); err != nil {
		t.Errorf("active grant must authorize, got %v", err)
	}

	// Activating an already active grant is a no-op.
	if _, err := svc.Activate(context.Background(), g.ID, patient); err != nil {
		t.Errorf("re-activate active grant: %v", err)
	}
}

func TestActivate_RevokedIsTerminal(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo, &memAuditStore{}, time.Minute)

	patient, org := uuid.New(), uuid.New()
	g, _ := svc.Create(context.Background(), patient, org)
	if _, err := svc.Revoke(context.Background(), g.ID, patient); err != nil {
		t.Fatalf("Revoke() error: %v", err)
	}

	if _, err := svc.Activate(context.Background(), g.ID, patient); !errors.Is(err, errs.ErrValidation) {
		t.Errorf("reactivating a revoked grant: expected ErrValidation, got %v", err)
	}
}

func TestRevoke_InvalidatesCacheImmediately(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo, &memAuditStore{}, time.Hour)

	patient, org := uuid.New(), uuid.New()
	g, _ := svc.Create(context.Background(), patient, org)
	if _, err := svc.Activate(context.Background(), g.ID, patient); err != nil {
		t.Fatalf("Activate() error: %v", err)
	}

	// Warm the cache with the active set.
	if err := svc.Authorize(context.Background(), patient, org); err != nil {
		t.Fatalf("warm authorize: %v", err)
	}

	if _, err := svc.Revoke(context.Background(), g.ID, patient); err != nil {
		t.Fatalf("Revoke() error: %v", err)
	}

	// Despite the long TTL, the revocation must be visible in-process.
	if err := svc.Authorize(context.Background(), patient, org); !errors.Is(err, errs.ErrForbidden) {
		t.Errorf("revoked grant still authorizing from cache, got %v", err)
	}
}

func TestRevoke_Idempotent(t *testing.T) {
	repo := newMockRepo()
	store := &memAuditStore{}
	svc := newTestService(repo, store, time.Minute)

	patient, org := uuid.New(), uuid.New()
	g, _ := svc.Create(context.Background(), patient, org)

	if _, err := svc.Revoke(context.Background(), g.ID, patient); err != nil {
		t.Fatalf("first Revoke() error: %v", err)
	}
	audits := len(store.entries)
	if _, err := svc.Revoke(context.Background(), g.ID, patient); err != nil {
		t.Errorf("second Revoke() should be a no-op, got %v", err)
	}
	if len(store.entries) != audits {
		t.Error("no-op revoke must not append an audit entry")
	}
}

func TestCheckGrant_NoHistory(t *testing.T) {
	svc := newTestService(newMockRepo(), &memAuditStore{}, time.Minute)
	status, err := svc.CheckGrant(context.Background(), uuid.New(), uuid.New())
	if err != nil {
		t.Fatalf("CheckGrant() error: %v", err)
	}
	if status != StatusNone {
		t.Errorf("status = %s, want none", status)
	}
}

func TestCheckGrant_RevokedVisible(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo, &memAuditStore{}, time.Minute)

	patient, org := uuid.New(), uuid.New()
	g, _ := svc.Create(context.Background(), patient, org)
	if _, err := svc.Revoke(context.Background(), g.ID, patient); err != nil {
		t.Fatalf("Revoke() error: %v", err)
	}

	status, err := svc.CheckGrant(context.Background(), patient, org)
	if err != nil {
		t.Fatalf("CheckGrant() error: %v", err)
	}
	if status != StatusRevoked {
		t.Errorf("status = %s, want revoked", status)
	}
}

func TestListActiveGrants_MultipleOrganizations(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo, &memAuditStore{}, time.Minute)

	patient := uuid.New()
	orgA, orgB, orgC := uuid.New(), uuid.New(), uuid.New()
	for _, org := range []uuid.UUID{orgA, orgB} {
		g, err := svc.Create(context.Background(), patient, org)
		if err != nil {
			t.Fatalf("Create() error: %v", err)
		}
		if _, err := svc.Activate(context.Background(), g.ID, patient); err != nil {
			t.Fatalf("Activate() error: %v", err)
		}
	}
	// orgC stays pending.
	if _, err := svc.Create(context.Background(), patient, orgC); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	orgs, err := svc.ListActiveGrants(context.Background(), patient)
	if err != nil {
		t.Fatalf("ListActiveGrants() error: %v", err)
	}
	if len(orgs) != 2 {
		t.Fatalf("active orgs = %d, want 2", len(orgs))
	}
	seen := map[uuid.UUID]bool{}
	for _, o := range orgs {
		seen[o] = true
	}
	if !seen[orgA] || !seen[orgB] || seen[orgC] {
		t.Errorf("unexpected active set: %v", orgs)
	}
}

func TestAuthorize_NeverLeaksNotFound(t *testing.T) {
	svc := newTestService(newMockRepo(), &memAuditStore{}, time.Minute)
	err := svc.Authorize(context.Background(), uuid.New(), uuid.New())
	if !errors.Is(err, errs.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if errors.Is(err, errs.ErrNotFound) {
		t.Error("authorization failure must not reveal that no grant exists")
	}
}

func TestTransition_FailedAuditFailsTransition(t *testing.T) {
	repo := newMockRepo()
	store := &memAuditStore{}
	svc := newTestService(repo, store, time.Minute)

	patient, org := uuid.New(), uuid.New()
	g, _ := svc.Create(context.Background(), patient, org)

	store.fail = true
	if _, err := svc.Activate(context.Background(), g.ID, patient); !errors.Is(err, errs.ErrAuditWriteFailure) {
		t.Errorf("expected ErrAuditWriteFailure, got %v", err)
	}
}
