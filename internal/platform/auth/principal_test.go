package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/caregrid/caregrid/internal/platform/errs"
)

var testSigningKey = []byte("test-signing-key")

type mockIdentityStore struct {
	identities map[uuid.UUID]*Identity
}

func newMockIdentityStore() *mockIdentityStore {
	return &mockIdentityStore{identities: make(map[uuid.UUID]*Identity)}
}

func (m *mockIdentityStore) Lookup(_ context.Context, subjectID uuid.UUID) (*Identity, error) {
	id, ok := m.identities[subjectID]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return id, nil
}

func (m *mockIdentityStore) add(id *Identity) {
	m.identities[id.SubjectID] = id
}

func signToken(t *testing.T, subject uuid.UUID) string {
	t.Helper()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject.String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSigningKey)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func newTestResolver(store IdentityStore) *Resolver {
	return NewResolver(NewTokenVerifier(TokenConfig{SigningKey: testSigningKey}), store)
}

func TestResolve_OrgMember(t *testing.T) {
	store := newMockIdentityStore()
	subject := uuid.New()
	org := uuid.New()
	store.add(&Identity{
		SubjectID:   subject,
		Kind:        KindOrgMember,
		Memberships: []Membership{{OrganizationID: org, Role: "physician"}},
	})

	p, err := newTestResolver(store).Resolve(context.Background(), signToken(t, subject))
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}

	if p.ID != subject {
		t.Errorf("principal id = %s, want %s", p.ID, subject)
	}
	if p.Kind != KindOrgMember {
		t.Errorf("kind = %s, want org_member", p.Kind)
	}
	if p.HomeOrganizationID == nil || *p.HomeOrganizationID != org {
		t.Error("home organization not resolved from membership")
	}
	if p.Role != "physician" {
		t.Errorf("role = %q, want physician", p.Role)
	}
}

func TestResolve_PatientHasNoHomeOrganization(t *testing.T) {
	store := newMockIdentityStore()
	subject := uuid.New()
	store.add(&Identity{SubjectID: subject, Kind: KindPatient})

	p, err := newTestResolver(store).Resolve(context.Background(), signToken(t, subject))
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if p.HomeOrganizationID != nil {
		t.Error("patient principal must not carry a home organization")
	}
	if p.Role != "" {
		t.Errorf("patient role = %q, want empty", p.Role)
	}
}

func TestResolve_UnknownSubject(t *testing.T) {
	_, err := newTestResolver(newMockIdentityStore()).Resolve(context.Background(), signToken(t, uuid.New()))
	if !errors.Is(err, errs.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestResolve_GarbageToken(t *testing.T) {
	_, err := newTestResolver(newMockIdentityStore()).Resolve(context.Background(), "not-a-token")
	if !errors.Is(err, errs.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestResolve_ExpiredToken(t *testing.T) {
	store := newMockIdentityStore()
	subject := uuid.New()
	store.add(&Identity{SubjectID: subject, Kind: KindPatient})

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject.String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSigningKey)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	if _, err := newTestResolver(store).Resolve(context.Background(), token); !errors.Is(err, errs.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated for expired token, got %v", err)
	}
}

func TestRequireOrganization(t *testing.T) {
	org := uuid.New()
	other := uuid.New()

	member := &Principal{ID: uuid.New(), Kind: KindOrgMember, HomeOrganizationID: &org, Role: "nurse"}
	if err := RequireOrganization(member, org); err != nil {
		t.Errorf("member of target org rejected: %v", err)
	}

	err := RequireOrganization(member, other)
	if !errors.Is(err, errs.ErrForbidden) {
		t.Errorf("wrong-tenant member: expected ErrForbidden, got %v", err)
	}

	unaffiliated := &Principal{ID: uuid.New(), Kind: KindPlatformUser}
	err = RequireOrganization(unaffiliated, org)
	if !errors.Is(err, errs.ErrNoOrganizationContext) {
		t.Errorf("unaffiliated principal: expected ErrNoOrganizationContext, got %v", err)
	}

	patient := &Principal{ID: uuid.New(), Kind: KindPatient}
	if err := RequireOrganization(patient, org); err != nil {
		t.Errorf("patient must pass (grant registry decides): %v", err)
	}

	super := &Principal{ID: uuid.New(), Kind: KindPlatformUser, Superadmin: true}
	if err := RequireOrganization(super, other); err != nil {
		t.Errorf("superadmin must pass: %v", err)
	}
}
