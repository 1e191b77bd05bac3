package tenant

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/caregrid/caregrid/internal/platform/db"
	"github.com/caregrid/caregrid/internal/platform/errs"
)

type fakeTx struct {
	pgx.Tx
	committed  bool
	rolledBack bool
}

func (t *fakeTx) Commit(_ context.Context) error {
	t.committed = true
	return nil
}

func (t *fakeTx) Rollback(_ context.Context) error {
	if !t.committed {
		t.rolledBack = true
	}
	return nil
}

type fakeDB struct {
	tx       *fakeTx
	beginErr error
}

func (d *fakeDB) Begin(_ context.Context) (pgx.Tx, error) {
	if d.beginErr != nil {
		return nil, d.beginErr
	}
	d.tx = &fakeTx{}
	return d.tx, nil
}

type scopeAccess struct {
	action string
	orgID  uuid.UUID
	actor  uuid.UUID
}

type fakeRecorder struct {
	accesses []scopeAccess
	err      error
}

func (r *fakeRecorder) RecordScopeAccess(_ context.Context, action string, organizationID, actorID uuid.UUID) error {
	if r.err != nil {
		return r.err
	}
	r.accesses = append(r.accesses, scopeAccess{action: action, orgID: organizationID, actor: actorID})
	return nil
}

func newTestGuard() (*Guard, *fakeDB, *fakeRecorder) {
	fdb := &fakeDB{}
	rec := &fakeRecorder{}
	return NewGuard(fdb, rec, zerolog.Nop()), fdb, rec
}

func testScope() Scope {
	return Scope{OrganizationID: uuid.New(), ActingUserID: uuid.New()}
}

func TestRunInScope_CommitsOnSuccess(t *testing.T) {
	g, fdb, _ := newTestGuard()
	scope := testScope()

	var seen Scope
	var sawTx bool
	err := g.RunInScope(context.Background(), scope, func(ctx context.Context) error {
		seen, _ = ScopeFromContext(ctx)
		sawTx = db.TxFromContext(ctx) != nil
		return nil
	})
	if err != nil {
		t.Fatalf("RunInScope() error: %v", err)
	}

	if seen != scope {
		t.Errorf("operation saw scope %+v, want %+v", seen, scope)
	}
	if !sawTx {
		t.Error("operation context carried no transaction")
	}
	if !fdb.tx.committed {
		t.Error("transaction was not committed")
	}
	if fdb.tx.rolledBack {
		t.Error("transaction was rolled back despite success")
	}
}

func TestRunInScope_RollsBackOnError(t *testing.T) {
	g, fdb, _ := newTestGuard()
	opErr := errors.New("store blew up")

	err := g.RunInScope(context.Background(), testScope(), func(ctx context.Context) error {
		return opErr
	})
	if !errors.Is(err, opErr) {
		t.Fatalf("expected operation error to propagate, got %v", err)
	}

	if fdb.tx.committed {
		t.Error("transaction committed despite failure")
	}
	if !fdb.tx.rolledBack {
		t.Error("transaction was not rolled back")
	}
}

func TestRunInScope_RollsBackOnPanic(t *testing.T) {
	g, fdb, _ := newTestGuard()

	func() {
		defer func() { _ = recover() }()
		_ = g.RunInScope(context.Background(), testScope(), func(ctx context.Context) error {
			panic("handler bug")
		})
	}()

	if fdb.tx.committed {
		t.Error("transaction committed despite panic")
	}
	if !fdb.tx.rolledBack {
		t.Error("transaction was not rolled back after panic")
	}
}

func TestRunInScope_RejectsNestedScope(t *testing.T) {
	g, _, _ := newTestGuard()

	err := g.RunInScope(context.Background(), testScope(), func(ctx context.Context) error {
		return g.RunInScope(ctx, testScope(), func(ctx context.Context) error {
			t.Error("nested operation must not run")
			return nil
		})
	})
	if !errors.Is(err, errs.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for nested scope, got %v", err)
	}
}

func TestRunInScope_ValidatesScope(t *testing.T) {
	g, _, _ := newTestGuard()

	err := g.RunInScope(context.Background(), Scope{ActingUserID: uuid.New()}, func(ctx context.Context) error { return nil })
	if !errors.Is(err, errs.ErrValidation) {
		t.Errorf("expected ErrValidation for missing org id, got %v", err)
	}

	err = g.RunInScope(context.Background(), Scope{OrganizationID: uuid.New()}, func(ctx context.Context) error { return nil })
	if !errors.Is(err, errs.ErrValidation) {
		t.Errorf("expected ErrValidation for missing actor id, got %v", err)
	}
}

func TestRunInScope_SuperadminIsAuditedBeforeOperation(t *testing.T) {
	g, _, rec := newTestGuard()
	scope := testScope()
	scope.IsSuperadmin = true

	var recordedBeforeOp bool
	err := g.RunInScope(context.Background(), scope, func(ctx context.Context) error {
		recordedBeforeOp = len(rec.accesses) == 1
		return nil
	})
	if err != nil {
		t.Fatalf("RunInScope() error: %v", err)
	}

	if !recordedBeforeOp {
		t.Error("superadmin access was not recorded before the operation ran")
	}
	if len(rec.accesses) != 1 {
		t.Fatalf("expected exactly 1 recorded access, got %d", len(rec.accesses))
	}
	got := rec.accesses[0]
	if got.action != ActionSuperadminCrossTenantAccess {
		t.Errorf("recorded action = %q, want %q", got.action, ActionSuperadminCrossTenantAccess)
	}
	if got.orgID != scope.OrganizationID {
		t.Errorf("recorded org = %s, want %s", got.orgID, scope.OrganizationID)
	}
	if got.actor != scope.ActingUserID {
		t.Errorf("recorded actor = %s, want %s", got.actor, scope.ActingUserID)
	}
}

func TestRunInScope_SuperadminAuditFailureAbortsOperation(t *testing.T) {
	g, fdb, rec := newTestGuard()
	rec.err = errors.New("audit store down")
	scope := testScope()
	scope.IsSuperadmin = true

	ran := false
	err := g.RunInScope(context.Background(), scope, func(ctx context.Context) error {
		ran = true
		return nil
	})
	if err == nil {
		t.Fatal("expected error when audit append fails")
	}
	if ran {
		t.Error("operation ran despite audit append failure")
	}
	if fdb.tx.committed {
		t.Error("transaction committed despite audit append failure")
	}
}

func TestRunInScope_RegularScopeNotAudited(t *testing.T) {
	g, _, rec := newTestGuard()

	err := g.RunInScope(context.Background(), testScope(), func(ctx context.Context) error { return nil })
	if err != nil {
		t.Fatalf("RunInScope() error: %v", err)
	}
	if len(rec.accesses) != 0 {
		t.Errorf("regular scope recorded %d accesses, want 0", len(rec.accesses))
	}
}

func TestEscalate_RequiresActiveScope(t *testing.T) {
	g, _, _ := newTestGuard()

	err := g.Escalate(context.Background(), testScope(), func(ctx context.Context) error { return nil })
	if !errors.Is(err, errs.ErrForbidden) {
		t.Fatalf("expected ErrForbidden without active scope, got %v", err)
	}
}

func TestEscalate_RequiresSuperadmin(t *testing.T) {
	g, _, _ := newTestGuard()

	err := g.RunInScope(context.Background(), testScope(), func(ctx context.Context) error {
		return g.Escalate(ctx, testScope(), func(ctx context.Context) error {
			t.Error("escalated operation must not run")
			return nil
		})
	})
	if !errors.Is(err, errs.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for non-superadmin escalation, got %v", err)
	}
}

func TestEscalate_RecordsAndSwitchesScope(t *testing.T) {
	g, _, rec := newTestGuard()
	outer := testScope()
	outer.IsSuperadmin = true
	inner := testScope()

	var seen Scope
	err := g.RunInScope(context.Background(), outer, func(ctx context.Context) error {
		return g.Escalate(ctx, inner, func(ctx context.Context) error {
			seen, _ = ScopeFromContext(ctx)
			return nil
		})
	})
	if err != nil {
		t.Fatalf("Escalate() error: %v", err)
	}

	if seen != inner {
		t.Errorf("escalated operation saw scope %+v, want %+v", seen, inner)
	}

	// One entry for the superadmin outer scope, one for the escalation.
	if len(rec.accesses) != 2 {
		t.Fatalf("expected 2 recorded accesses, got %d", len(rec.accesses))
	}
	if rec.accesses[1].action != ActionScopeEscalation {
		t.Errorf("second recorded action = %q, want %q", rec.accesses[1].action, ActionScopeEscalation)
	}
	if rec.accesses[1].orgID != inner.OrganizationID {
		t.Errorf("escalation recorded org %s, want %s", rec.accesses[1].orgID, inner.OrganizationID)
	}
}

func TestScopeFromContext(t *testing.T) {
	if _, ok := ScopeFromContext(context.Background()); ok {
		t.Error("expected no scope in empty context")
	}

	scope := testScope()
	ctx := WithScope(context.Background(), scope)
	got, ok := ScopeFromContext(ctx)
	if !ok || got != scope {
		t.Errorf("ScopeFromContext() = %+v, %v; want %+v, true", got, ok, scope)
	}
}
