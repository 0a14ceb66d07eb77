package xtx

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omeyang/xgrid/pkg/grid/xcommand"
)

// fakeHandler 记录收到的命令，并可按命令类型注入错误。
type fakeHandler struct {
	mu       sync.Mutex
	received []string
	fail     map[string]error
}

func (f *fakeHandler) handle(_ context.Context, cmd xcommand.Command) (any, error) {
	var name string
	switch cmd.(type) {
	case *xcommand.PrepareCommand:
		name = "prepare"
	case *xcommand.CommitCommand:
		name = "commit"
	case *xcommand.RollbackCommand:
		name = "rollback"
	default:
		name = "other"
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.received = append(f.received, name)
	return nil, f.fail[name]
}

func newManager(t *testing.T, fail map[string]error) (*Manager, *fakeHandler) {
	t.Helper()
	fh := &fakeHandler{fail: fail}
	return New(WithHandler(fh.handle)), fh
}

func TestBegin_CarriesTransactionInContext(t *testing.T) {
	m, _ := newManager(t, nil)
	ctx, tx, err := m.Begin(context.Background())
	require.NoError(t, err)
	assert.Same(t, tx, FromContext(ctx))
	assert.NotEmpty(t, tx.ID())
	assert.Equal(t, StatusActive, tx.Status())
	assert.Equal(t, 1, m.ActiveCount())

	_, _, err = m.Begin(ctx)
	assert.ErrorIs(t, err, ErrNestedTransaction)
}

func TestCommit_TwoPhase(t *testing.T) {
	m, fh := newManager(t, nil)
	ctx, tx, err := m.Begin(context.Background())
	require.NoError(t, err)
	require.NoError(t, tx.Enlist(&xcommand.PutCommand{Key: "k"}))

	require.NoError(t, m.Commit(ctx, tx))
	assert.Equal(t, []string{"prepare", "commit"}, fh.received)
	assert.Equal(t, StatusCommitted, tx.Status())
	assert.Zero(t, m.ActiveCount())

	assert.ErrorIs(t, tx.Enlist(&xcommand.PutCommand{Key: "k"}), ErrInvalidState)
	assert.ErrorIs(t, m.Commit(ctx, tx), ErrInvalidState)
}

func TestCommit_EmptyTransactionSkipsHandler(t *testing.T) {
	m, fh := newManager(t, nil)
	ctx, tx, err := m.Begin(context.Background())
	require.NoError(t, err)
	require.NoError(t, m.Commit(ctx, tx))
	assert.Empty(t, fh.received)
}

func TestCommit_Failures(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name     string
		fail     map[string]error
		wantErr  error
		wantCmds []string
	}{
		{"prepare fails", map[string]error{"prepare": boom}, ErrRolledBack, []string{"prepare", "rollback"}},
		{"commit fails, rollback ok", map[string]error{"commit": boom}, ErrHeuristicRollback, []string{"prepare", "commit", "rollback"}},
		{"commit and rollback fail", map[string]error{"commit": boom, "rollback": boom}, ErrHeuristicMixed, []string{"prepare", "commit", "rollback"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, fh := newManager(t, tt.fail)
			ctx, tx, err := m.Begin(context.Background())
			require.NoError(t, err)
			require.NoError(t, tx.Enlist(&xcommand.RemoveCommand{Key: "k"}))

			err = m.Commit(ctx, tx)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.ErrorIs(t, err, boom)
			assert.Equal(t, tt.wantCmds, fh.received)
			assert.Equal(t, StatusRolledBack, tx.Status())
		})
	}
}

func TestCommit_RollbackOnly(t *testing.T) {
	m, fh := newManager(t, nil)
	ctx, tx, err := m.Begin(context.Background())
	require.NoError(t, err)
	require.NoError(t, tx.Enlist(&xcommand.PutCommand{Key: "k"}))
	tx.SetRollbackOnly()

	assert.ErrorIs(t, m.Commit(ctx, tx), ErrRolledBack)
	assert.Empty(t, fh.received)
}

func TestCommit_NoHandler(t *testing.T) {
	m := New()
	ctx, tx, err := m.Begin(context.Background())
	require.NoError(t, err)
	require.NoError(t, tx.Enlist(&xcommand.PutCommand{Key: "k"}))
	assert.ErrorIs(t, m.Commit(ctx, tx), ErrNoHandler)
}

func TestRollback(t *testing.T) {
	m, fh := newManager(t, nil)
	ctx, tx, err := m.Begin(context.Background())
	require.NoError(t, err)

	require.NoError(t, m.Rollback(ctx, tx))
	assert.Equal(t, StatusRolledBack, tx.Status())
	assert.ErrorIs(t, m.Rollback(ctx, tx), ErrInvalidState)
	assert.ErrorIs(t, m.Rollback(ctx, nil), ErrNoTransaction)
	assert.Empty(t, fh.received)
}

func TestSuspendResume(t *testing.T) {
	m, _ := newManager(t, nil)
	outer, tx, err := m.Begin(context.Background())
	require.NoError(t, err)

	inner, suspended := m.Suspend(outer)
	assert.Same(t, tx, suspended)
	assert.Nil(t, FromContext(inner))

	// 挂起期间可以开启独立事务
	_, tx2, err := m.Begin(inner)
	require.NoError(t, err)
	assert.NotEqual(t, tx.ID(), tx2.ID())

	resumed, err := m.Resume(inner, suspended)
	require.NoError(t, err)
	assert.Same(t, tx, FromContext(resumed))

	noop, err := m.Resume(inner, nil)
	require.NoError(t, err)
	assert.Nil(t, FromContext(noop))

	require.NoError(t, m.Rollback(resumed, tx))
	_, err = m.Resume(inner, tx)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestSuspend_NoTransaction(t *testing.T) {
	m, _ := newManager(t, nil)
	ctx := context.Background()
	got, tx := m.Suspend(ctx)
	assert.Nil(t, tx)
	assert.Equal(t, ctx, got)
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "ACTIVE", StatusActive.String())
	assert.Equal(t, "Status(42)", Status(42).String())
}
