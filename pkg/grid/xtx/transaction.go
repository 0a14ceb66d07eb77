package xtx

import (
	"fmt"
	"slices"
	"sync"

	"github.com/omeyang/xgrid/pkg/grid/xcommand"
)

// Status 是事务状态。
type Status int

const (
	StatusActive Status = iota
	StatusMarkedRollback
	StatusPreparing
	StatusCommitting
	StatusCommitted
	StatusRolledBack
)

var statusNames = [...]string{"ACTIVE", "MARKED_ROLLBACK", "PREPARING", "COMMITTING", "COMMITTED", "ROLLED_BACK"}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return fmt.Sprintf("Status(%d)", int(s))
	}
	return statusNames[s]
}

// Transaction 是一个进程内事务，收集待提交的修改。
type Transaction struct {
	id string

	mu     sync.Mutex
	status Status
	mods   []xcommand.Command
}

// ID 返回事务 ID。
func (t *Transaction) ID() string { return t.id }

// Status 返回当前状态。
func (t *Transaction) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Enlist 登记一条修改，只允许在 Active 状态下调用。
func (t *Transaction) Enlist(cmd xcommand.Command) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status != StatusActive {
		return fmt.Errorf("%w: enlist in %s", ErrInvalidState, t.status)
	}
	t.mods = append(t.mods, cmd)
	return nil
}

// Modifications 返回已登记修改的副本。
func (t *Transaction) Modifications() []xcommand.Command {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.mods)
}

// SetRollbackOnly 标记事务只能回滚。
func (t *Transaction) SetRollbackOnly() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status == StatusActive {
		t.status = StatusMarkedRollback
	}
}

// transition 在当前状态属于 from 时切换到 to，返回切换前的状态。
func (t *Transaction) transition(to Status, from ...Status) (Status, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	prev := t.status
	if !slices.Contains(from, prev) {
		return prev, fmt.Errorf("%w: %s -> %s", ErrInvalidState, prev, to)
	}
	t.status = to
	return prev, nil
}

func (t *Transaction) set(s Status) {
	t.mu.Lock()
	t.status = s
	t.mu.Unlock()
}
