package xexpire

import "github.com/omeyang/xgrid/pkg/grid/xcommand"

// PolicyKind 标识过期策略。
type PolicyKind int

const (
	// PolicyLocal 本地缓存。
	PolicyLocal PolicyKind = iota + 1
	// PolicyClustered 非事务集群缓存。
	PolicyClustered
	// PolicyClusteredTxPessimistic 悲观锁事务集群缓存。
	PolicyClusteredTxPessimistic
	// PolicyClusteredTxOptimistic 乐观锁事务集群缓存。
	PolicyClusteredTxOptimistic
)

func (k PolicyKind) String() string {
	switch k {
	case PolicyLocal:
		return "local"
	case PolicyClustered:
		return "clustered"
	case PolicyClusteredTxPessimistic:
		return "clustered-tx-pessimistic"
	case PolicyClusteredTxOptimistic:
		return "clustered-tx-optimistic"
	default:
		return "unknown"
	}
}

// Policy 回答与部署模式相关的过期处理问题。
type Policy struct {
	kind        PolicyKind
	readRemoval ReadRemoval
	readLocking ReadLocking
}

// NewPolicy 根据配置选择策略。cfg 需已通过 Validate。
func NewPolicy(cfg Config) Policy {
	cfg.applyDefaults()
	p := Policy{readRemoval: cfg.ReadRemoval, readLocking: cfg.ReadLocking}
	switch {
	case cfg.Mode != ModeClustered:
		p.kind = PolicyLocal
	case !cfg.Transactional:
		p.kind = PolicyClustered
	case cfg.Locking == LockingPessimistic:
		p.kind = PolicyClusteredTxPessimistic
	default:
		p.kind = PolicyClusteredTxOptimistic
	}
	return p
}

// Kind 返回策略类型。
func (p Policy) Kind() PolicyKind { return p.kind }

// Clustered 报告 lifespan 过期是否走集群移除。
func (p Policy) Clustered() bool { return p.kind != PolicyLocal }

// Transactional 报告集群移除是否在独立事务中执行。
func (p Policy) Transactional() bool {
	return p.kind == PolicyClusteredTxPessimistic || p.kind == PolicyClusteredTxOptimistic
}

// WaitForRemoval 报告由读（isWrite=false）或写触发的移除是否需要等待完成。
func (p Policy) WaitForRemoval(isWrite bool) bool {
	switch p.kind {
	case PolicyClusteredTxOptimistic:
		return true
	case PolicyClusteredTxPessimistic:
		return isWrite
	default:
		return isWrite || p.readRemoval == ReadRemovalSync
	}
}

// RemovalFlags 返回集群移除命令使用的标志。
func (p Policy) RemovalFlags(isWrite bool) []xcommand.Flag {
	if isWrite {
		return nil
	}
	switch p.kind {
	case PolicyClusteredTxOptimistic:
		// 读路径不能无限等待写锁
		return []xcommand.Flag{xcommand.FlagZeroLockTimeout}
	case PolicyClusteredTxPessimistic:
		// 读已持有该 key 的锁
		return []xcommand.Flag{xcommand.FlagSkipLocking}
	case PolicyClustered:
		if p.readLocking == ReadLockingSkip {
			return []xcommand.Flag{xcommand.FlagSkipLocking}
		}
	}
	return nil
}
