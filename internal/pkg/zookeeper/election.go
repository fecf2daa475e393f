// internal/pkg/zookeeper/election.go
package zookeeper

import (
	"sort"
	"strings"
	"sync"

	"github.com/go-zookeeper/zk"
)

const electionRoot = "/poscore/elections"

// LeaderElector 基于 ZooKeeper 临时顺序节点实现选主。
// 多副本部署时，只有持有最小序号节点的副本成为 leader；
// leader 掉线后其临时节点消失，其余副本自动接替。
type LeaderElector struct {
	conn     *Conn
	path     string // 选举路径，例如 /poscore/elections/expiry-sweeper
	nodeName string // 自己创建的候选节点名

	mu       sync.RWMutex
	isLeader bool
	stopCh   chan struct{}
}

// NewLeaderElector 创建一个针对特定角色的选举器
func NewLeaderElector(conn *Conn, role string) (*LeaderElector, error) {
	if err := conn.EnsurePath("/poscore"); err != nil {
		return nil, err
	}
	if err := conn.EnsurePath(electionRoot); err != nil {
		return nil, err
	}
	path := electionRoot + "/" + role
	if err := conn.EnsurePath(path); err != nil {
		return nil, err
	}
	return &LeaderElector{
		conn:   conn,
		path:   path,
		stopCh: make(chan struct{}),
	}, nil
}

// Start 加入选举并持续维护自己的身份，直至 Stop 被调用
func (e *LeaderElector) Start() error {
	nodePath, err := e.conn.CreateProtectedEphemeralSequential(e.path+"/candidate-", []byte(""), zk.WorldACL(zk.PermAll))
	if err != nil {
		return err
	}
	e.nodeName = strings.TrimPrefix(nodePath, e.path+"/")

	go e.watchLoop()
	return nil
}

// IsLeader 返回当前副本是否持有 leader 身份
func (e *LeaderElector) IsLeader() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.isLeader
}

// Stop 退出选举，释放 leader 身份
func (e *LeaderElector) Stop() {
	close(e.stopCh)
	e.mu.Lock()
	e.isLeader = false
	e.mu.Unlock()
}

func (e *LeaderElector) watchLoop() {
	for {
		select {
		case <-e.stopCh:
			return
		default:
		}

		children, _, err := e.conn.Children(e.path)
		if err != nil {
			e.setLeader(false)
			return
		}
		sort.Strings(children)

		if len(children) > 0 && children[0] == e.nodeName {
			// 自己是最小节点，成为 leader；继续监听目录以感知会话变化
			e.setLeader(true)
		} else {
			e.setLeader(false)
		}

		// 监听前一个节点（或目录），节点变化时重新评估
		_, _, eventCh, err := e.conn.ChildrenW(e.path)
		if err != nil {
			e.setLeader(false)
			return
		}
		select {
		case <-eventCh:
			continue
		case <-e.stopCh:
			return
		}
	}
}

func (e *LeaderElector) setLeader(v bool) {
	e.mu.Lock()
	e.isLeader = v
	e.mu.Unlock()
}
