package gateway

import (
	"sync"

	"go.uber.org/zap"

	"github.com/voicebridge-ai/EchoGate/pkg/logger"
)

// Registry 设备 ID 到活跃会话的映射。调度器按设备查会话推送提醒，
// 同一设备重连时新会话顶掉旧条目。
type Registry struct {
	mu    sync.RWMutex
	peers map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{peers: make(map[string]*Session)}
}

// Register 登记会话，同设备旧会话被替换
func (r *Registry) Register(s *Session) {
	r.mu.Lock()
	old, exists := r.peers[s.DeviceID]
	r.peers[s.DeviceID] = s
	r.mu.Unlock()
	if exists && old != s {
		logger.Warn("[Registry] 设备重复连接，替换旧会话",
			zap.String("deviceId", s.DeviceID),
			zap.String("oldSession", old.ID),
			zap.String("newSession", s.ID))
	}
}

// Unregister 注销会话。带身份校验：同设备若已被新连接顶掉，
// 旧连接的延迟注销不能误删新条目。
func (r *Registry) Unregister(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.peers[s.DeviceID]; ok && cur == s {
		delete(r.peers, s.DeviceID)
	}
}

// Lookup 按设备 ID 查活跃会话
func (r *Registry) Lookup(deviceID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.peers[deviceID]
	return s, ok
}

// Len 活跃连接数
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}

// Range 遍历活跃会话快照，关机清场时用
func (r *Registry) Range(fn func(*Session)) {
	r.mu.RLock()
	snapshot := make([]*Session, 0, len(r.peers))
	for _, s := range r.peers {
		snapshot = append(snapshot, s)
	}
	r.mu.RUnlock()
	for _, s := range snapshot {
		fn(s)
	}
}
