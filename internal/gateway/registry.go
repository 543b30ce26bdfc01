package gateway

import "sync"

// Registry は受信者識別子からライブ接続の集合への対応を保持する。
// 接続が1つもない受信者のキーは残さない。
// Close後のRegistryは新しい接続を受け付けない。
type Registry struct {
	mu     sync.RWMutex
	conns  map[string]map[*Connection]struct{}
	closed bool
}

// NewRegistry は空のRegistryを生成する。
func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]map[*Connection]struct{})}
}

// Register は接続を受信者の集合に追加する。Close後はfalseを返し、追加しない。
func (r *Registry) Register(c *Connection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return false
	}
	set, ok := r.conns[c.Recipient()]
	if !ok {
		set = make(map[*Connection]struct{})
		r.conns[c.Recipient()] = set
	}
	set[c] = struct{}{}
	return true
}

// Unregister は接続を取り除き、集合が空になれば受信者のキーも削除する。
// 登録されていない接続に対しては何もしない。
func (r *Registry) Unregister(c *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.conns[c.Recipient()]
	if !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(r.conns, c.Recipient())
	}
}

// Snapshot は受信者の現在の接続を返す。返したスライスは以後の登録・解除の影響を受けない。
func (r *Registry) Snapshot(recipient string) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.conns[recipient]
	out := make([]*Connection, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	return out
}

// Has は受信者のキーが存在するかを返す。
func (r *Registry) Has(recipient string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.conns[recipient]
	return ok
}

// Len は接続を持つ受信者の数を返す。
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Close は全接続を取り出してRegistryを空にし、以後の登録を拒否する。
func (r *Registry) Close() []*Connection {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	var out []*Connection
	for _, set := range r.conns {
		for c := range set {
			out = append(out, c)
		}
	}
	r.conns = make(map[string]map[*Connection]struct{})
	return out
}
