// ABOUTME: Key-value backend contract for the local entity stores
// ABOUTME: Defines the KV interface and an in-memory implementation
package storage

// KV is the injected persistence contract for the local stores. Get returns
// (nil, nil) for a missing key; callers treat any error the same as missing
// data. Set failures are the caller's to swallow: in-memory state stays ahead
// of persistence by contract.
type KV interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte) error
	Close() error
}

// MemoryKV is a map-backed KV. Used in tests and as the fallback backend when
// no durable store can be opened.
type MemoryKV struct {
	data map[string][]byte
}

func NewMemoryKV() *MemoryKV {
	return &MemoryKV{data: make(map[string][]byte)}
}

func (m *MemoryKV) Get(key string) ([]byte, error) {
	v, ok := m.data[key]
	if !ok {
		return nil, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (m *MemoryKV) Set(key string, value []byte) error {
	v := make([]byte, len(value))
	copy(v, value)
	m.data[key] = v
	return nil
}

func (m *MemoryKV) Close() error {
	return nil
}
