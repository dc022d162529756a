package strategy

import "sync"

// Table은 테이블 단위로 잠기는 스레드 안전 제네릭 맵입니다
type Table[K comparable, V any] struct {
	mu   sync.RWMutex
	data map[K]V
}

// NewTable은 빈 테이블을 생성합니다
func NewTable[K comparable, V any]() *Table[K, V] {
	return &Table[K, V]{
		data: make(map[K]V),
	}
}

// Set은 키에 값을 저장합니다
func (t *Table[K, V]) Set(k K, v V) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data[k] = v
}

// Get은 키의 값을 조회합니다. 없으면 제로값과 false를 반환합니다.
func (t *Table[K, V]) Get(k K) (V, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.data[k]
	return v, ok
}

// Update는 쓰기 잠금 안에서 키의 값을 갱신합니다
func (t *Table[K, V]) Update(k K, fn func(v V, ok bool) V) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.data[k]
	t.data[k] = fn(v, ok)
}

// Modify는 키가 있을 때만 쓰기 잠금 안에서 값을 갱신합니다
func (t *Table[K, V]) Modify(k K, fn func(v V) V) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.data[k]
	if !ok {
		return false
	}
	t.data[k] = fn(v)
	return true
}

// Delete는 키를 삭제합니다
func (t *Table[K, V]) Delete(k K) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.data, k)
}

// Len은 저장된 항목 수를 반환합니다
func (t *Table[K, V]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.data)
}

// ForEach는 읽기 잠금 안에서 모든 항목을 순회합니다
func (t *Table[K, V]) ForEach(fn func(K, V)) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for k, v := range t.data {
		fn(k, v)
	}
}

// Clear는 모든 항목을 삭제합니다
func (t *Table[K, V]) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data = make(map[K]V)
}
