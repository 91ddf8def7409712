package cache

import (
	"container/list"
	"context"
	"sync"
)

// DefaultDedupWindow: размер окна дедупликации по умолчанию.
const DefaultDedupWindow = 1000

// MemoryDeduplicator хранит последние N идентификаторов в порядке вставки.
// Состояние живёт только в памяти процесса и теряется при рестарте.
type MemoryDeduplicator struct {
	mu    sync.Mutex
	limit int
	order *list.List
	index map[string]*list.Element
}

// NewMemoryDeduplicator создаёт дедупликатор с окном limit.
func NewMemoryDeduplicator(limit int) *MemoryDeduplicator {
	if limit <= 0 {
		limit = DefaultDedupWindow
	}
	return &MemoryDeduplicator{
		limit: limit,
		order: list.New(),
		index: make(map[string]*list.Element, limit),
	}
}

// MarkSeen добавляет идентификатор и вытесняет самый старый при переполнении.
// Возвращает false, если идентификатор уже был в окне; его позиция при этом не меняется.
func (d *MemoryDeduplicator) MarkSeen(_ context.Context, messageID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.index[messageID]; ok {
		return false, nil
	}
	d.index[messageID] = d.order.PushBack(messageID)
	for d.order.Len() > d.limit {
		oldest := d.order.Front()
		d.order.Remove(oldest)
		delete(d.index, oldest.Value.(string))
	}
	return true, nil
}

// Contains проверяет, есть ли идентификатор в окне.
func (d *MemoryDeduplicator) Contains(messageID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.index[messageID]
	return ok
}

// Len возвращает текущее число идентификаторов в окне.
func (d *MemoryDeduplicator) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.order.Len()
}
