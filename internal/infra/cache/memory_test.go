package cache

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
)

func TestMemoryDeduplicatorEviction(t *testing.T) {
	ctx := context.Background()
	d := NewMemoryDeduplicator(1000)
	for i := 0; i < 1001; i++ {
		fresh, err := d.MarkSeen(ctx, "mid."+strconv.Itoa(i))
		if err != nil || !fresh {
			t.Fatalf("ожидали новый идентификатор mid.%d: %v", i, err)
		}
	}
	if d.Len() != 1000 {
		t.Fatalf("ожидали 1000 идентификаторов, получили %d", d.Len())
	}
	if d.Contains("mid.0") {
		t.Fatalf("первый идентификатор должен быть вытеснен")
	}
	for i := 1; i <= 1000; i++ {
		if !d.Contains("mid." + strconv.Itoa(i)) {
			t.Fatalf("идентификатор mid.%d должен остаться в окне", i)
		}
	}
}

func TestMemoryDeduplicatorRepeatedMark(t *testing.T) {
	ctx := context.Background()
	d := NewMemoryDeduplicator(2)
	if fresh, _ := d.MarkSeen(ctx, "a"); !fresh {
		t.Fatalf("первая отметка должна быть новой")
	}
	if fresh, _ := d.MarkSeen(ctx, "a"); fresh {
		t.Fatalf("повторная отметка должна считаться дублем")
	}
	_, _ = d.MarkSeen(ctx, "b")
	if d.Len() != 2 {
		t.Fatalf("повторная запись не должна занимать место, len=%d", d.Len())
	}
	_, _ = d.MarkSeen(ctx, "c")
	if d.Contains("a") {
		t.Fatalf("ожидали вытеснение a по порядку вставки")
	}
}

func TestMemoryDeduplicatorConcurrentMark(t *testing.T) {
	ctx := context.Background()
	d := NewMemoryDeduplicator(DefaultDedupWindow)
	var (
		wg    sync.WaitGroup
		fresh atomic.Int32
		start = make(chan struct{})
	)
	for range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if ok, _ := d.MarkSeen(ctx, "mid.same"); ok {
				fresh.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()
	if fresh.Load() != 1 {
		t.Fatalf("ровно один вызов должен получить новый идентификатор, получили %d", fresh.Load())
	}
}

func TestMemoryDeduplicatorDefaultLimit(t *testing.T) {
	if d := NewMemoryDeduplicator(0); d.limit != DefaultDedupWindow {
		t.Fatalf("ожидали окно по умолчанию %d, получили %d", DefaultDedupWindow, d.limit)
	}
}

func TestDedupKey(t *testing.T) {
	if got := dedupKey("m_1"); got != "ig:msg:m_1" {
		t.Fatalf("неожиданный ключ: %s", got)
	}
}
