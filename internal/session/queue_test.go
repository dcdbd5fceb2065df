package session

import (
	"testing"
	"time"
)

func TestOutbound_FIFO(t *testing.T) {
	t.Parallel()

	q := newOutbound(time.Second)
	q.push(item{kind: itemStart, data: []byte("start")})
	q.push(item{kind: itemAudio, seq: 0, dur: 20 * time.Millisecond})
	q.push(item{kind: itemAudio, seq: 1, dur: 20 * time.Millisecond})
	q.push(item{kind: itemControl, data: []byte("stop")})

	want := []itemKind{itemStart, itemAudio, itemAudio, itemControl}
	for i, k := range want {
		it, ok := q.pop()
		if !ok {
			t.Fatalf("pop %d: queue empty", i)
		}
		if it.kind != k {
			t.Errorf("pop %d kind = %v, want %v", i, it.kind, k)
		}
	}
	if _, ok := q.pop(); ok {
		t.Error("expected empty queue")
	}
	if q.buffered != 0 {
		t.Errorf("buffered = %v after draining, want 0", q.buffered)
	}
}

func TestOutbound_DropsOldestAudioOnly(t *testing.T) {
	t.Parallel()

	q := newOutbound(100 * time.Millisecond)
	q.push(item{kind: itemStart})

	var dropped []uint64
	for seq := range uint64(10) {
		for _, d := range q.push(item{kind: itemAudio, seq: seq, dur: 20 * time.Millisecond}) {
			dropped = append(dropped, d.seq)
		}
	}
	q.push(item{kind: itemControl})

	wantDropped := []uint64{0, 1, 2, 3, 4}
	if len(dropped) != len(wantDropped) {
		t.Fatalf("dropped = %v, want %v", dropped, wantDropped)
	}
	for i := range wantDropped {
		if dropped[i] != wantDropped[i] {
			t.Errorf("dropped[%d] = %d, want %d", i, dropped[i], wantDropped[i])
		}
	}

	if it, _ := q.pop(); it.kind != itemStart {
		t.Fatalf("head = %v, want start control", it.kind)
	}
	for want := uint64(5); want < 10; want++ {
		it, _ := q.pop()
		if it.kind != itemAudio || it.seq != want {
			t.Fatalf("got kind=%v seq=%d, want audio seq=%d", it.kind, it.seq, want)
		}
	}
	if it, _ := q.pop(); it.kind != itemControl {
		t.Errorf("tail = %v, want control", it.kind)
	}
}

func TestOutbound_OversizedFrameKept(t *testing.T) {
	t.Parallel()

	q := newOutbound(10 * time.Millisecond)
	if d := q.push(item{kind: itemAudio, seq: 0, dur: 50 * time.Millisecond}); len(d) != 0 {
		t.Errorf("dropped %d items from empty queue", len(d))
	}
	if q.len() != 1 {
		t.Errorf("len = %d, want 1", q.len())
	}
}
