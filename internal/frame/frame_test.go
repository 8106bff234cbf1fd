package frame

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestNewValidatesGeometry(t *testing.T) {
	tests := []struct {
		name    string
		n, w, h int
		wantErr bool
	}{
		{name: "ok", n: 2 * 3 * 4, w: 2, h: 3},
		{name: "zero width", n: 0, w: 0, h: 3, wantErr: true},
		{name: "negative height", n: 8, w: 2, h: -1, wantErr: true},
		{name: "short", n: 2*3*4 - 1, w: 2, h: 3, wantErr: true},
		{name: "long", n: 2*3*4 + 4, w: 2, h: 3, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := New(make([]byte, tt.n), tt.w, tt.h)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidGeometry) {
					t.Fatalf("err = %v, want ErrInvalidGeometry", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			if b.Len() != b.Width()*b.Height()*4 || b.Stride() != b.Width()*4 {
				t.Fatalf("bad buffer: len=%d stride=%d", b.Len(), b.Stride())
			}
		})
	}
}

func TestCopyDropsRowPadding(t *testing.T) {
	// 2x2 frame, 12-byte stride (4 bytes padding per row)
	src := []byte{
		1, 2, 3, 4, 5, 6, 7, 8, 0xEE, 0xEE, 0xEE, 0xEE,
		9, 10, 11, 12, 13, 14, 15, 16, 0xEE, 0xEE, 0xEE, 0xEE,
	}
	b, err := Copy(src, 2, 2, 12)
	if err != nil {
		t.Fatalf("Copy: %v", err)
	}
	want := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}
	if string(b.Pixels()) != string(want) {
		t.Fatalf("pixels = %v, want %v", b.Pixels(), want)
	}

	// the copy must not alias the platform buffer
	src[0] = 0xFF
	if b.Pixels()[0] != 1 {
		t.Fatal("Copy aliased the source buffer")
	}
}

func TestCopyPackedAndShort(t *testing.T) {
	src := make([]byte, 3*2*4)
	if _, err := Copy(src, 3, 2, 0); err != nil {
		t.Fatalf("packed Copy: %v", err)
	}
	if _, err := Copy(src[:len(src)-1], 3, 2, 0); !errors.Is(err, ErrInvalidGeometry) {
		t.Fatalf("short Copy err = %v", err)
	}
	if _, err := Copy(src, 3, 2, 8); !errors.Is(err, ErrInvalidGeometry) {
		t.Fatalf("stride smaller than row err = %v", err)
	}
}

func TestToRGBASwapsChannels(t *testing.T) {
	b, err := New([]byte{10, 20, 30, 255}, 1, 1)
	if err != nil {
		t.Fatal(err)
	}
	img := b.ToRGBA()
	if got := img.Pix[:4]; got[0] != 30 || got[1] != 20 || got[2] != 10 || got[3] != 255 {
		t.Fatalf("RGBA = %v, want [30 20 10 255]", got)
	}
}

func TestWithMeta(t *testing.T) {
	at := time.Unix(1700000000, 0)
	b, _ := New(make([]byte, 4), 1, 1)
	stamped := b.WithMeta(7, at)
	if stamped.Sequence() != 7 || !stamped.CapturedAt().Equal(at) {
		t.Fatalf("meta = %d %v", stamped.Sequence(), stamped.CapturedAt())
	}
	if b.Sequence() != 0 || !b.CapturedAt().IsZero() {
		t.Fatalf("WithMeta changed its receiver: %d %v", b.Sequence(), b.CapturedAt())
	}
	if &stamped.Pixels()[0] != &b.Pixels()[0] {
		t.Fatal("WithMeta copied the pixels")
	}
}

func mustBuffer(t *testing.T, seq uint64) *Buffer {
	t.Helper()
	b, err := New(make([]byte, 4), 1, 1)
	if err != nil {
		t.Fatal(err)
	}
	return b.WithMeta(seq, time.Now())
}

func TestMailboxLatestWins(t *testing.T) {
	var m Mailbox
	if m.Take() != nil {
		t.Fatal("empty mailbox returned a buffer")
	}

	first := mustBuffer(t, 1)
	second := mustBuffer(t, 2)

	if displaced := m.Publish(first); displaced != nil {
		t.Fatal("first publish displaced something")
	}
	if displaced := m.Publish(second); displaced != first {
		t.Fatal("second publish should displace the first buffer")
	}
	if !m.Pending() {
		t.Fatal("Pending = false after publish")
	}

	if got := m.Take(); got != second {
		t.Fatalf("Take = %v, want the second buffer", got)
	}
	if got := m.Take(); got != nil {
		t.Fatal("second Take returned the same frame again")
	}
}

func TestMailboxClear(t *testing.T) {
	var m Mailbox
	m.Publish(mustBuffer(t, 1))
	m.Clear()
	if m.Pending() || m.Take() != nil {
		t.Fatal("Clear left a buffer behind")
	}
}

// Every published buffer is delivered at most once, however consumers race.
func TestMailboxSingleDeliveryUnderContention(t *testing.T) {
	var m Mailbox
	const frames = 2000
	const consumers = 4

	var mu sync.Mutex
	seen := make(map[uint64]int)
	done := make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < consumers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				if b := m.Take(); b != nil {
					mu.Lock()
					seen[b.Sequence()]++
					mu.Unlock()
					continue
				}
				select {
				case <-done:
					return
				default:
				}
			}
		}()
	}

	for seq := uint64(1); seq <= frames; seq++ {
		m.Publish(mustBuffer(t, seq))
	}
	close(done)
	wg.Wait()

	if b := m.Take(); b != nil {
		seen[b.Sequence()]++
	}
	for seq, n := range seen {
		if n != 1 {
			t.Fatalf("frame %d delivered %d times", seq, n)
		}
	}
}
