package camera

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Pool は固定数のフレームバッファを貸し出すプール
//
// 貸し出し中のスロットが上限に達すると Get は返却を待つ。
type Pool struct {
	frames []*Frame
	inUse  []bool
	free   chan int
	mu     sync.Mutex

	closed    chan struct{}
	closeOnce sync.Once
}

// NewPool は n 個のスロットを持つ Pool を作成する
func NewPool(n int) *Pool {
	if n < 1 {
		n = 1
	}

	p := &Pool{
		frames: make([]*Frame, n),
		inUse:  make([]bool, n),
		free:   make(chan int, n),
		closed: make(chan struct{}),
	}
	for i := range p.frames {
		p.frames[i] = &Frame{slot: i}
		p.free <- i
	}
	return p
}

// Get は空きスロットを1つ貸し出す
func (p *Pool) Get(ctx context.Context) (*Frame, error) {
	select {
	case <-p.closed:
		return nil, ErrPoolClosed
	default:
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.closed:
		return nil, ErrPoolClosed
	case slot := <-p.free:
		p.mu.Lock()
		p.inUse[slot] = true
		p.mu.Unlock()

		f := p.frames[slot]
		f.Data = f.Data[:0]
		return f, nil
	}
}

// Put はスロットを返却する
func (p *Pool) Put(f *Frame) error {
	if f == nil {
		return fmt.Errorf("%w: nilフレーム", ErrInvalidRelease)
	}
	if f.slot < 0 || f.slot >= len(p.frames) || p.frames[f.slot] != f {
		return fmt.Errorf("%w: このプールのフレームではありません: slot=%d", ErrInvalidRelease, f.slot)
	}

	p.mu.Lock()
	if !p.inUse[f.slot] {
		p.mu.Unlock()
		return fmt.Errorf("%w: 貸し出されていないフレームです: slot=%d", ErrInvalidRelease, f.slot)
	}
	p.inUse[f.slot] = false
	p.mu.Unlock()

	p.free <- f.slot
	return nil
}

// Cap はスロット数を返す
func (p *Pool) Cap() int {
	return len(p.frames)
}

// InUse は貸し出し中のスロット数を返す
func (p *Pool) InUse() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := 0
	for _, used := range p.inUse {
		if used {
			n++
		}
	}
	return n
}

// Close は待機中の Get を解除する。返却は引き続き受け付ける
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		close(p.closed)
	})
}

// reserveSlots は全スロットを確保する。timeout までに揃わなければ確保分を戻して ErrBusy を返す
func reserveSlots(slots chan struct{}, timeout time.Duration) (release func(), err error) {
	n := 0
	release = func() {
		for ; n > 0; n-- {
			<-slots
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for n < cap(slots) {
		select {
		case slots <- struct{}{}:
			n++
		case <-timer.C:
			inUse := len(slots) - n
			release()
			return nil, fmt.Errorf("%w: %d/%d 個のフレームが返却されていません", ErrBusy, inUse, cap(slots))
		}
	}
	return release, nil
}
