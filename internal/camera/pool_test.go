package camera

import (
	"context"
	"errors"
	"testing"
	"time"
)

// TestPool_GetPut はフレームの取得と返却をテストする
func TestPool_GetPut(t *testing.T) {
	ctx := context.Background()
	pool := NewPool(2)

	if pool.Cap() != 2 {
		t.Fatalf("予期しない容量: got %d, want 2", pool.Cap())
	}

	f1, err := pool.Get(ctx)
	if err != nil {
		t.Fatalf("Get でエラーが発生しました: %v", err)
	}
	f2, err := pool.Get(ctx)
	if err != nil {
		t.Fatalf("Get でエラーが発生しました: %v", err)
	}
	if f1 == f2 {
		t.Fatal("同じフレームが2回渡されました")
	}
	if pool.InUse() != 2 {
		t.Errorf("使用中のフレーム数: got %d, want 2", pool.InUse())
	}

	if err := pool.Put(f1); err != nil {
		t.Fatalf("Put でエラーが発生しました: %v", err)
	}
	if pool.InUse() != 1 {
		t.Errorf("使用中のフレーム数: got %d, want 1", pool.InUse())
	}
	if err := pool.Put(f2); err != nil {
		t.Fatalf("Put でエラーが発生しました: %v", err)
	}
}

// TestPool_GetBlocksWhenExhausted は空きがないときに Get が返却を待つことをテストする
func TestPool_GetBlocksWhenExhausted(t *testing.T) {
	pool := NewPool(1)

	f, err := pool.Get(context.Background())
	if err != nil {
		t.Fatalf("Get でエラーが発生しました: %v", err)
	}

	// 空きがないのでタイムアウトする
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := pool.Get(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("予期しないエラー: got %v, want %v", err, context.DeadlineExceeded)
	}

	// 返却されると待機中の Get が進む
	done := make(chan *Frame, 1)
	go func() {
		g, err := pool.Get(context.Background())
		if err != nil {
			t.Errorf("Get でエラーが発生しました: %v", err)
		}
		done <- g
	}()

	time.Sleep(20 * time.Millisecond)
	if err := pool.Put(f); err != nil {
		t.Fatalf("Put でエラーが発生しました: %v", err)
	}

	select {
	case g := <-done:
		if g != f {
			t.Error("返却されたスロットが再利用されませんでした")
		}
	case <-time.After(time.Second):
		t.Fatal("返却後も Get が待ち続けています")
	}
}

// TestPool_DoubleRelease は不正な返却がエラーになることをテストする
func TestPool_DoubleRelease(t *testing.T) {
	pool := NewPool(1)
	f, _ := pool.Get(context.Background())

	if err := pool.Put(f); err != nil {
		t.Fatalf("Put でエラーが発生しました: %v", err)
	}

	testCases := []struct {
		name  string
		frame *Frame
	}{
		{"二重返却", f},
		{"プール外のフレーム", &Frame{}},
		{"nil", nil},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if err := pool.Put(tc.frame); !errors.Is(err, ErrInvalidRelease) {
				t.Errorf("予期しないエラー: got %v, want %v", err, ErrInvalidRelease)
			}
		})
	}
	if pool.InUse() != 0 {
		t.Errorf("使用中のフレーム数: got %d, want 0", pool.InUse())
	}
}

// TestPool_Close はクローズで待機中の Get が解放されることをテストする
func TestPool_Close(t *testing.T) {
	pool := NewPool(1)
	f, _ := pool.Get(context.Background())

	errCh := make(chan error, 1)
	go func() {
		_, err := pool.Get(context.Background())
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	pool.Close()

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrPoolClosed) {
			t.Errorf("予期しないエラー: got %v, want %v", err, ErrPoolClosed)
		}
	case <-time.After(time.Second):
		t.Fatal("クローズ後も Get が待ち続けています")
	}

	// クローズ後も返却はできる
	if err := pool.Put(f); err != nil {
		t.Errorf("クローズ後の Put でエラーが発生しました: %v", err)
	}
}

// TestReserveSlots は全スロットの確保とタイムアウトをテストする
func TestReserveSlots(t *testing.T) {
	t.Run("空きがある", func(t *testing.T) {
		slots := make(chan struct{}, 3)
		release, err := reserveSlots(slots, time.Second)
		if err != nil {
			t.Fatalf("reserveSlots でエラーが発生しました: %v", err)
		}
		if len(slots) != 3 {
			t.Errorf("確保したスロット数: got %d, want 3", len(slots))
		}
		release()
		if len(slots) != 0 {
			t.Errorf("解放後のスロット数: got %d, want 0", len(slots))
		}
	})

	t.Run("返却されない", func(t *testing.T) {
		slots := make(chan struct{}, 3)
		slots <- struct{}{}

		start := time.Now()
		release, err := reserveSlots(slots, 50*time.Millisecond)
		if !errors.Is(err, ErrBusy) {
			t.Fatalf("予期しないエラー: got %v, want %v", err, ErrBusy)
		}
		if release != nil {
			t.Error("失敗したのに解放関数が返されました")
		}
		if elapsed := time.Since(start); elapsed > time.Second {
			t.Errorf("タイムアウトまでの時間が長すぎます: %v", elapsed)
		}
		// 途中まで確保した分は戻っている
		if len(slots) != 1 {
			t.Errorf("残っているスロット数: got %d, want 1", len(slots))
		}
	})

	t.Run("待機中に返却される", func(t *testing.T) {
		slots := make(chan struct{}, 2)
		slots <- struct{}{}
		go func() {
			time.Sleep(20 * time.Millisecond)
			<-slots
		}()

		release, err := reserveSlots(slots, time.Second)
		if err != nil {
			t.Fatalf("reserveSlots でエラーが発生しました: %v", err)
		}
		release()
	})
}
