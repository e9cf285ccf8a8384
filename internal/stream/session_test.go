package stream

import (
	"context"
	"errors"
	"testing"

	"espcam/internal/camera"
)

// TestRegistry はセッションの登録と集計をテストする
func TestRegistry(t *testing.T) {
	reg := NewRegistry()

	tr := &transport{failAt: 3*2 + 1}
	sess := reg.Open("http", "192.0.2.1:5000", tr)
	if sess.ID == "" {
		t.Fatal("セッションIDがありません")
	}

	st := reg.Stats()
	if st.Active != 1 || st.TotalSessions != 1 {
		t.Errorf("アクティブなセッション数が1ではありません: %+v", st)
	}

	source := camera.NewMockSource(jpegFrame(1))
	r := NewResponder(source, camera.NewJPEGEncoder())
	err := r.Serve(context.Background(), sess)
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("予期しないエラー: got %v, want %v", err, ErrTransport)
	}

	if sess.Frames() != 2 {
		t.Errorf("フレーム数: got %d, want 2", sess.Frames())
	}
	if sess.Bytes() != int64(tr.committed.Len()) {
		t.Errorf("バイト数: got %d, want %d", sess.Bytes(), tr.committed.Len())
	}

	reg.Close(sess, err)
	st = reg.Stats()
	if st.Active != 0 {
		t.Errorf("アクティブなセッション数: got %d, want 0", st.Active)
	}
	if st.TotalFrames != 2 {
		t.Errorf("総フレーム数: got %d, want 2", st.TotalFrames)
	}
	if st.LastError != "transport" {
		t.Errorf("最後のエラー: got %s, want transport", st.LastError)
	}

	// 二重のCloseは無視される
	reg.Close(sess, errors.Join(ErrAcquire))
	if reg.Stats().LastError != "transport" {
		t.Error("2回目の Close が無視されていません")
	}
}

// TestRegistry_UniqueIDs はセッションIDが重複しないことをテストする
func TestRegistry_UniqueIDs(t *testing.T) {
	reg := NewRegistry()
	a := reg.Open("http", "", &transport{})
	b := reg.Open("ws", "", &transport{})
	if a.ID == b.ID {
		t.Error("セッションIDが重複しています")
	}

	st := reg.Stats()
	if len(st.Sessions) != 2 {
		t.Fatalf("セッション数: got %d, want 2", len(st.Sessions))
	}
}

// TestKind はエラーの分類をテストする
func TestKind(t *testing.T) {
	testCases := []struct {
		err      error
		expected string
	}{
		{nil, ""},
		{ErrAcquire, "acquire"},
		{ErrEncode, "encode"},
		{ErrTransport, "transport"},
		{errors.New("other"), "unknown"},
	}
	for _, tc := range testCases {
		if got := Kind(tc.err); got != tc.expected {
			t.Errorf("Kind(%v): got %s, want %s", tc.err, got, tc.expected)
		}
	}
}
