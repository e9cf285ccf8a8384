package camera

import (
	"testing"
	"time"
)

// TestSplitTimestamp はタイムスタンプの秒とマイクロ秒への分割をテストする
func TestSplitTimestamp(t *testing.T) {
	testCases := []struct {
		d    time.Duration
		sec  int64
		usec int64
		text string
	}{
		{7*time.Second + 250*time.Millisecond, 7, 250000, "7.250000"},
		{0, 0, 0, "0.000000"},
		{12*time.Microsecond + time.Second, 1, 12, "1.000012"},
		{999999 * time.Microsecond, 0, 999999, "0.999999"},
	}

	for _, tc := range testCases {
		sec, usec := SplitTimestamp(tc.d)
		if sec != tc.sec || usec != tc.usec {
			t.Errorf("SplitTimestamp(%v): got (%d, %d), want (%d, %d)", tc.d, sec, usec, tc.sec, tc.usec)
		}
		if got := FormatTimestamp(tc.d); got != tc.text {
			t.Errorf("FormatTimestamp(%v): got %s, want %s", tc.d, got, tc.text)
		}
	}
}

// TestPixFormat はピクセルフォーマット名の相互変換をテストする
func TestPixFormat(t *testing.T) {
	for p := PixFormatRGB565; p <= PixFormatRGB888; p++ {
		parsed, err := ParsePixFormat(p.String())
		if err != nil {
			t.Fatalf("ParsePixFormat(%s) でエラーが発生しました: %v", p, err)
		}
		if parsed != p {
			t.Errorf("予期しないフォーマット: got %s, want %s", parsed, p)
		}
	}

	if _, err := ParsePixFormat("H264"); err == nil {
		t.Error("未知のフォーマットでエラーになりませんでした")
	}
	if PixFormatJPEG != 3 {
		t.Errorf("JPEG の値: got %d, want 3", PixFormatJPEG)
	}
}

// TestFrameSize は解像度テーブルの参照と範囲チェックをテストする
func TestFrameSize(t *testing.T) {
	testCases := []struct {
		size FrameSize
		w, h int
	}{
		{FrameSize96x96, 96, 96},
		{FrameSizeQVGA, 320, 240},
		{FrameSizeVGA, 640, 480},
		{FrameSizeHD, 1280, 720},
		{FrameSizeUXGA, 1600, 1200},
	}
	for _, tc := range testCases {
		r := tc.size.Resolution()
		if r.Width != tc.w || r.Height != tc.h {
			t.Errorf("FrameSize(%d): got %dx%d, want %dx%d", tc.size, r.Width, r.Height, tc.w, tc.h)
		}
		if !tc.size.Valid() {
			t.Errorf("FrameSize(%d) が無効と判定されました", tc.size)
		}
	}

	if FrameSize(14).Valid() || FrameSize(-1).Valid() {
		t.Error("テーブル外の解像度が有効と判定されました")
	}
}

// TestFrameLen はフレームのバイト長をテストする
func TestFrameLen(t *testing.T) {
	f := Frame{Data: make([]byte, 42)}
	if f.Len() != 42 {
		t.Errorf("予期しない長さ: got %d, want 42", f.Len())
	}
	if (&Frame{}).Len() != 0 {
		t.Error("空のフレームの長さが0ではありません")
	}
}
