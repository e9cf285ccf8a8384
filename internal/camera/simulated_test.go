package camera

import (
	"bytes"
	"context"
	"image/jpeg"
	"log/slog"
	"strings"
	"testing"
	"time"
)

// TestSimulatedSensor_Acquire はピクセルフォーマットごとのフレーム生成をテストする
func TestSimulatedSensor_Acquire(t *testing.T) {
	testCases := []struct {
		format PixFormat
		length int
	}{
		{PixFormatGrayscale, 96 * 96},
		{PixFormatRGB565, 96 * 96 * 2},
		{PixFormatYUV422, 96 * 96 * 2},
		{PixFormatRGB888, 96 * 96 * 3},
	}

	for _, tc := range testCases {
		t.Run(tc.format.String(), func(t *testing.T) {
			s, err := NewSimulatedSensor(SimulatedConfig{
				PixFormat: tc.format,
				FrameSize: FrameSize96x96,
			})
			if err != nil {
				t.Fatalf("NewSimulatedSensor でエラーが発生しました: %v", err)
			}
			defer s.Close()

			f, err := s.Acquire(context.Background())
			if err != nil {
				t.Fatalf("Acquire でエラーが発生しました: %v", err)
			}
			defer s.Release(f)

			if f.Format != tc.format {
				t.Errorf("予期しないフォーマット: got %s, want %s", f.Format, tc.format)
			}
			if f.Width != 96 || f.Height != 96 {
				t.Errorf("予期しないサイズ: got %dx%d, want 96x96", f.Width, f.Height)
			}
			if f.Len() != tc.length {
				t.Errorf("予期しないバイト数: got %d, want %d", f.Len(), tc.length)
			}

			// エンコーダが受け付ける形であること
			enc := NewJPEGEncoder()
			buf, err := enc.Encode(f, 80)
			if err != nil {
				t.Fatalf("Encode でエラーが発生しました: %v", err)
			}
			enc.Free(buf)
		})
	}
}

// TestSimulatedSensor_JPEG はJPEGフレームの生成をテストする
func TestSimulatedSensor_JPEG(t *testing.T) {
	s, err := NewSimulatedSensor(SimulatedConfig{
		PixFormat: PixFormatJPEG,
		FrameSize: FrameSizeQQVGA,
	})
	if err != nil {
		t.Fatalf("NewSimulatedSensor でエラーが発生しました: %v", err)
	}
	defer s.Close()

	f, err := s.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire でエラーが発生しました: %v", err)
	}
	defer s.Release(f)

	cfg, err := jpeg.DecodeConfig(bytes.NewReader(f.Data))
	if err != nil {
		t.Fatalf("フレームがJPEGではありません: %v", err)
	}
	if cfg.Width != 160 || cfg.Height != 120 {
		t.Errorf("予期しないサイズ: got %dx%d, want 160x120", cfg.Width, cfg.Height)
	}
}

// TestSimulatedSensor_PoolExhaustion はバッファが返却されるまで取得を待つことをテストする
func TestSimulatedSensor_PoolExhaustion(t *testing.T) {
	s, err := NewSimulatedSensor(SimulatedConfig{
		PixFormat: PixFormatGrayscale,
		FrameSize: FrameSize96x96,
		FBCount:   1,
	})
	if err != nil {
		t.Fatalf("NewSimulatedSensor でエラーが発生しました: %v", err)
	}
	defer s.Close()

	f, err := s.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire でエラーが発生しました: %v", err)
	}

	// 返却されるまで次のフレームは取れない
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := s.Acquire(ctx); err == nil {
		t.Fatal("バッファが返却されていないのにフレームを取得できました")
	}

	s.Release(f)
	f, err = s.Acquire(context.Background())
	if err != nil {
		t.Fatalf("返却後の Acquire でエラーが発生しました: %v", err)
	}
	s.Release(f)
}

// TestSimulatedSensor_Timestamp はタイムスタンプがFPSに沿って進むことをテストする
func TestSimulatedSensor_Timestamp(t *testing.T) {
	s, err := NewSimulatedSensor(SimulatedConfig{
		PixFormat: PixFormatGrayscale,
		FrameSize: FrameSize96x96,
		FPS:       50,
		FBCount:   2,
	})
	if err != nil {
		t.Fatalf("NewSimulatedSensor でエラーが発生しました: %v", err)
	}
	defer s.Close()

	f1, err := s.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire でエラーが発生しました: %v", err)
	}
	ts1 := f1.Timestamp
	s.Release(f1)

	f2, err := s.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire でエラーが発生しました: %v", err)
	}
	ts2 := f2.Timestamp
	s.Release(f2)

	if ts2 <= ts1 {
		t.Errorf("タイムスタンプが増加していません: %v, %v", ts1, ts2)
	}
	if ts2-ts1 < 15*time.Millisecond {
		t.Errorf("フレーム間隔が短すぎます: got %v, want 約20ms", ts2-ts1)
	}
}

// TestSimulatedSensor_Setters はセンサー設定の変更をテストする
func TestSimulatedSensor_Setters(t *testing.T) {
	s := newTestSensor(t)

	if err := s.SetFramesize(FrameSize(14)); err == nil {
		t.Error("framesize 14 でエラーになりませんでした")
	}
	if err := s.SetAGCGain(31); err == nil {
		t.Error("agc_gain 31 でエラーになりませんでした")
	}
	if err := s.SetAECValue(1200); err != nil {
		t.Errorf("SetAECValue でエラーが発生しました: %v", err)
	}
	if err := s.SetColorbar(true); err != nil {
		t.Errorf("SetColorbar でエラーが発生しました: %v", err)
	}

	st := s.Status()
	if st.AECValue != 1200 || !st.Colorbar {
		t.Errorf("予期しない状態: %+v", st)
	}

	// 解像度変更は次のフレームから反映される
	if err := s.SetFramesize(FrameSizeQQVGA); err != nil {
		t.Fatalf("SetFramesize でエラーが発生しました: %v", err)
	}
	f, err := s.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire でエラーが発生しました: %v", err)
	}
	defer s.Release(f)
	if f.Width != 160 || f.Height != 120 {
		t.Errorf("解像度変更後のサイズ: got %dx%d, want 160x120", f.Width, f.Height)
	}
}

// TestNewSimulatedSensor_Invalid は不正な設定の拒否をテストする
func TestNewSimulatedSensor_Invalid(t *testing.T) {
	if _, err := NewSimulatedSensor(SimulatedConfig{Quality: 2}); err == nil {
		t.Error("quality 2 でエラーになりませんでした")
	}
	if _, err := NewSimulatedSensor(SimulatedConfig{PixFormat: PixFormat(9)}); err == nil {
		t.Error("未知のピクセルフォーマットでエラーになりませんでした")
	}
}

// TestSimulatedSensor_ReleaseInvalid は不正な返却がログに残ることをテストする
func TestSimulatedSensor_ReleaseInvalid(t *testing.T) {
	var buf bytes.Buffer
	s, err := NewSimulatedSensor(SimulatedConfig{
		PixFormat: PixFormatGrayscale,
		FrameSize: FrameSize96x96,
		FBCount:   1,
		Logger:    slog.New(slog.NewTextHandler(&buf, nil)),
	})
	if err != nil {
		t.Fatalf("NewSimulatedSensor でエラーが発生しました: %v", err)
	}
	defer s.Close()

	f, err := s.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire でエラーが発生しました: %v", err)
	}
	s.Release(f)
	if buf.Len() != 0 {
		t.Fatalf("正常な返却でログが出力されました: %s", buf.String())
	}

	s.Release(f)
	if !strings.Contains(buf.String(), "フレームの返却に失敗") {
		t.Errorf("二重返却がログに残っていません: %q", buf.String())
	}

	// 二重返却のあとも1枚だけ取得できる
	f, err = s.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire でエラーが発生しました: %v", err)
	}
	s.Release(f)
}
