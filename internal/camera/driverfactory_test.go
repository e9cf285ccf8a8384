package camera

import (
	"testing"
	"time"
)

// TestNewDriver_Simulated はシミュレータドライバの作成をテストする
func TestNewDriver_Simulated(t *testing.T) {
	d, err := NewDriver(DriverSimulated, DriverConfig{
		Board:     "AI-THINKER",
		Model:     "OV2640",
		XCLKMHz:   20,
		PixFormat: PixFormatJPEG,
		FrameSize: FrameSizeQVGA,
		FBCount:   2,
	})
	if err != nil {
		t.Fatalf("NewDriver でエラーが発生しました: %v", err)
	}
	defer d.Close()

	info := d.Info()
	if info.Board != "AI-THINKER" || info.Model != "OV2640" {
		t.Errorf("予期しないセンサー情報: %+v", info)
	}
	if got := d.Status().Framesize; got != int(FrameSizeQVGA) {
		t.Errorf("予期しない解像度: got %d, want %d", got, FrameSizeQVGA)
	}
}

// TestNewDriver_Unsupported は未対応のドライバ種別をテストする
func TestNewDriver_Unsupported(t *testing.T) {
	if _, err := NewDriver(DriverType("usb"), DriverConfig{}); err == nil {
		t.Error("未対応のドライバでエラーになりませんでした")
	}
}

// TestNewDriver_InvalidConfig は不正な解像度の拒否をテストする
func TestNewDriver_InvalidConfig(t *testing.T) {
	_, err := NewDriver(DriverSimulated, DriverConfig{FrameSize: FrameSize(99)})
	if err == nil {
		t.Error("不正な解像度でエラーになりませんでした")
	}
}

// TestSupportedDrivers はドライバ一覧をテストする
func TestSupportedDrivers(t *testing.T) {
	drivers := SupportedDrivers()
	if len(drivers) != 2 {
		t.Fatalf("予期しないドライバ数: got %d, want 2", len(drivers))
	}
	if drivers[0] != DriverSimulated || drivers[1] != DriverV4L2 {
		t.Errorf("予期しないドライバの順序: %v", drivers)
	}
}

// TestFrameWaitSeconds はフレーム待機時間の秒単位への切り上げをテストする
func TestFrameWaitSeconds(t *testing.T) {
	testCases := []struct {
		d    time.Duration
		want uint32
	}{
		{0, 1},
		{200 * time.Millisecond, 1},
		{time.Second, 1},
		{1500 * time.Millisecond, 2},
		{5 * time.Second, 5},
	}

	for _, tc := range testCases {
		if got := frameWaitSeconds(tc.d); got != tc.want {
			t.Errorf("frameWaitSeconds(%v): got %d, want %d", tc.d, got, tc.want)
		}
	}
}
