package camera

import (
	"errors"
	"testing"
)

func newTestSensor(t *testing.T) *SimulatedSensor {
	t.Helper()
	s, err := NewSimulatedSensor(SimulatedConfig{
		Board:     "AI-THINKER",
		Model:     "OV2640",
		PixFormat: PixFormatGrayscale,
		FrameSize: FrameSize96x96,
		FBCount:   2,
	})
	if err != nil {
		t.Fatalf("NewSimulatedSensor でエラーが発生しました: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// TestRules は値域ルールの判定をテストする
func TestRules(t *testing.T) {
	testCases := []struct {
		name  string
		rule  Rule
		value int
		ok    bool
	}{
		{"範囲の下限", Range{-2, 2}, -2, true},
		{"範囲の上限", Range{-2, 2}, 2, true},
		{"下限未満", Range{-2, 2}, -3, false},
		{"上限超過", Range{4, 63}, 64, false},
		{"真偽値0", Bool{}, 0, true},
		{"真偽値1", Bool{}, 1, true},
		{"真偽値2", Bool{}, 2, false},
		{"真偽値が負", Bool{}, -1, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.rule.Check(tc.value)
			if tc.ok && err != nil {
				t.Errorf("%d が拒否されました: %v", tc.value, err)
			}
			if !tc.ok && !errors.Is(err, ErrOutOfRange) {
				t.Errorf("%d の予期しないエラー: got %v, want %v", tc.value, err, ErrOutOfRange)
			}
		})
	}
}

// TestControls_Order は制御項目の並びと参照をテストする
func TestControls_Order(t *testing.T) {
	cs := Controls()
	if len(cs) != 25 {
		t.Fatalf("予期しない項目数: got %d, want 25", len(cs))
	}
	if cs[0].Name != "framesize" {
		t.Errorf("先頭の項目: got %s, want framesize", cs[0].Name)
	}

	c, ok := LookupControl("quality")
	if !ok {
		t.Fatal("quality が見つかりません")
	}
	r, isRange := c.Rule.(Range)
	if !isRange || r.Min != 4 || r.Max != 63 {
		t.Errorf("予期しない quality のルール: %#v", c.Rule)
	}

	c, _ = LookupControl("hmirror")
	if _, isBool := c.Rule.(Bool); !isBool {
		t.Errorf("hmirror のルールが Bool ではありません: %#v", c.Rule)
	}

	if _, ok := LookupControl("led_intensity"); ok {
		t.Error("led_intensity が見つかりました")
	}
}

// TestValidate は単一項目の検証をテストする
func TestValidate(t *testing.T) {
	if err := Validate("brightness", 1); err != nil {
		t.Errorf("brightness=1 が拒否されました: %v", err)
	}

	err := Validate("brightness", 5)
	var ce *ControlError
	if !errors.As(err, &ce) || ce.Field != "brightness" {
		t.Fatalf("brightness の ControlError になりませんでした: %v", err)
	}
	if !errors.Is(err, ErrOutOfRange) {
		t.Errorf("予期しないエラー: got %v, want %v", err, ErrOutOfRange)
	}

	if err := Validate("nope", 0); !errors.Is(err, ErrUnknownControl) {
		t.Errorf("予期しないエラー: got %v, want %v", err, ErrUnknownControl)
	}
}

// TestValidateAll は複数項目の一括検証をテストする
func TestValidateAll(t *testing.T) {
	err := ValidateAll(map[string]int{
		"quality":  10,
		"contrast": 9,
		"vflip":    3,
		"bogus":    1,
	})
	if err == nil {
		t.Fatal("検証エラーになりませんでした")
	}
	if !errors.Is(err, ErrOutOfRange) || !errors.Is(err, ErrUnknownControl) {
		t.Errorf("範囲外と未知の項目の両方が報告されていません: %v", err)
	}

	if err := ValidateAll(map[string]int{"quality": 10, "awb": 0}); err != nil {
		t.Errorf("正しい設定が拒否されました: %v", err)
	}
}

// TestApply は単一項目のセンサーへの反映をテストする
func TestApply(t *testing.T) {
	s := newTestSensor(t)

	if err := Apply(s, "special_effect", 2); err != nil {
		t.Fatalf("Apply でエラーが発生しました: %v", err)
	}
	if err := Apply(s, "vflip", 1); err != nil {
		t.Fatalf("Apply でエラーが発生しました: %v", err)
	}

	st := s.Status()
	if st.SpecialEffect != 2 {
		t.Errorf("special_effect: got %d, want 2", st.SpecialEffect)
	}
	if !st.VFlip {
		t.Error("vflip が有効になっていません")
	}

	c, _ := LookupControl("vflip")
	if c.Get(st) != 1 {
		t.Errorf("vflip の値: got %d, want 1", c.Get(st))
	}

	// 範囲外は反映しない
	if err := Apply(s, "quality", 70); err == nil {
		t.Error("quality 70 でエラーになりませんでした")
	}
	if s.Status().Quality != 12 {
		t.Errorf("quality が変わりました: got %d, want 12", s.Status().Quality)
	}
}

// TestApplyAll は複数項目の一括反映をテストする
func TestApplyAll(t *testing.T) {
	s := newTestSensor(t)

	applied, err := ApplyAll(s, map[string]int{
		"hmirror":   1,
		"framesize": int(FrameSizeQQVGA),
		"quality":   20,
	})
	if err != nil {
		t.Fatalf("ApplyAll でエラーが発生しました: %v", err)
	}

	expected := []string{"framesize", "quality", "hmirror"}
	if len(applied) != len(expected) {
		t.Fatalf("反映された項目: got %v, want %v", applied, expected)
	}
	for i := range expected {
		if applied[i] != expected[i] {
			t.Errorf("%d 番目の項目: got %s, want %s", i, applied[i], expected[i])
		}
	}

	st := s.Status()
	if st.Framesize != int(FrameSizeQQVGA) || st.Quality != 20 || !st.HMirror {
		t.Errorf("設定が反映されていません: %+v", st)
	}

	// 1項目でも不正なら何も反映しない
	applied, err = ApplyAll(s, map[string]int{"quality": 30, "brightness": 9})
	if err == nil {
		t.Fatal("検証エラーになりませんでした")
	}
	if len(applied) != 0 {
		t.Errorf("失敗したのに反映されました: %v", applied)
	}
	if s.Status().Quality != 20 {
		t.Errorf("quality が変わりました: got %d, want 20", s.Status().Quality)
	}
}
