package camera

import (
	"errors"
	"fmt"
)

// センサー調整項目の範囲
const (
	minQuality     = 4
	maxQuality     = 63
	minLevel       = -2 // brightness, contrast, saturation, sharpness, ae_level
	maxLevel       = 2
	maxEffect      = 6
	maxWBMode      = 4
	maxAECValue    = 1200
	maxAGCGain     = 30
	maxGainCeiling = 6
)

// Rule は調整値の検証規則。Range か Bool のどちらか
type Rule interface {
	Check(v int) error
	rule()
}

// Range は Min 以上 Max 以下の整数を許可する
type Range struct {
	Min, Max int
}

// Check は値が範囲内か検証する
func (r Range) Check(v int) error {
	if v < r.Min || v > r.Max {
		return fmt.Errorf("%w: %d (%d..%d)", ErrOutOfRange, v, r.Min, r.Max)
	}
	return nil
}

func (Range) rule() {}

// Bool は 0 か 1 のみ許可する
type Bool struct{}

// Check は値が 0 か 1 か検証する
func (Bool) Check(v int) error {
	if v != 0 && v != 1 {
		return fmt.Errorf("%w: %d (0 or 1)", ErrOutOfRange, v)
	}
	return nil
}

func (Bool) rule() {}

// Control は1つの調整項目
type Control struct {
	Name string
	Rule Rule

	set func(s Sensor, v int) error
	get func(st Status) int
}

// Get は Status から現在値を取り出す
func (c Control) Get(st Status) int {
	return c.get(st)
}

// ControlError は項目名付きの検証・適用エラー
type ControlError struct {
	Field string
	Err   error
}

func (e *ControlError) Error() string {
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *ControlError) Unwrap() error {
	return e.Err
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}

func intControl(name string, r Range, set func(Sensor, int) error, get func(Status) int) Control {
	return Control{Name: name, Rule: r, set: set, get: get}
}

func boolControl(name string, set func(Sensor, bool) error, get func(Status) bool) Control {
	return Control{
		Name: name,
		Rule: Bool{},
		set:  func(s Sensor, v int) error { return set(s, v == 1) },
		get:  func(st Status) int { return b2i(get(st)) },
	}
}

// 適用順。framesize は他の項目より先に反映する
var controls = []Control{
	intControl("framesize", Range{int(FrameSize96x96), int(FrameSizeUXGA)},
		func(s Sensor, v int) error { return s.SetFramesize(FrameSize(v)) },
		func(st Status) int { return st.Framesize }),
	intControl("quality", Range{minQuality, maxQuality},
		Sensor.SetQuality, func(st Status) int { return st.Quality }),
	intControl("brightness", Range{minLevel, maxLevel},
		Sensor.SetBrightness, func(st Status) int { return st.Brightness }),
	intControl("contrast", Range{minLevel, maxLevel},
		Sensor.SetContrast, func(st Status) int { return st.Contrast }),
	intControl("saturation", Range{minLevel, maxLevel},
		Sensor.SetSaturation, func(st Status) int { return st.Saturation }),
	intControl("sharpness", Range{minLevel, maxLevel},
		Sensor.SetSharpness, func(st Status) int { return st.Sharpness }),
	intControl("special_effect", Range{0, maxEffect},
		Sensor.SetSpecialEffect, func(st Status) int { return st.SpecialEffect }),
	intControl("wb_mode", Range{0, maxWBMode},
		Sensor.SetWBMode, func(st Status) int { return st.WBMode }),
	boolControl("awb", Sensor.SetAWB, func(st Status) bool { return st.AWB }),
	boolControl("awb_gain", Sensor.SetAWBGain, func(st Status) bool { return st.AWBGain }),
	boolControl("aec", Sensor.SetAEC, func(st Status) bool { return st.AEC }),
	boolControl("aec2", Sensor.SetAEC2, func(st Status) bool { return st.AEC2 }),
	intControl("ae_level", Range{minLevel, maxLevel},
		Sensor.SetAELevel, func(st Status) int { return st.AELevel }),
	intControl("aec_value", Range{0, maxAECValue},
		Sensor.SetAECValue, func(st Status) int { return st.AECValue }),
	boolControl("agc", Sensor.SetAGC, func(st Status) bool { return st.AGC }),
	intControl("agc_gain", Range{0, maxAGCGain},
		Sensor.SetAGCGain, func(st Status) int { return st.AGCGain }),
	intControl("gainceiling", Range{0, maxGainCeiling},
		Sensor.SetGainCeiling, func(st Status) int { return st.GainCeiling }),
	boolControl("bpc", Sensor.SetBPC, func(st Status) bool { return st.BPC }),
	boolControl("wpc", Sensor.SetWPC, func(st Status) bool { return st.WPC }),
	boolControl("raw_gma", Sensor.SetRawGMA, func(st Status) bool { return st.RawGMA }),
	boolControl("lenc", Sensor.SetLENC, func(st Status) bool { return st.LENC }),
	boolControl("hmirror", Sensor.SetHMirror, func(st Status) bool { return st.HMirror }),
	boolControl("vflip", Sensor.SetVFlip, func(st Status) bool { return st.VFlip }),
	boolControl("dcw", Sensor.SetDCW, func(st Status) bool { return st.DCW }),
	boolControl("colorbar", Sensor.SetColorbar, func(st Status) bool { return st.Colorbar }),
}

var controlIndex = func() map[string]int {
	m := make(map[string]int, len(controls))
	for i, c := range controls {
		m[c.Name] = i
	}
	return m
}()

// Controls は全ての調整項目を適用順で返す
func Controls() []Control {
	out := make([]Control, len(controls))
	copy(out, controls)
	return out
}

// LookupControl は名前から調整項目を探す
func LookupControl(name string) (Control, bool) {
	i, ok := controlIndex[name]
	if !ok {
		return Control{}, false
	}
	return controls[i], true
}

// Validate は1項目を検証する
func Validate(name string, v int) error {
	c, ok := LookupControl(name)
	if !ok {
		return &ControlError{Field: name, Err: ErrUnknownControl}
	}
	if err := c.Rule.Check(v); err != nil {
		return &ControlError{Field: name, Err: err}
	}
	return nil
}

// ValidateAll は全項目を検証する。1つでも不正なら何も適用しない前提で使う
func ValidateAll(values map[string]int) error {
	var errs []error
	for name := range values {
		if _, ok := controlIndex[name]; !ok {
			errs = append(errs, &ControlError{Field: name, Err: ErrUnknownControl})
		}
	}
	for _, c := range controls {
		v, ok := values[c.Name]
		if !ok {
			continue
		}
		if err := c.Rule.Check(v); err != nil {
			errs = append(errs, &ControlError{Field: c.Name, Err: err})
		}
	}
	return errors.Join(errs...)
}

// Apply は1項目を検証してセンサーへ反映する
func Apply(s Sensor, name string, v int) error {
	if err := Validate(name, v); err != nil {
		return err
	}
	c := controls[controlIndex[name]]
	if err := c.set(s, v); err != nil {
		return &ControlError{Field: name, Err: err}
	}
	return nil
}

// ApplyAll は検証後、適用順に全項目を反映する。反映できた項目名を返す
func ApplyAll(s Sensor, values map[string]int) ([]string, error) {
	if err := ValidateAll(values); err != nil {
		return nil, err
	}

	applied := make([]string, 0, len(values))
	for _, c := range controls {
		v, ok := values[c.Name]
		if !ok {
			continue
		}
		if err := c.set(s, v); err != nil {
			return applied, &ControlError{Field: c.Name, Err: err}
		}
		applied = append(applied, c.Name)
	}
	return applied, nil
}
