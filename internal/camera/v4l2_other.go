//go:build !linux

package camera

import (
	"fmt"
	"runtime"
	"time"
)

// V4L2Config はV4L2ドライバの設定
type V4L2Config struct {
	Device    string
	Board     string
	PixFormat PixFormat
	FrameSize FrameSize
	Quality   int
	FPS       int
	FBCount   int
	Timeout   time.Duration
}

// V4L2Sensor はLinux以外では利用できない
type V4L2Sensor struct {
	SimulatedSensor
}

// NewV4L2Sensor は常にエラーを返す
func NewV4L2Sensor(cfg V4L2Config) (*V4L2Sensor, error) {
	return nil, fmt.Errorf("%w: v4l2 driver on %s", ErrUnsupported, runtime.GOOS)
}
