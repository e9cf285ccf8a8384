package stream

import (
	"fmt"
	"time"

	"espcam/internal/camera"
)

// Boundary は multipart の境界文字列
const Boundary = "123456789000000000000987654321"

// DefaultQuality はRAWフレームを変換する際のJPEG品質
const DefaultQuality = 80

// DefaultFramerate は X-Framerate ヘッダの既定値
const DefaultFramerate = 60

// ContentType はストリームのContent-Typeを返す
func ContentType(boundary string) string {
	return "multipart/x-mixed-replace;boundary=" + boundary
}

// Delimiter はパート間の区切りを返す
func Delimiter(boundary string) string {
	return "\r\n--" + boundary + "\r\n"
}

// PartHeader は1フレーム分のパートヘッダを返す
func PartHeader(n int, ts time.Duration) string {
	return fmt.Sprintf("Content-Type: image/jpeg\r\nContent-Length: %d\r\nX-Timestamp: %s\r\n\r\n",
		n, camera.FormatTimestamp(ts))
}
