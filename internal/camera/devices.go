package camera

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
)

var videoDevicePattern = regexp.MustCompile(`^/dev/video(\d+)$`)

// ScanDevices は /dev/video* を番号順に列挙する
func ScanDevices() ([]string, error) {
	matches, err := filepath.Glob("/dev/video*")
	if err != nil {
		return nil, fmt.Errorf("デバイスのスキャンに失敗: %w", err)
	}
	return SortDevices(filterDevices(matches, isDeviceReadable)), nil
}

// SortDevices はデバイスパスを番号順に並べ替える
func SortDevices(devices []string) []string {
	sorted := make([]string, len(devices))
	copy(sorted, devices)
	sort.SliceStable(sorted, func(i, j int) bool {
		return extractDeviceNumber(sorted[i]) < extractDeviceNumber(sorted[j])
	})
	return sorted
}

func filterDevices(devices []string, ok func(string) bool) []string {
	var out []string
	for _, d := range devices {
		if videoDevicePattern.MatchString(d) && ok(d) {
			out = append(out, d)
		}
	}
	return out
}

// isDeviceReadable はデバイスファイルを読み取りで開けるか確認する
func isDeviceReadable(device string) bool {
	file, err := os.OpenFile(device, os.O_RDONLY, 0)
	if err != nil {
		return false
	}
	_ = file.Close()
	return true
}

// extractDeviceNumber はデバイスパスから番号を抽出する
func extractDeviceNumber(device string) int {
	matches := videoDevicePattern.FindStringSubmatch(device)
	if len(matches) < 2 {
		return -1
	}

	num, err := strconv.Atoi(matches[1])
	if err != nil {
		return -1
	}
	return num
}
