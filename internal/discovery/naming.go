package discovery

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// サービス種別
const (
	HTTPService   = "_http._tcp"
	CameraService = "_esp-cam._tcp"
	Domain        = "local."
)

// Info は公開するカメラ情報
type Info struct {
	Board      string // ボード名
	Model      string // センサーモデル
	HostName   string // 指定されていればインスタンス名として使う
	Port       int    // 制御用ポート
	StreamPort int    // ストリーム用ポート
	Framesize  int    // 現在のフレームサイズ
	PixFormat  int    // ピクセルフォーマット番号
}

// DNSラベルの最大長
const maxLabelLen = 63

// InstanceName はmDNSのインスタンス名を返す
func InstanceName(info Info, mac net.HardwareAddr) string {
	if info.HostName != "" {
		return info.HostName
	}

	parts := make([]string, 0, 3)
	for _, p := range []string{info.Board, info.Model} {
		if l := label(p); l != "" {
			parts = append(parts, l)
		}
	}
	parts = append(parts, macSuffix(mac))
	return strings.Join(parts, "-")
}

// HostName はインスタンス名からホスト名を作る。英小文字・数字・ハイフンのみ
func HostName(instance string) string {
	host := strings.ToLower(label(instance))
	if len(host) > maxLabelLen {
		host = strings.TrimRight(host[:maxLabelLen], "-")
	}
	return host
}

// label は英数字以外をハイフンにまとめ、前後のハイフンを取り除く
func label(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		default:
			if !dash && b.Len() > 0 {
				b.WriteByte('-')
				dash = true
			}
		}
	}
	return strings.TrimRight(b.String(), "-")
}

// macSuffix はMACアドレス下位3バイトを大文字16進で返す
func macSuffix(mac net.HardwareAddr) string {
	if len(mac) < 6 {
		return "000000"
	}
	return fmt.Sprintf("%02X%02X%02X", mac[3], mac[4], mac[5])
}

// TXT はカメラサービスのTXTレコードを作る
func TXT(info Info) []string {
	return []string{
		"board=" + info.Board,
		"model=" + info.Model,
		"stream_port=" + strconv.Itoa(info.StreamPort),
		"framesize=" + strconv.Itoa(info.Framesize),
		"pixformat=" + strconv.Itoa(info.PixFormat),
	}
}

// ParseTXT はTXTレコードを key=value のマップにする
func ParseTXT(txt []string) map[string]string {
	m := make(map[string]string, len(txt))
	for _, item := range txt {
		k, v, _ := strings.Cut(item, "=")
		if k != "" {
			m[k] = v
		}
	}
	return m
}

// primaryMAC は最初に見つかった物理インターフェースのMACアドレスを返す
func primaryMAC() net.HardwareAddr {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 || len(iface.HardwareAddr) < 6 {
			continue
		}
		return iface.HardwareAddr
	}
	return nil
}

// hostIPs はループバック以外のアドレスを返す
func hostIPs() []string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil
	}

	var ips []string
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() || ipNet.IP.IsLinkLocalUnicast() {
			continue
		}
		ips = append(ips, ipNet.IP.String())
	}
	return ips
}
