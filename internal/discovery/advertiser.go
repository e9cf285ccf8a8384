package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
)

// Peer は問い合わせで見つかったカメラ
type Peer struct {
	Instance   string   `json:"instance"`
	HostName   string   `json:"hostname"`
	Port       int      `json:"port"`
	Addrs      []string `json:"addrs"`
	Board      string   `json:"board"`
	Model      string   `json:"model"`
	StreamPort int      `json:"stream_port"`
	Framesize  int      `json:"framesize"`
	PixFormat  int      `json:"pixformat"`
}

// Options は問い合わせの設定
type Options struct {
	QueryInterval time.Duration // 問い合わせ間隔
	QueryTimeout  time.Duration // 1回の問い合わせ時間
	MaxResults    int           // 保持する結果の上限
}

// DefaultOptions はデフォルトの問い合わせ設定を返す
func DefaultOptions() Options {
	return Options{
		QueryInterval: 55 * time.Second,
		QueryTimeout:  5 * time.Second,
		MaxResults:    4,
	}
}

// 問い合わせ終了後に残りを読み捨てる時間
const drainTimeout = 2 * time.Second

// browseFunc は zeroconf.Resolver.Browse の型
type browseFunc func(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error

// Advertiser はmDNSへのサービス登録と他のカメラの探索を行う
type Advertiser struct {
	info     Info
	instance string
	host     string
	opts     Options
	logger   *slog.Logger

	mu     sync.Mutex
	http   *zeroconf.Server
	camera *zeroconf.Server

	peersMu sync.RWMutex
	peers   []Peer

	browse browseFunc
}

// New は新しい Advertiser を作成する
func New(info Info, opts Options, logger *slog.Logger) *Advertiser {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxResults < 1 {
		opts.MaxResults = DefaultOptions().MaxResults
	}

	instance := InstanceName(info, primaryMAC())
	return &Advertiser{
		info:     info,
		instance: instance,
		host:     HostName(instance),
		opts:     opts,
		logger:   logger.With("component", "mdns"),
	}
}

// Instance はインスタンス名を返す
func (a *Advertiser) Instance() string {
	return a.instance
}

// Host はホスト名を返す
func (a *Advertiser) Host() string {
	return a.host
}

// Start は _http._tcp と _esp-cam._tcp を登録する
func (a *Advertiser) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	httpServer, err := a.register(HTTPService, nil)
	if err != nil {
		return fmt.Errorf("mDNS HTTPサービスの登録に失敗: %w", err)
	}

	cameraServer, err := a.register(CameraService, TXT(a.info))
	if err != nil {
		httpServer.Shutdown()
		return fmt.Errorf("mDNS カメラサービスの登録に失敗: %w", err)
	}

	a.http = httpServer
	a.camera = cameraServer
	a.logger.Info("mDNSを開始しました", "hostname", a.host, "instance", a.instance)
	return nil
}

// register はホスト名を指定してサービスを登録する。アドレスが無ければOSのホスト名を使う
func (a *Advertiser) register(service string, txt []string) (*zeroconf.Server, error) {
	if ips := hostIPs(); len(ips) > 0 {
		return zeroconf.RegisterProxy(a.instance, service, Domain, a.info.Port, a.host, ips, txt, nil)
	}
	return zeroconf.Register(a.instance, service, Domain, a.info.Port, txt, nil)
}

// UpdateFramesize は framesize のTXTレコードを更新する
func (a *Advertiser) UpdateFramesize(size int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.info.Framesize = size
	if a.camera != nil {
		a.camera.SetText(TXT(a.info))
	}
	a.logger.Debug("framesizeを更新しました", "framesize", size)
}

// Run は問い合わせを定期的に行う。ctx が終了するまで戻らない
func (a *Advertiser) Run(ctx context.Context) error {
	if a.browse == nil {
		resolver, err := zeroconf.NewResolver(nil)
		if err != nil {
			return fmt.Errorf("mDNSリゾルバの作成に失敗: %w", err)
		}
		a.browse = resolver.Browse
	}

	ticker := time.NewTicker(a.opts.QueryInterval)
	defer ticker.Stop()

	for {
		if err := a.query(ctx); err != nil {
			a.logger.Error("mDNSの問い合わせに失敗", "error", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// query は _esp-cam._tcp を問い合わせ、結果を置き換える
func (a *Advertiser) query(ctx context.Context) error {
	qctx, cancel := context.WithTimeout(ctx, a.opts.QueryTimeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry, a.opts.MaxResults)
	if err := a.browse(qctx, CameraService, Domain, entries); err != nil {
		return err
	}

	found := make([]Peer, 0, a.opts.MaxResults)
	seen := make(map[string]bool)
	// リゾルバは送信で待つため、上限に達しても読み続ける
collect:
	for {
		select {
		case <-qctx.Done():
			break collect
		case entry, ok := <-entries:
			if !ok {
				break collect
			}
			if entry == nil || seen[entry.Instance] || len(found) >= a.opts.MaxResults {
				continue
			}
			seen[entry.Instance] = true
			found = append(found, peerFromEntry(entry))
		}
	}
	go drainEntries(entries, drainTimeout)

	// 親コンテキストの終了時は結果を置き換えない
	if ctx.Err() != nil {
		return nil
	}

	a.peersMu.Lock()
	a.peers = found
	a.peersMu.Unlock()

	a.logger.Debug("mDNSの問い合わせが完了しました", "found", len(found))
	return nil
}

// drainEntries は終了処理中のリゾルバが送る残りを読み捨てる
func drainEntries(entries <-chan *zeroconf.ServiceEntry, timeout time.Duration) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case _, ok := <-entries:
			if !ok {
				return
			}
		case <-timer.C:
			return
		}
	}
}

// Peers は直近の問い合わせ結果のコピーを返す
func (a *Advertiser) Peers() []Peer {
	a.peersMu.RLock()
	defer a.peersMu.RUnlock()

	out := make([]Peer, len(a.peers))
	copy(out, a.peers)
	return out
}

// Shutdown は登録を解除する
func (a *Advertiser) Shutdown() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.camera != nil {
		a.camera.Shutdown()
		a.camera = nil
	}
	if a.http != nil {
		a.http.Shutdown()
		a.http = nil
	}
	a.logger.Info("mDNSを停止しました")
}

// peerFromEntry は問い合わせ結果を Peer に変換する
func peerFromEntry(e *zeroconf.ServiceEntry) Peer {
	txt := ParseTXT(e.Text)

	p := Peer{
		Instance: e.Instance,
		HostName: e.HostName,
		Port:     e.Port,
		Board:    txt["board"],
		Model:    txt["model"],
	}
	p.StreamPort, _ = strconv.Atoi(txt["stream_port"])
	p.Framesize, _ = strconv.Atoi(txt["framesize"])
	p.PixFormat, _ = strconv.Atoi(txt["pixformat"])

	for _, ip := range e.AddrIPv4 {
		p.Addrs = append(p.Addrs, ip.String())
	}
	for _, ip := range e.AddrIPv6 {
		p.Addrs = append(p.Addrs, ip.String())
	}
	return p
}
