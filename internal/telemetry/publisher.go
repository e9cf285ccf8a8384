// Package telemetry は、センサー状態をMQTTへ送信する。
package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

// 可用性トピックの値
const (
	Online  = "online"
	Offline = "offline"
)

// Options はMQTT接続の設定
type Options struct {
	Broker   string // 空なら送信しない
	Prefix   string // トピックの接頭辞
	ClientID string // 空なら自動生成
	Username string
	Password string
	Interval time.Duration // 定期送信の間隔
}

// StatusFunc は送信する状態を返す
type StatusFunc func() any

// Payload は状態トピックへ送るメッセージ
type Payload struct {
	Instance  string    `json:"instance"`
	Timestamp time.Time `json:"timestamp"`
	Status    any       `json:"status"`
}

// Stats は送信の統計
type Stats struct {
	Enabled   bool   `json:"enabled"`
	Connected bool   `json:"connected"`
	Published uint64 `json:"published"`
	Errors    uint64 `json:"errors"`
}

// Publisher は状態を retained メッセージとして送信する
type Publisher struct {
	opts     Options
	instance string
	status   StatusFunc
	logger   *slog.Logger

	client mqtt.Client
	notify chan struct{}

	mu        sync.RWMutex
	connected bool
	published uint64
	errors    uint64
}

// New は新しい Publisher を作成する。Broker が空なら何もしない
func New(opts Options, instance string, status StatusFunc, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.ClientID == "" {
		opts.ClientID = "espcam-" + uuid.NewString()
	}
	if opts.Interval <= 0 {
		opts.Interval = 30 * time.Second
	}

	return &Publisher{
		opts:     opts,
		instance: instance,
		status:   status,
		logger:   logger.With("component", "telemetry"),
		notify:   make(chan struct{}, 1),
	}
}

// StatusTopic は状態トピックを返す
func StatusTopic(prefix, instance string) string {
	return fmt.Sprintf("%s/%s/status", prefix, instance)
}

// AvailabilityTopic は可用性トピックを返す
func AvailabilityTopic(prefix, instance string) string {
	return fmt.Sprintf("%s/%s/availability", prefix, instance)
}

// Enabled はブローカーが設定されているか返す
func (p *Publisher) Enabled() bool {
	return p.opts.Broker != ""
}

// Notify は状態の即時送信を要求する。送信待ちがあれば何もしない
func (p *Publisher) Notify() {
	if !p.Enabled() {
		return
	}
	select {
	case p.notify <- struct{}{}:
	default:
	}
}

// Run は接続して定期送信を行う。ctx が終了するまで戻らない
func (p *Publisher) Run(ctx context.Context) error {
	if !p.Enabled() {
		<-ctx.Done()
		return nil
	}

	p.client = mqtt.NewClient(p.clientOptions())
	p.logger.Info("MQTTブローカーに接続しています", "broker", p.opts.Broker)

	// 接続できるまで再試行されるため待たない
	p.client.Connect()
	defer p.disconnect()

	ticker := time.NewTicker(p.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case <-p.notify:
		}
		if err := p.Publish(); err != nil {
			p.logger.Warn("状態の送信に失敗", "error", err)
		}
	}
}

// clientOptions は接続設定を作る
func (p *Publisher) clientOptions() *mqtt.ClientOptions {
	availability := AvailabilityTopic(p.opts.Prefix, p.instance)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(p.opts.Broker)
	opts.SetClientID(p.opts.ClientID)
	opts.SetUsername(p.opts.Username)
	opts.SetPassword(p.opts.Password)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetWill(availability, Offline, 1, true)

	opts.OnConnect = func(c mqtt.Client) {
		p.setConnected(true)
		p.logger.Info("MQTTに接続しました", "broker", p.opts.Broker, "client_id", p.opts.ClientID)

		c.Publish(availability, 1, true, Online)
		p.Notify()
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		p.setConnected(false)
		p.logger.Warn("MQTT接続が切れました。再接続します", "error", err)
	}
	return opts
}

// Publish は現在の状態を送信する
func (p *Publisher) Publish() error {
	if p.client == nil || !p.isConnected() {
		p.countError()
		return fmt.Errorf("MQTTに接続されていません")
	}

	payload, err := p.payload(time.Now())
	if err != nil {
		p.countError()
		return err
	}

	token := p.client.Publish(StatusTopic(p.opts.Prefix, p.instance), 1, true, payload)
	if !token.WaitTimeout(2 * time.Second) {
		p.countError()
		return fmt.Errorf("送信がタイムアウトしました")
	}
	if err := token.Error(); err != nil {
		p.countError()
		return fmt.Errorf("送信に失敗: %w", err)
	}

	p.mu.Lock()
	p.published++
	p.mu.Unlock()

	p.logger.Debug("状態を送信しました", "size", len(payload))
	return nil
}

// payload は状態メッセージを作る
func (p *Publisher) payload(now time.Time) ([]byte, error) {
	var status any
	if p.status != nil {
		status = p.status()
	}

	data, err := json.Marshal(Payload{
		Instance:  p.instance,
		Timestamp: now,
		Status:    status,
	})
	if err != nil {
		return nil, fmt.Errorf("状態のJSON化に失敗: %w", err)
	}
	return data, nil
}

// disconnect はオフラインを通知して切断する
func (p *Publisher) disconnect() {
	if p.client == nil {
		return
	}
	if p.client.IsConnected() {
		token := p.client.Publish(AvailabilityTopic(p.opts.Prefix, p.instance), 1, true, Offline)
		token.WaitTimeout(time.Second)
	}
	p.client.Disconnect(250)
	p.setConnected(false)
	p.logger.Info("MQTTから切断しました")
}

// Stats は送信の統計を返す
func (p *Publisher) Stats() Stats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return Stats{
		Enabled:   p.Enabled(),
		Connected: p.connected,
		Published: p.published,
		Errors:    p.errors,
	}
}

func (p *Publisher) setConnected(v bool) {
	p.mu.Lock()
	p.connected = v
	p.mu.Unlock()
}

func (p *Publisher) isConnected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.connected
}

func (p *Publisher) countError() {
	p.mu.Lock()
	p.errors++
	p.mu.Unlock()
}
