// Package discovery は、mDNSによるサービス公開と他のカメラの探索を担当します。
//
// 責務:
//   - _http._tcp と _esp-cam._tcp の登録
//   - TXTレコード (board, model, stream_port, framesize, pixformat) の管理
//   - 定期的な _esp-cam._tcp の問い合わせと結果の保持
//
// 仕様:
//   - mDNSの実装は github.com/grandcat/zeroconf を使用
//   - インスタンス名は BOARD-MODEL-XXXXXX (MACアドレス下位3バイト)
//   - ホスト名はインスタンス名の小文字
package discovery
