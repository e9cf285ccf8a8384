// Package camera カメラセンサーとフレームバッファを扱う
//
// # 責務
// - センサー調整項目の抽象化 (Sensor)
// - 有限個のフレームバッファの貸し出しと返却 (Pool, FrameSource)
// - RAWフレームのJPEG変換 (JPEGEncoder)
// - 調整項目の値検証 (Controls)
//
// # ドライバ
// - simulated: テストパターンを生成するソフトウェアセンサー
// - v4l2: github.com/blackjack/webcam 経由でV4L2デバイスのmmapバッファを使う (Linuxのみ)
//
// # 仕様
// - フレームは Acquire から Release までの間だけ呼び出し側が所有する
// - プールは内部で排他制御を行う。呼び出し側はロックを取らない
// - Release は全ての経路で必ず1回呼ぶこと
//
// # 前提要件
//   - videoグループへの参加: V4L2デバイスアクセス権限
//     sudo usermod -a -G video $USER
package camera
