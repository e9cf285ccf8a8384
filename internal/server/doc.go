// Package server は、制御用とストリーム用の2つのHTTPサーバーを管理します。
//
// 制御用サーバーは設定ポートで、センサーの状態取得・設定変更・静止画取得・
// 静的ファイルの配信を行います。ストリーム用サーバーは設定ポート+1で、
// MJPEGとWebSocketによる連続配信を行います。
//
// 責務:
//   - HTTPサーバーの起動と管理
//   - APIリクエストの検証と処理
//   - 静的ファイル（HTML/CSS/JS）の配信
//   - ストリーミング接続の受付
//   - カメラ・mDNS・MQTTの起動と停止
//
// 仕様:
//   - ルーティングは gin を使用
//   - 設定変更の入力は埋め込みのOpenAPI定義で検証
//   - WebSocketは gorilla/websocket を使用
//   - グレースフルシャットダウンに対応
package server
