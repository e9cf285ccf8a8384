// Package stream は、MJPEGのmultipartストリーム配信を担当します。
//
// フレームソースから1枚ずつフレームを取得し、必要であればJPEGに変換して
// multipart/x-mixed-replace 形式のチャンクとして書き出します。
//
// 責務:
//   - フレームの取得と返却の対応付け（エラー時も含む）
//   - 変換バッファの解放
//   - 境界・パートヘッダ・本体の順での書き出し
//   - HTTP と WebSocket への出力
//   - 配信セッションの統計
//
// 仕様:
//   - 1接続につき1ゴルーチンでループを回す
//   - 取得・変換・書き込みの失敗はいずれも接続を終了させる
//   - 最初のチャンク前の失敗のみ HTTP 500 を返す
package stream
