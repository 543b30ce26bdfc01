// Package gateway はリアルタイムゲートウェイの内部実装を提供する。
//
// WebSocketのハンドシェイクでトークンから受信者識別子を取り出し、
// 受信者ごとのライブ接続をRegistryで管理する。内部APIの /publish で
// 受け取ったペイロードを、その時点で開いている受信者の全接続へ
// 並行に送る。配信はベストエフォートで、再送は行わない。
package gateway
