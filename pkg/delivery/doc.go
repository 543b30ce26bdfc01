// Package delivery はリアルタイムゲートウェイへの通知配信クライアントを提供する。
//
// 配信は呼び出し元をブロックしないベストエフォート（高々1回）で行う。
// 固定数のワーカーgoroutineと容量付きキューで同時実行数を抑え、
// ゲートウェイが遅い・停止している場合でもgoroutineが増え続けないようにする。
// 失敗はログに記録するのみで、再送も呼び出し元への通知も行わない。
package delivery
