// Package notification は通知サービスの内部実装を提供する。
//
// 通知レコードを保存してからゲートウェイへ非同期配信するNotifyと、
// タスク割り当てやコメント、期限間近などの業務イベントごとに
// 受信者と本文を決めるラッパーを持つ。受信者向けの一覧・既読APIと、
// 別プロセスのプロデューサー向け内部APIもここで提供する。
package notification
