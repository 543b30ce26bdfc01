// Package scheduler は時間駆動の通知ジョブを一定間隔で実行する。
//
// 期限切れタスクの走査と期限間近プロジェクトの走査の2つのジョブを持つ。
// 同じジョブの実行が重なることはなく、1回の実行の失敗やパニックは
// 次回以降の実行に影響しない。Redisを設定した場合は複数のスケジューラ間で
// ジョブごとに1間隔分のリースを取り、同じ間隔内に同じジョブを2回走らせない。
package scheduler
