// Package httpclient はサービス間のHTTP通信を行うクライアントを提供する。
//
// 通知サービスやスケジューラがリアルタイムゲートウェイの内部APIを
// 呼び出す際に使用する。タイムアウトと共有シークレット等の固定ヘッダーを
// クライアント単位で設定し、サービス間の通信パターンを統一する。
package httpclient
