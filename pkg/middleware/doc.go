// Package middleware はGinベースのHTTP APIで使用する共通ミドルウェアを提供する。
//
// JWTからの受信者識別子の取り出し、サービス間内部APIの共有シークレット検証、
// パニックリカバリ、CORS設定など、全サービスで共通して使用するミドルウェアを含む。
package middleware
