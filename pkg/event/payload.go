// Package event はサービス間およびクライアントへ送るリアルタイムペイロードを定義する。
package event

import (
	"encoding/json"
	"fmt"
)

// Type はペイロードの種類を表す。
type Type string

const (
	// TypeNotification は新しい通知が作成されたことを表す。
	TypeNotification Type = "notification"
)

// Payload はゲートウェイ経由でWebSocketクライアントに届くJSONメッセージ。
type Payload struct {
	// Type はペイロードの種類。
	Type Type `json:"type"`
	// Message は通知本文。
	Message string `json:"message"`
}

// NewNotification は通知用のペイロードを生成する。
func NewNotification(message string) Payload {
	return Payload{Type: TypeNotification, Message: message}
}

// Encode はペイロードをJSONにシリアライズする。
func (p Payload) Encode() ([]byte, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("ペイロードのシリアライズに失敗: %w", err)
	}
	return b, nil
}

// Decode はJSONをペイロードにデシリアライズする。
func Decode(data []byte) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return Payload{}, fmt.Errorf("ペイロードのデシリアライズに失敗: %w", err)
	}
	return p, nil
}
