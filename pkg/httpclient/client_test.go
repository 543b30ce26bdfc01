package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testRequest はテストサーバーが受け取ったリクエスト情報を保持する構造体。
type testRequest struct {
	// Method はHTTPメソッド。
	Method string
	// Path はリクエストパス。
	Path string
	// Query はクエリ文字列。
	Query string
	// Body はリクエストボディ。
	Body []byte
	// Headers はリクエストヘッダー。
	Headers http.Header
}

// testPayload はテスト用のリクエスト/レスポンスペイロード。
type testPayload struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

// newRecordingServer は受信内容をreceivedに記録してpayloadを返すテストサーバーを起動する。
func newRecordingServer(t *testing.T, received *testRequest, status int) *httptest.Server {
	t.Helper()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received.Method = r.Method
		received.Path = r.URL.Path
		received.Query = r.URL.RawQuery
		received.Body, _ = io.ReadAll(r.Body)
		received.Headers = r.Header

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(testPayload{Name: "response", Value: status})
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("デフォルトのタイムアウトが30秒であること", func(t *testing.T) {
		t.Parallel()

		client := New("http://localhost:8080")
		assert.Equal(t, "http://localhost:8080", client.baseURL)
		assert.Equal(t, 30*time.Second, client.httpClient.Timeout)
	})

	t.Run("WithTimeoutでタイムアウトを変更できること", func(t *testing.T) {
		t.Parallel()

		client := New("http://localhost:8080", WithTimeout(5*time.Second))
		assert.Equal(t, 5*time.Second, client.httpClient.Timeout)
	})
}

func TestPostJSON(t *testing.T) {
	t.Parallel()

	t.Run("正常にPOSTリクエストを送信してレスポンスを取得できること", func(t *testing.T) {
		t.Parallel()

		var received testRequest
		ts := newRecordingServer(t, &received, http.StatusOK)

		client := New(ts.URL)
		var result testPayload
		err := client.PostJSON(context.Background(), "/publish?uid=auth0%7Cu1", testPayload{Name: "request", Value: 100}, &result)
		require.NoError(t, err)

		assert.Equal(t, http.MethodPost, received.Method)
		assert.Equal(t, "/publish", received.Path)
		assert.Equal(t, "uid=auth0%7Cu1", received.Query)
		assert.JSONEq(t, `{"name":"request","value":100}`, string(received.Body))
		assert.Equal(t, "application/json", received.Headers.Get("Content-Type"))
		assert.Equal(t, testPayload{Name: "response", Value: 200}, result)
	})

	t.Run("WithHeaderのヘッダーが全リクエストに付与されること", func(t *testing.T) {
		t.Parallel()

		var received testRequest
		ts := newRecordingServer(t, &received, http.StatusAccepted)

		client := New(ts.URL, WithHeader("X-Internal-Secret", "s3cret"))
		require.NoError(t, client.PostJSON(context.Background(), "/publish", testPayload{}, nil))
		assert.Equal(t, "s3cret", received.Headers.Get("X-Internal-Secret"))
	})

	t.Run("json.RawMessageはそのまま送信されること", func(t *testing.T) {
		t.Parallel()

		var received testRequest
		ts := newRecordingServer(t, &received, http.StatusOK)

		client := New(ts.URL)
		raw := json.RawMessage(`{"type":"notification","message":"hi"}`)
		require.NoError(t, client.PostJSON(context.Background(), "/publish", raw, nil))
		assert.Equal(t, string(raw), string(received.Body))
	})

	t.Run("2xx以外はStatusErrorになること", func(t *testing.T) {
		t.Parallel()

		for _, status := range []int{http.StatusBadRequest, http.StatusForbidden, http.StatusInternalServerError} {
			var received testRequest
			ts := newRecordingServer(t, &received, status)

			err := New(ts.URL).PostJSON(context.Background(), "/publish", testPayload{}, nil)
			var statusErr *StatusError
			require.True(t, errors.As(err, &statusErr), "status=%d", status)
			assert.Equal(t, status, statusErr.StatusCode)
		}
	})

	t.Run("キャンセルされたコンテキストでエラーが返ること", func(t *testing.T) {
		t.Parallel()

		var received testRequest
		ts := newRecordingServer(t, &received, http.StatusOK)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := New(ts.URL).PostJSON(ctx, "/publish", testPayload{}, nil)
		assert.Error(t, err)
	})

	t.Run("タイムアウトを超えた応答はエラーになること", func(t *testing.T) {
		t.Parallel()

		release := make(chan struct{})
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
		t.Cleanup(func() {
			close(release)
			ts.Close()
		})

		err := New(ts.URL, WithTimeout(50*time.Millisecond)).PostJSON(context.Background(), "/slow", testPayload{}, nil)
		assert.Error(t, err)
	})

	t.Run("シリアライズ不可能なボディでエラーが返ること", func(t *testing.T) {
		t.Parallel()

		err := New("http://127.0.0.1:1").PostJSON(context.Background(), "/publish", make(chan int), nil)
		assert.Error(t, err)
	})
}

func TestGetJSON(t *testing.T) {
	t.Parallel()

	t.Run("正常にGETリクエストを送信してレスポンスを取得できること", func(t *testing.T) {
		t.Parallel()

		var received testRequest
		ts := newRecordingServer(t, &received, http.StatusOK)

		var result testPayload
		require.NoError(t, New(ts.URL).GetJSON(context.Background(), "/health", &result))
		assert.Equal(t, http.MethodGet, received.Method)
		assert.Empty(t, received.Body)
		assert.Equal(t, "response", result.Name)
	})

	t.Run("不正なJSONレスポンスでエラーが返ること", func(t *testing.T) {
		t.Parallel()

		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte(`{invalid json}`))
		}))
		t.Cleanup(ts.Close)

		var result testPayload
		assert.Error(t, New(ts.URL).GetJSON(context.Background(), "/health", &result))
	})

	t.Run("接続できないサーバーに対してエラーが返ること", func(t *testing.T) {
		t.Parallel()

		var result testPayload
		assert.Error(t, New("http://127.0.0.1:1").GetJSON(context.Background(), "/health", &result))
	})
}
