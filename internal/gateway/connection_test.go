package gateway

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSocket は書き込みを記録するテスト用ソケット。
type fakeSocket struct {
	mu       sync.Mutex
	writeErr error
	writes   [][]byte
	controls [][]byte
	closed   bool
	got      chan []byte
}

func newFakeSocket() *fakeSocket {
	return &fakeSocket{got: make(chan []byte, 8)}
}

func (f *fakeSocket) WriteMessage(_ int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	f.writes = append(f.writes, data)
	f.got <- data
	return nil
}

func (f *fakeSocket) WriteControl(_ int, data []byte, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.controls = append(f.controls, data)
	return nil
}

func (f *fakeSocket) SetWriteDeadline(time.Time) error { return nil }

func (f *fakeSocket) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeSocket) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeSocket) writeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.writes)
}

func TestConnection(t *testing.T) {
	t.Parallel()

	t.Run("Sendはテキストをそのまま書き込むこと", func(t *testing.T) {
		t.Parallel()

		sock := newFakeSocket()
		c := newConnection("u1", sock, time.Second)
		require.NoError(t, c.Send([]byte(`{"type":"notification"}`)))
		assert.Equal(t, 1, sock.writeCount())
		assert.NotEmpty(t, c.ID())
		assert.Equal(t, "u1", c.Recipient())
	})

	t.Run("書き込みエラーを返すこと", func(t *testing.T) {
		t.Parallel()

		sock := newFakeSocket()
		sock.writeErr = errors.New("broken pipe")
		err := newConnection("u1", sock, time.Second).Send([]byte("x"))
		assert.ErrorContains(t, err, "broken pipe")
	})

	t.Run("CloseWithはクローズフレームを1回だけ送り閉じた後のSendは失敗すること", func(t *testing.T) {
		t.Parallel()

		sock := newFakeSocket()
		c := newConnection("u1", sock, time.Second)
		require.NoError(t, c.CloseWith(websocket.CloseGoingAway, "server shutdown"))
		require.NoError(t, c.CloseWith(websocket.CloseGoingAway, "server shutdown"))
		require.NoError(t, c.Close())

		assert.True(t, sock.isClosed())
		require.Len(t, sock.controls, 1)
		assert.Equal(t, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown"), sock.controls[0])
		assert.Error(t, c.Send([]byte("late")))
		assert.Zero(t, sock.writeCount())
	})
}
