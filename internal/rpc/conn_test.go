package rpc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"
)

// mockServer sits on the far end of a Conn's pipes, reading client
// frames and writing replies.
type mockServer struct {
	t      *testing.T
	reader *bufio.Reader
	writer io.Writer
	wmu    sync.Mutex
}

func newTestConn(t *testing.T, opts ...Option) (*Conn, *mockServer) {
	t.Helper()
	clientIn, serverOut := io.Pipe()
	serverIn, clientOut := io.Pipe()

	conn := NewConn(clientIn, clientOut, append(opts, WithCloser(clientOut))...)
	t.Cleanup(func() {
		_ = conn.Close()
		_ = serverOut.Close()
		_ = serverIn.Close()
	})

	return conn, &mockServer{
		t:      t,
		reader: bufio.NewReader(serverIn),
		writer: serverOut,
	}
}

func (s *mockServer) read() map[string]any {
	payload, err := ReadFrame(s.reader)
	if err != nil {
		s.t.Errorf("mock server read: %v", err)
		return nil
	}
	var msg map[string]any
	if err := json.Unmarshal(payload, &msg); err != nil {
		s.t.Errorf("mock server decode: %v", err)
		return nil
	}
	return msg
}

func (s *mockServer) send(payload string) {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	if err := WriteFrame(s.writer, []byte(payload)); err != nil {
		s.t.Errorf("mock server write: %v", err)
	}
}

func TestCallCorrelatesOutOfOrderResponses(t *testing.T) {
	conn, server := newTestConn(t)

	const n = 3
	done := make(chan struct{})
	go func() {
		defer close(done)
		type pending struct {
			id     any
			method string
		}
		var reqs []pending
		for i := 0; i < n; i++ {
			msg := server.read()
			if msg == nil {
				return
			}
			reqs = append(reqs, pending{id: msg["id"], method: msg["method"].(string)})
		}
		// Reply in reverse order of arrival.
		for i := len(reqs) - 1; i >= 0; i-- {
			server.send(fmt.Sprintf(
				`{"jsonrpc":"2.0","id":%v,"result":{"echo":%q}}`,
				reqs[i].id, reqs[i].method))
		}
	}()

	var wg sync.WaitGroup
	errCh := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			method := fmt.Sprintf("method/%d", i)
			var result struct {
				Echo string `json:"echo"`
			}
			if err := conn.Call(context.Background(), method, nil, &result); err != nil {
				errCh <- err
				return
			}
			if result.Echo != method {
				errCh <- fmt.Errorf("call %s got response for %s", method, result.Echo)
			}
		}(i)
	}
	wg.Wait()
	<-done
	close(errCh)
	for err := range errCh {
		t.Errorf("Call() error = %v", err)
	}
}

func TestCallServerError(t *testing.T) {
	conn, server := newTestConn(t)

	go func() {
		msg := server.read()
		server.send(fmt.Sprintf(
			`{"jsonrpc":"2.0","id":%v,"error":{"code":1000,"message":"not signed in"}}`,
			msg["id"]))
	}()

	err := conn.Call(context.Background(), "getCompletions", nil, nil)
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		t.Fatalf("Call() error = %v, want *RPCError", err)
	}
	if rpcErr.Code != CodeNotSignedIn || rpcErr.Message != "not signed in" {
		t.Errorf("RPCError = %+v", rpcErr)
	}
}

func TestCloseFailsAllPending(t *testing.T) {
	conn, server := newTestConn(t)

	const n = 4
	started := make(chan struct{}, n)
	go func() {
		for i := 0; i < n; i++ {
			server.read()
			started <- struct{}{}
		}
	}()

	errCh := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			errCh <- conn.Call(context.Background(), "checkStatus", nil, nil)
		}()
	}
	for i := 0; i < n; i++ {
		<-started
	}

	if err := conn.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	for i := 0; i < n; i++ {
		select {
		case err := <-errCh:
			if !errors.Is(err, ErrServerUnavailable) {
				t.Errorf("pending Call() error = %v, want ErrServerUnavailable", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("pending Call() did not resolve after Close()")
		}
	}
}

func TestCallContextCancel(t *testing.T) {
	conn, server := newTestConn(t)

	read := make(chan struct{})
	go func() {
		server.read()
		close(read)
	}()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-read
		cancel()
	}()

	err := conn.Call(ctx, "getCompletions", nil, nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Call() error = %v, want context.Canceled", err)
	}
}

func TestNotificationsDeliveredInOrder(t *testing.T) {
	var mu sync.Mutex
	var got []string
	received := make(chan struct{}, 16)

	conn, server := newTestConn(t, WithNotificationHandler(func(n *Notification) {
		mu.Lock()
		got = append(got, n.Method)
		mu.Unlock()
		received <- struct{}{}
	}))
	_ = conn

	methods := []string{"statusNotification", "LogMessage", "featureFlagsNotification"}
	for _, m := range methods {
		server.send(fmt.Sprintf(`{"jsonrpc":"2.0","method":%q,"params":{}}`, m))
	}

	for range methods {
		select {
		case <-received:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for notification")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	for i, m := range methods {
		if got[i] != m {
			t.Errorf("notification %d = %s, want %s", i, got[i], m)
		}
	}
}

func TestServerRequestWithoutHandlerGetsMethodNotFound(t *testing.T) {
	_, server := newTestConn(t)

	server.send(`{"jsonrpc":"2.0","id":"srv-1","method":"client/unknown","params":{}}`)

	reply := server.read()
	if reply == nil {
		t.Fatal("no reply to server request")
	}
	if reply["id"] != "srv-1" {
		t.Errorf("reply id = %v, want srv-1", reply["id"])
	}
	errObj, ok := reply["error"].(map[string]any)
	if !ok {
		t.Fatalf("reply missing error object: %v", reply)
	}
	if int(errObj["code"].(float64)) != CodeMethodNotFound {
		t.Errorf("error code = %v, want %d", errObj["code"], CodeMethodNotFound)
	}
}

func TestServerRequestHandler(t *testing.T) {
	_, server := newTestConn(t, WithRequestHandler(func(req *Request) (any, *RPCError) {
		return map[string]string{"ok": req.Method}, nil
	}))

	server.send(`{"jsonrpc":"2.0","id":7,"method":"client/ping"}`)

	reply := server.read()
	result, ok := reply["result"].(map[string]any)
	if !ok {
		t.Fatalf("reply missing result: %v", reply)
	}
	if result["ok"] != "client/ping" {
		t.Errorf("result = %v", result)
	}
}

func TestUnknownResponseIDDropped(t *testing.T) {
	conn, server := newTestConn(t)

	server.send(`{"jsonrpc":"2.0","id":999,"result":{}}`)

	go func() {
		msg := server.read()
		server.send(fmt.Sprintf(`{"jsonrpc":"2.0","id":%v,"result":{"version":"1.0"}}`, msg["id"]))
	}()

	var result struct {
		Version string `json:"version"`
	}
	if err := conn.Call(context.Background(), "getVersion", nil, &result); err != nil {
		t.Fatalf("Call() after stray response error = %v", err)
	}
	if result.Version != "1.0" {
		t.Errorf("Version = %q, want 1.0", result.Version)
	}
}

func TestCancelSendsCancelRequestNotification(t *testing.T) {
	conn, server := newTestConn(t)

	errCh := make(chan error, 1)
	go func() { errCh <- conn.Cancel(IntID(12)) }()

	msg := server.read()
	if err := <-errCh; err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if msg["method"] != "$/cancelRequest" {
		t.Errorf("method = %v, want $/cancelRequest", msg["method"])
	}
	params := msg["params"].(map[string]any)
	if params["id"] != float64(12) {
		t.Errorf("params.id = %v, want 12", params["id"])
	}
}
