package transport

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/NicolasHaas/groupchat/pkg/model"
)

func tcpPair(t *testing.T, opts Options) (*TCPConn, *TCPConn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			close(accepted)
			return
		}
		accepted <- c
	}()

	client, err := Dial(context.Background(), ln.Addr().String(), opts)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	sc, ok := <-accepted
	if !ok {
		t.Fatalf("accept failed")
	}
	server := NewTCPConn(sc, opts)
	t.Cleanup(func() {
		_ = client.Close()
		_ = server.Close()
	})
	return client, server
}

func TestTCPConnSendRecv(t *testing.T) {
	client, server := tcpPair(t, Options{})

	if err := client.Send("hello"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := client.Send("world"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	for _, want := range []string{"hello", "world"} {
		got, err := server.Recv()
		if err != nil {
			t.Fatalf("Recv: %v", err)
		}
		if got != want {
			t.Fatalf("Recv: want %q got %q", want, got)
		}
	}
}

func TestTCPConnConcurrentSendKeepsFrames(t *testing.T) {
	client, server := tcpPair(t, Options{})

	const senders, each = 8, 50
	var wg sync.WaitGroup
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < each; j++ {
				if err := server.Send(strings.Repeat("m", 100)); err != nil {
					t.Errorf("Send: %v", err)
					return
				}
			}
		}()
	}

	for i := 0; i < senders*each; i++ {
		got, err := client.Recv()
		if err != nil {
			t.Fatalf("Recv %d: %v", i, err)
		}
		if got != strings.Repeat("m", 100) {
			t.Fatalf("Recv %d: frame corrupted: %q", i, got)
		}
	}
	wg.Wait()
}

func TestTCPConnSendTooLarge(t *testing.T) {
	client, _ := tcpPair(t, Options{MaxMessageSize: 8})

	err := client.Send("123456789")
	if !errors.Is(err, model.ErrMessageTooLarge) {
		t.Fatalf("want ErrMessageTooLarge, got %v", err)
	}
}

func TestTCPConnPeerDisconnect(t *testing.T) {
	client, server := tcpPair(t, Options{})

	_ = client.Close()
	_, err := server.Recv()
	if !errors.Is(err, model.ErrPeerDisconnected) {
		t.Fatalf("want ErrPeerDisconnected, got %v", err)
	}
}

func TestTCPConnReadDeadline(t *testing.T) {
	_, server := tcpPair(t, Options{})

	if err := server.SetReadDeadline(time.Now().Add(20 * time.Millisecond)); err != nil {
		t.Fatalf("SetReadDeadline: %v", err)
	}
	_, err := server.Recv()
	if !IsTimeout(err) {
		t.Fatalf("want timeout, got %v", err)
	}
}

func TestWebSocketConn(t *testing.T) {
	upgrader := websocket.Upgrader{}
	received := make(chan string, 1)
	done := make(chan struct{})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer close(done)
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		conn := NewWebSocketConn(ws, Options{MaxMessageSize: 16})
		defer conn.Close()

		if err := conn.Send("Enter username: "); err != nil {
			t.Errorf("Send: %v", err)
			return
		}
		msg, err := conn.Recv()
		if err != nil {
			t.Errorf("Recv: %v", err)
			return
		}
		received <- msg
		_, err = conn.Recv()
		if !errors.Is(err, model.ErrMessageTooLarge) {
			t.Errorf("want ErrMessageTooLarge, got %v", err)
		}
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ws.Close()

	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if string(data) != "Enter username: " {
		t.Fatalf("prompt: got %q", data)
	}
	if err := ws.WriteMessage(websocket.TextMessage, []byte("alice")); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
	if err := ws.WriteMessage(websocket.TextMessage, []byte(strings.Repeat("x", 40))); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}

	select {
	case got := <-received:
		if got != "alice" {
			t.Fatalf("server received %q", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for server")
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("server handler did not finish")
	}
}
