package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/Zereker/cattlechat/logging"
)

// createTestTCPPair creates a connected pair of TCP connections for testing
func createTestTCPPair(t *testing.T) (*net.TCPConn, *net.TCPConn) {
	t.Helper()

	listener, err := net.ListenTCP("tcp", &net.TCPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0})
	if err != nil {
		t.Fatalf("failed to create listener: %v", err)
	}
	defer listener.Close()

	clientChan := make(chan *net.TCPConn, 1)
	errChan := make(chan error, 1)
	go func() {
		conn, err := net.DialTCP("tcp", nil, listener.Addr().(*net.TCPAddr))
		if err != nil {
			errChan <- err
			return
		}
		clientChan <- conn
	}()

	serverConn, err := listener.AcceptTCP()
	if err != nil {
		t.Fatalf("failed to accept: %v", err)
	}

	select {
	case clientConn := <-clientChan:
		return serverConn, clientConn
	case err := <-errChan:
		serverConn.Close()
		t.Fatalf("client dial failed: %v", err)
		return nil, nil
	case <-time.After(5 * time.Second):
		serverConn.Close()
		t.Fatal("timeout waiting for client connection")
		return nil, nil
	}
}

func discardReceive([]byte) error { return nil }

func TestNewConn(t *testing.T) {
	serverConn, clientConn := createTestTCPPair(t)
	defer serverConn.Close()
	defer clientConn.Close()

	conn, err := NewConn(serverConn, OnReceiveOption(discardReceive))
	if err != nil {
		t.Fatalf("NewConn failed: %v", err)
	}

	if conn.rawConn != serverConn {
		t.Error("rawConn not set correctly")
	}
}

func TestNewConn_MissingOnReceive(t *testing.T) {
	serverConn, clientConn := createTestTCPPair(t)
	defer serverConn.Close()
	defer clientConn.Close()

	_, err := NewConn(serverConn)
	if err != ErrInvalidOnReceive {
		t.Errorf("expected ErrInvalidOnReceive, got %v", err)
	}
}

func TestNewConn_WithAllOptions(t *testing.T) {
	serverConn, clientConn := createTestTCPPair(t)
	defer serverConn.Close()
	defer clientConn.Close()

	conn, err := NewConn(serverConn,
		OnReceiveOption(discardReceive),
		OnErrorOption(func(error) ErrorAction { return Continue }),
		QueueLimitOption(4096),
		ReadSizeOption(512),
		ReadTimeoutOption(time.Minute),
		WriteTimeoutOption(time.Second),
		LoggerOption(logging.Discard()),
	)
	if err != nil {
		t.Fatalf("NewConn failed: %v", err)
	}

	if conn.opts.queueLimit != 4096 {
		t.Errorf("queueLimit = %d, want 4096", conn.opts.queueLimit)
	}
	if conn.opts.readSize != 512 {
		t.Errorf("readSize = %d, want 512", conn.opts.readSize)
	}
	if conn.opts.readTimeout != time.Minute {
		t.Errorf("readTimeout = %v, want %v", conn.opts.readTimeout, time.Minute)
	}
	if conn.opts.writeTimeout != time.Second {
		t.Errorf("writeTimeout = %v, want %v", conn.opts.writeTimeout, time.Second)
	}
}

func TestCheckOptions_DefaultValues(t *testing.T) {
	opts := &options{onReceive: discardReceive}

	if err := checkOptions(opts); err != nil {
		t.Fatalf("checkOptions failed: %v", err)
	}

	if opts.queueLimit != defaultQueueLimit {
		t.Errorf("queueLimit = %d, want %d", opts.queueLimit, defaultQueueLimit)
	}
	if opts.readSize != defaultReadSize {
		t.Errorf("readSize = %d, want %d", opts.readSize, defaultReadSize)
	}
	if opts.onError == nil || opts.onError(errors.New("x")) != Disconnect {
		t.Error("default onError should disconnect")
	}
	if opts.logger == nil {
		t.Error("logger should default")
	}
}

func TestConn_Write_QueuesBurst(t *testing.T) {
	serverConn, clientConn := createTestTCPPair(t)
	defer serverConn.Close()
	defer clientConn.Close()

	conn, err := NewConn(serverConn, OnReceiveOption(discardReceive))
	if err != nil {
		t.Fatalf("NewConn failed: %v", err)
	}

	// Nothing writes yet, so every frame stays queued.
	const frames = 500
	for i := 0; i < frames; i++ {
		if err := conn.Write(Bytes("frame")); err != nil {
			t.Fatalf("Write %d failed: %v", i, err)
		}
	}
	if got := conn.Queued(); got != frames*5 {
		t.Fatalf("Queued = %d, want %d", got, frames*5)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = conn.Run(ctx) }()

	_ = clientConn.SetReadDeadline(time.Now().Add(5 * time.Second))
	buf := make([]byte, frames*5)
	if _, err := io.ReadFull(clientConn, buf); err != nil {
		t.Fatalf("client read failed: %v", err)
	}
	if string(buf) != strings.Repeat("frame", frames) {
		t.Error("frames arrived out of order or corrupted")
	}
}

func TestConn_Write_OverflowDisconnects(t *testing.T) {
	serverConn, clientConn := createTestTCPPair(t)
	defer serverConn.Close()
	defer clientConn.Close()

	conn, err := NewConn(serverConn,
		OnReceiveOption(discardReceive),
		QueueLimitOption(8),
	)
	if err != nil {
		t.Fatalf("NewConn failed: %v", err)
	}

	if err := conn.Write(Bytes("hello")); err != nil {
		t.Fatalf("first Write failed: %v", err)
	}

	// Nothing drains the queue yet.
	if err := conn.Write(Bytes("hello")); err != ErrBufferFull {
		t.Errorf("expected ErrBufferFull, got %v", err)
	}
	if !conn.IsClosed() {
		t.Error("overflow should close the connection")
	}
	if err := conn.Run(context.Background()); err != ErrBufferFull {
		t.Errorf("Run = %v, want ErrBufferFull", err)
	}
}

func TestConn_Write_OversizedFrameIntoEmptyQueue(t *testing.T) {
	serverConn, clientConn := createTestTCPPair(t)
	defer serverConn.Close()
	defer clientConn.Close()

	conn, err := NewConn(serverConn,
		OnReceiveOption(discardReceive),
		QueueLimitOption(2),
	)
	if err != nil {
		t.Fatalf("NewConn failed: %v", err)
	}

	if err := conn.Write(Bytes("larger than the limit")); err != nil {
		t.Errorf("an empty queue should take any frame, got %v", err)
	}
}

func TestConn_WriteBlocking(t *testing.T) {
	serverConn, clientConn := createTestTCPPair(t)
	defer serverConn.Close()
	defer clientConn.Close()

	conn, err := NewConn(serverConn,
		OnReceiveOption(discardReceive),
		QueueLimitOption(8),
	)
	if err != nil {
		t.Fatalf("NewConn failed: %v", err)
	}

	msg := Bytes("hello")
	if err := conn.Write(msg); err != nil {
		t.Fatalf("first Write failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := conn.WriteBlocking(ctx, msg); err != context.Canceled {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if conn.IsClosed() {
		t.Error("WriteBlocking must not disconnect on a full queue")
	}

	// Once the writer runs the queue drains and the frame goes through.
	runCtx, stop := context.WithCancel(context.Background())
	defer stop()
	go func() { _ = conn.Run(runCtx) }()

	waitCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	if err := conn.WriteBlocking(waitCtx, msg); err != nil {
		t.Fatalf("WriteBlocking failed: %v", err)
	}

	_ = clientConn.SetReadDeadline(time.Now().Add(5 * time.Second))
	buf := make([]byte, 10)
	if _, err := io.ReadFull(clientConn, buf); err != nil {
		t.Fatalf("client read failed: %v", err)
	}
	if string(buf) != "hellohello" {
		t.Errorf("client got %q, want hellohello", buf)
	}
}

func TestConn_Write_Closed(t *testing.T) {
	serverConn, clientConn := createTestTCPPair(t)
	defer clientConn.Close()

	conn, err := NewConn(serverConn, OnReceiveOption(discardReceive))
	if err != nil {
		t.Fatalf("NewConn failed: %v", err)
	}

	if err := conn.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !conn.IsClosed() {
		t.Error("IsClosed should be true")
	}
	if err := conn.Close(); err != nil {
		t.Errorf("second Close should be a no-op, got %v", err)
	}
	if err := conn.Write(Bytes("x")); err != ErrConnectionClosed {
		t.Errorf("expected ErrConnectionClosed, got %v", err)
	}
	if err := conn.WriteBlocking(context.Background(), Bytes("x")); err != ErrConnectionClosed {
		t.Errorf("expected ErrConnectionClosed, got %v", err)
	}
}

func TestConn_Run_ContextCanceled(t *testing.T) {
	serverConn, clientConn := createTestTCPPair(t)
	defer serverConn.Close()
	defer clientConn.Close()

	conn, err := NewConn(serverConn, OnReceiveOption(discardReceive))
	if err != nil {
		t.Fatalf("NewConn failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- conn.Run(ctx)
	}()

	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for Run to complete")
	}

	if !conn.IsClosed() {
		t.Error("connection should be closed after Run")
	}
}

func TestConn_Run_ReadWrite(t *testing.T) {
	serverConn, clientConn := createTestTCPPair(t)

	received := make(chan []byte, 16)
	conn, err := NewConn(serverConn,
		OnReceiveOption(func(chunk []byte) error {
			received <- chunk
			return nil
		}),
		ReadTimeoutOption(5*time.Second),
	)
	if err != nil {
		t.Fatalf("NewConn failed: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- conn.Run(context.Background())
	}()

	testData := "hello world"
	if _, err := clientConn.Write([]byte(testData)); err != nil {
		t.Fatalf("client write failed: %v", err)
	}

	// Chunks may be split arbitrarily by the stream.
	var got []byte
	for len(got) < len(testData) {
		select {
		case chunk := <-received:
			got = append(got, chunk...)
		case <-time.After(5 * time.Second):
			t.Fatal("timeout waiting for data")
		}
	}
	if string(got) != testData {
		t.Errorf("received = %q, want %q", got, testData)
	}

	if err := conn.Write(Bytes("pong")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	_ = clientConn.SetReadDeadline(time.Now().Add(5 * time.Second))
	buf := make([]byte, 4)
	if _, err := io.ReadFull(clientConn, buf); err != nil {
		t.Fatalf("client read failed: %v", err)
	}
	if string(buf) != "pong" {
		t.Errorf("client got %q, want pong", buf)
	}

	// Hanging up ends Run with io.EOF.
	clientConn.Close()

	select {
	case err := <-done:
		if !errors.Is(err, io.EOF) {
			t.Errorf("expected io.EOF, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for Run to complete")
	}
}

func TestConn_Run_OnReceiveError(t *testing.T) {
	serverConn, clientConn := createTestTCPPair(t)
	defer clientConn.Close()

	stop := errors.New("stop")
	conn, err := NewConn(serverConn, OnReceiveOption(func([]byte) error { return stop }))
	if err != nil {
		t.Fatalf("NewConn failed: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- conn.Run(context.Background())
	}()

	if _, err := clientConn.Write([]byte("x")); err != nil {
		t.Fatalf("client write failed: %v", err)
	}

	select {
	case err := <-done:
		if err != stop {
			t.Errorf("expected callback error, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for Run to complete")
	}
}

func TestConn_Close_UnblocksRun(t *testing.T) {
	serverConn, clientConn := createTestTCPPair(t)
	defer clientConn.Close()

	conn, err := NewConn(serverConn, OnReceiveOption(discardReceive))
	if err != nil {
		t.Fatalf("NewConn failed: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- conn.Run(context.Background())
	}()

	time.Sleep(20 * time.Millisecond)
	conn.Close()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not stop Run")
	}
}

func TestConn_write_ErrorWithOnErrorContinue(t *testing.T) {
	serverConn, clientConn := createTestTCPPair(t)
	clientConn.Close()

	calls := 0
	conn, err := NewConn(serverConn,
		OnReceiveOption(discardReceive),
		OnErrorOption(func(error) ErrorAction {
			calls++
			return Continue
		}),
	)
	if err != nil {
		t.Fatalf("NewConn failed: %v", err)
	}

	serverConn.Close()
	if err := conn.write([][]byte{[]byte("x")}); err != nil {
		t.Errorf("write should suppress the error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("onError called %d times, want 1", calls)
	}
}

func TestConn_write_ErrorWithOnErrorDisconnect(t *testing.T) {
	serverConn, clientConn := createTestTCPPair(t)
	defer clientConn.Close()

	conn, err := NewConn(serverConn, OnReceiveOption(discardReceive))
	if err != nil {
		t.Fatalf("NewConn failed: %v", err)
	}

	serverConn.Close()
	if err := conn.write([][]byte{[]byte("x")}); err == nil {
		t.Error("write on a closed socket should fail")
	}
}

func TestDial(t *testing.T) {
	listener, err := net.ListenTCP("tcp", &net.TCPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0})
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	defer listener.Close()

	go func() {
		c, err := listener.Accept()
		if err == nil {
			c.Close()
		}
	}()

	conn, err := Dial(context.Background(), listener.Addr().String(), OnReceiveOption(discardReceive))
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	if conn.Addr().String() != listener.Addr().String() {
		t.Errorf("Addr = %v, want %v", conn.Addr(), listener.Addr())
	}

	if _, err := Dial(context.Background(), "127.0.0.1:1", OnReceiveOption(discardReceive)); err == nil {
		t.Error("Dial to a closed port should fail")
	}
}
