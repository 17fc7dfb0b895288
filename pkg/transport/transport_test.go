package transport

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseAddress(t *testing.T) {
	testCases := []struct {
		addr   string
		expect *Address
	}{
		{"/dev/ttyUSB0", &Address{Scheme: SchemeSerial, Target: "/dev/ttyUSB0"}},
		{"COM3", &Address{Scheme: SchemeSerial, Target: "COM3"}},
		{"serial:///dev/ttyACM1?baud=57600", &Address{Scheme: SchemeSerial, Target: "/dev/ttyACM1", BaudRate: 57600}},
		{"tcp://localhost:7700", &Address{Scheme: SchemeTCP, Target: "localhost:7700"}},
		{"ws://localhost:8080/link", &Address{Scheme: SchemeWebSocket, Target: "ws://localhost:8080/link"}},
		{"wss://example.com/link", &Address{Scheme: SchemeWSS, Target: "wss://example.com/link"}},
	}
	for _, tc := range testCases {
		t.Run(tc.addr, func(t *testing.T) {
			a, err := ParseAddress(tc.addr)
			require.NoError(t, err)
			require.Equal(t, tc.expect, a)
		})
	}

	for _, addr := range []string{"", "udp://localhost:1", "serial:///dev/ttyS0?baud=fast", "tcp://"} {
		_, err := ParseAddress(addr)
		require.Error(t, err, addr)
	}
}

func TestListenRequiresNetworkScheme(t *testing.T) {
	_, err := Listen("/dev/ttyUSB0")
	require.Error(t, err)
}

func echo(ctx context.Context, conn io.ReadWriteCloser) {
	io.Copy(conn, conn)
}

func testEcho(t *testing.T, listenAddr string) {
	l, err := Listen(listenAddr)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	doneCh := make(chan error, 1)
	go func() {
		doneCh <- l.Serve(ctx, ServeConnFunc(echo))
	}()

	conn, err := Open(l.URL(), Options{DialTimeout: time.Second})
	require.NoError(t, err)
	msg := []byte{0x02, 0x01, 0x01, 0x15}
	_, err = conn.Write(msg)
	require.NoError(t, err)
	buf := make([]byte, len(msg))
	_, err = io.ReadFull(conn, buf)
	require.NoError(t, err)
	require.Equal(t, msg, buf)
	conn.Close()

	cancel()
	require.Equal(t, context.Canceled, <-doneCh)
}

func TestTCP(t *testing.T) {
	testEcho(t, "tcp://127.0.0.1:0")
}

func TestWebSocket(t *testing.T) {
	testEcho(t, "ws://127.0.0.1:0/link")
}

func TestOpenFailureReturnsNil(t *testing.T) {
	l, err := Listen("ws://127.0.0.1:0/link")
	require.NoError(t, err)
	addr := l.URL()
	l.Close()
	conn, err := Open(addr, Options{DialTimeout: time.Second})
	require.Error(t, err)
	require.True(t, conn == nil, "%#v", conn)
}

func TestServeReturnsOnAcceptError(t *testing.T) {
	l, err := Listen("tcp://127.0.0.1:0")
	require.NoError(t, err)
	l.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.Error(t, l.Serve(ctx, ServeConnFunc(echo)))
	require.NoError(t, ctx.Err())
}
