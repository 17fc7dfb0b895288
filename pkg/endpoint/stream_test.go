package endpoint

import (
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/servolink/pkg/link"
)

// testStream is one end of a buffered in-memory byte stream.
type testStream struct {
	in      <-chan []byte
	out     chan<- []byte
	pending []byte
	once    sync.Once
}

func newTestStreams() (*testStream, *testStream) {
	ab, ba := make(chan []byte, 256), make(chan []byte, 256)
	return &testStream{in: ba, out: ab}, &testStream{in: ab, out: ba}
}

func (s *testStream) Read(p []byte) (int, error) {
	if len(s.pending) == 0 {
		b, ok := <-s.in
		if !ok {
			return 0, io.EOF
		}
		s.pending = b
	}
	n := copy(p, s.pending)
	s.pending = s.pending[n:]
	return n, nil
}

func (s *testStream) Write(p []byte) (int, error) {
	s.out <- append([]byte(nil), p...)
	return len(p), nil
}

func (s *testStream) Close() error {
	s.once.Do(func() { close(s.out) })
	return nil
}

// inject writes raw bytes as if they came from the peer.
func (s *testStream) inject(p ...[]byte) {
	for _, b := range p {
		s.Write(b)
	}
}

// expectFrame reads the next frame written by the peer, one Write per frame.
func (s *testStream) expectFrame(t *testing.T) *link.Frame {
	select {
	case b := <-s.in:
		f, err := link.Decode(b)
		require.NoError(t, err)
		require.Equal(t, f.Len(), len(b))
		return f
	case <-time.After(time.Second):
		t.Fatal("expect frame timeout")
	}
	return nil
}

func (s *testStream) expectNothing(t *testing.T, d time.Duration) {
	select {
	case b := <-s.in:
		t.Fatalf("unexpected bytes % x", b)
	case <-time.After(d):
	}
}

func frameBytes(cmd link.Command) []byte {
	return link.FrameOf(cmd).Bytes()
}
