package lineserver

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/nova-lang/nova/pkg/config"
	"github.com/nova-lang/nova/pkg/history"
	"github.com/nova-lang/nova/pkg/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startServer(t *testing.T, cfg *config.CfgInfo, hist *history.History) *Server {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := NewWithListener(lis, cfg, hist)
	done := make(chan error, 1)
	go func() { done <- s.Run() }()
	t.Cleanup(func() {
		s.Stop()
		assert.NoError(t, <-done)
	})
	return s
}

// send writes program, half-closes and returns everything the server wrote.
func send(addr net.Addr, program string) (string, error) {
	conn, err := net.Dial("tcp", addr.String())
	if err != nil {
		return "", err
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(10 * time.Second))

	if _, err := io.WriteString(conn, program); err != nil {
		return "", err
	}
	if err := conn.(*net.TCPConn).CloseWrite(); err != nil {
		return "", err
	}
	out, err := io.ReadAll(conn)
	return string(out), err
}

func roundTrip(t *testing.T, s *Server, program string) string {
	out, err := send(s.Addr(), program)
	require.NoError(t, err)
	return out
}

func TestSessionEvaluates(t *testing.T) {
	s := startServer(t, config.DefaultConfig(), nil)

	assert.Equal(t, "8\n5\n-5\n", roundTrip(t, s, "5+3;10-4-1\n-7+2"))
	assert.Equal(t, "7\n", roundTrip(t, s, "007;"))
	assert.Equal(t, "", roundTrip(t, s, ""))
}

func TestSessionsAreIndependent(t *testing.T) {
	s := startServer(t, config.DefaultConfig(), nil)

	outs := make(chan string, 4)
	for i := 0; i < cap(outs); i++ {
		go func() {
			out, err := send(s.Addr(), "1+2+3-4;100-1;")
			if err != nil {
				out = err.Error()
			}
			outs <- out
		}()
	}
	for i := 0; i < cap(outs); i++ {
		assert.Equal(t, "2\n99\n", <-outs)
	}
}

func TestSessionJSONOutput(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Output.Format = stream.FormatJSON
	s := startServer(t, cfg, nil)

	assert.Equal(t, `{"seq":1,"value":4}`+"\n", roundTrip(t, s, "2+2;"))
}

func TestSessionRateLimited(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Server.RateLimit = 0.001
	cfg.Server.Burst = 1
	cfg.Server.WhiteList = nil
	s := startServer(t, cfg, nil)

	assert.Equal(t, "3\n", roundTrip(t, s, "1+2;"))

	// nothing is sent so the server closes without unread input
	conn, err := net.Dial("tcp", s.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(10 * time.Second))
	out, err := io.ReadAll(conn)
	assert.NoError(t, err)
	assert.Equal(t, limitedReply, string(out))
}

func TestSessionJournaled(t *testing.T) {
	assert := assert.New(t)

	hist, err := history.Open(t.TempDir(), nil)
	require.NoError(t, err)
	defer hist.Close()

	s := startServer(t, config.DefaultConfig(), hist)
	assert.Equal("9\n", roundTrip(t, s, "10-1;"))

	ss, err := hist.Sessions()
	require.NoError(t, err)
	if assert.Len(ss, 1) {
		assert.Contains(ss[0].Source, "tcp 127.0.0.1:")
		rs, err := hist.Results(ss[0].ID)
		assert.NoError(err)
		assert.Equal([]stream.Record{{Seq: 1, Value: 9}}, rs)
	}
}
