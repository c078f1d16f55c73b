package serve

import (
	"bufio"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	wl "github.com/wabbitlearn/wabbitlearn"
)

func testInstance(t *testing.T) *wl.Instance {
	t.Helper()
	nm, err := wl.NewNamespaceMapFromReader(strings.NewReader("user,0\nad,1\n"))
	require.NoError(t, err)
	return wl.DefaultInstance(nm, nil, 10, 8, 4)
}

func TestServerPredictsAndReportsParseErrors(t *testing.T) {
	inst := testInstance(t)
	reg := wl.NewRegressor(inst)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	srv := NewServer(Config{Addr: addr, LineTimeout: 2 * time.Second}, inst, reg, prometheus.NewRegistry())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run(ctx) }()

	var conn net.Conn
	for i := 0; i < 50; i++ {
		conn, err = net.Dial("tcp", addr)
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("1 |user a |ad b\n"))
	require.NoError(t, err)
	r := bufio.NewReader(conn)
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(strings.TrimSpace(line), "0."))

	_, err = conn.Write([]byte("1 |unknown a\n"))
	require.NoError(t, err)
	line, err = r.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "!", strings.TrimSpace(line))

	cancel()
	select {
	case err := <-errCh:
		_ = err
	case <-time.After(2 * time.Second):
		t.Fatal("server did not shut down after context cancellation")
	}
}
