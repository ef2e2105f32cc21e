package tcp

import (
	"bufio"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"fxhub/internal/application/port"
)

type fakePlatform struct {
	ln    net.Listener
	conns chan net.Conn
}

func startPlatform(t *testing.T) *fakePlatform {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	p := &fakePlatform{ln: ln, conns: make(chan net.Conn, 4)}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			p.conns <- conn
		}
	}()
	t.Cleanup(func() { _ = ln.Close() })
	return p
}

func (p *fakePlatform) accept(t *testing.T) (net.Conn, *bufio.Reader) {
	t.Helper()
	select {
	case conn := <-p.conns:
		t.Cleanup(func() { _ = conn.Close() })
		return conn, bufio.NewReader(conn)
	case <-time.After(2 * time.Second):
		t.Fatal("no connection accepted")
	}
	return nil, nil
}

func readLine(t *testing.T, conn net.Conn, r *bufio.Reader) string {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	return strings.TrimRight(line, "\r\n")
}

func waitEvent(t *testing.T, c *Connector, kind port.EventKind) port.Event {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev := <-c.Events():
			if ev.Kind == kind {
				return ev
			}
		case <-timeout:
			t.Fatalf("no %s event", kind)
		}
	}
}

func TestConnectorReceivesQuotes(t *testing.T) {
	p := startPlatform(t)
	c := New("PF1", p.ln.Addr().String(), Options{})

	require.NoError(t, c.Subscribe("usdtry"))
	require.NoError(t, c.Connect(context.Background()))
	defer c.Disconnect()

	conn, r := p.accept(t)
	require.Equal(t, "subscribe|PF1_USDTRY", readLine(t, conn, r))
	waitEvent(t, c, port.EventConnect)

	_, err := conn.Write([]byte("Subscribed to PF1_USDTRY\n" +
		"garbage without fields\n" +
		"PF1_USDTRY|bid:34,80|ask:35.10|timestamp:2025-04-01T22:29:23.839Z\n"))
	require.NoError(t, err)

	ev := waitEvent(t, c, port.EventRate)
	require.Equal(t, "PF1", ev.Platform)
	require.Equal(t, "USDTRY", ev.Rate.Symbol)
	require.InDelta(t, 34.80, ev.Rate.Bid, 1e-9)
	require.InDelta(t, 35.10, ev.Rate.Ask, 1e-9)
	require.True(t, ev.Rate.Timestamp.Equal(time.Date(2025, 4, 1, 22, 29, 23, 839000000, time.UTC)))
}

func TestConnectorErrorLine(t *testing.T) {
	p := startPlatform(t)
	c := New("PF1", p.ln.Addr().String(), Options{})
	require.NoError(t, c.Connect(context.Background()))
	defer c.Disconnect()

	conn, _ := p.accept(t)
	_, err := conn.Write([]byte("ERROR|Rate data not found for PF1_XAUUSD\n"))
	require.NoError(t, err)

	ev := waitEvent(t, c, port.EventError)
	require.Contains(t, ev.Err.Error(), "Rate data not found for PF1_XAUUSD")
	require.True(t, c.IsConnected())
}

func TestConnectorSubscribeWhileConnected(t *testing.T) {
	p := startPlatform(t)
	c := New("PF1", p.ln.Addr().String(), Options{})
	require.NoError(t, c.Connect(context.Background()))
	defer c.Disconnect()

	conn, r := p.accept(t)
	require.NoError(t, c.Subscribe("EURUSD"))
	require.Equal(t, "subscribe|PF1_EURUSD", readLine(t, conn, r))

	require.NoError(t, c.Unsubscribe("EURUSD"))
	require.Equal(t, "unsubscribe|PF1_EURUSD", readLine(t, conn, r))
	require.Empty(t, c.Subscriptions())
}

func TestConnectorLostConnection(t *testing.T) {
	p := startPlatform(t)
	c := New("PF1", p.ln.Addr().String(), Options{})
	require.NoError(t, c.Connect(context.Background()))

	conn, _ := p.accept(t)
	_ = conn.Close()

	ev := waitEvent(t, c, port.EventDisconnect)
	require.Error(t, ev.Err)
	require.False(t, c.IsConnected())
}

func TestConnectorRequestedDisconnect(t *testing.T) {
	p := startPlatform(t)
	c := New("PF1", p.ln.Addr().String(), Options{})
	require.NoError(t, c.Subscribe("USDTRY"))
	require.NoError(t, c.Connect(context.Background()))
	p.accept(t)

	require.NoError(t, c.Disconnect())
	ev := waitEvent(t, c, port.EventDisconnect)
	require.NoError(t, ev.Err)
	require.False(t, c.IsConnected())
	require.Equal(t, []string{"USDTRY"}, c.Subscriptions())

	// second disconnect is a no-op
	require.NoError(t, c.Disconnect())
}

func TestConnectorResubscribesOnReconnect(t *testing.T) {
	p := startPlatform(t)
	c := New("PF1", p.ln.Addr().String(), Options{})
	require.NoError(t, c.Subscribe("USDTRY"))
	require.NoError(t, c.Subscribe("EURUSD"))

	require.NoError(t, c.Connect(context.Background()))
	conn, r := p.accept(t)
	require.Equal(t, "subscribe|PF1_EURUSD", readLine(t, conn, r))
	require.Equal(t, "subscribe|PF1_USDTRY", readLine(t, conn, r))
	require.NoError(t, c.Disconnect())

	require.NoError(t, c.Connect(context.Background()))
	defer c.Disconnect()
	conn2, r2 := p.accept(t)
	require.Equal(t, "subscribe|PF1_EURUSD", readLine(t, conn2, r2))
	require.Equal(t, "subscribe|PF1_USDTRY", readLine(t, conn2, r2))
}

func TestConnectorDialFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	_ = ln.Close()

	c := New("PF1", addr, Options{DialTimeout: time.Second})
	require.Error(t, c.Connect(context.Background()))
	require.False(t, c.IsConnected())
	ev := waitEvent(t, c, port.EventError)
	require.Error(t, ev.Err)
}

func TestConnectorConnectTwice(t *testing.T) {
	p := startPlatform(t)
	c := New("PF1", p.ln.Addr().String(), Options{})
	require.NoError(t, c.Connect(context.Background()))
	defer c.Disconnect()
	require.NoError(t, c.Connect(context.Background()))
	require.True(t, c.IsConnected())
}

func TestUnsubscribeWhileDisconnected(t *testing.T) {
	c := New("PF1", "127.0.0.1:1", Options{})
	require.NoError(t, c.Subscribe("USDTRY"))
	require.ErrorIs(t, c.Unsubscribe("USDTRY"), port.ErrNotConnected)
	require.Empty(t, c.Subscriptions())
}
