// internal/protocol/udp_channel_test.go
package protocol

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"comm-debugger/internal/model"
)

func newTestUDP(t *testing.T) (*UDPChannel, *recorder) {
	t.Helper()
	d, rec := newTestDispatcher(t)
	uc := NewUDPChannel(d, DefaultChannelOptions(), zaptest.NewLogger(t))
	t.Cleanup(func() { uc.Close() })
	return uc, rec
}

func newUDPPeer(t *testing.T) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listen error = %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readDatagram(t *testing.T, conn *net.UDPConn) string {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	buf := make([]byte, 1024)
	n, _, err := conn.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("read error = %v", err)
	}
	return string(buf[:n])
}

func TestUDPChannelReceiveAndSend(t *testing.T) {
	uc, rec := newTestUDP(t)
	peer := newUDPPeer(t)

	cfg := model.UDPConfig{LocalAddress: "127.0.0.1", LocalPort: 0}
	if err := uc.Open(context.Background(), cfg); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if uc.State() != model.StateBound {
		t.Fatalf("State() = %s, want BOUND", uc.State())
	}
	local := uc.Target()
	rec.waitFor(t, "receiver started", isStateMessage("started receiver at "+local))

	raddr, _ := net.ResolveUDPAddr("udp", local)
	peer.WriteToUDP([]byte("one"), raddr)
	peer.WriteToUDP([]byte("two"), raddr)

	ev := rec.waitFor(t, "datagram one", isTransfer(model.DirectionReceived, "one"))
	if ev.Transfer.Peer != peer.LocalAddr().String() || ev.Transfer.TransportLabel != "UDP" {
		t.Errorf("transfer = %+v", ev.Transfer)
	}
	rec.waitFor(t, "datagram two", isTransfer(model.DirectionReceived, "two"))

	if err := uc.SendTo(context.Background(), []byte("reply"), peer.LocalAddr().String()); err != nil {
		t.Fatalf("SendTo() error = %v", err)
	}
	if got := readDatagram(t, peer); got != "reply" {
		t.Fatalf("peer read %q, want reply", got)
	}
	rec.waitFor(t, "sent transfer", isTransfer(model.DirectionSent, "reply"))
	rec.waitFor(t, "send succeeded", isStateMessage("send succeeded"))
}

func TestUDPChannelSendWithoutRemote(t *testing.T) {
	uc, rec := newTestUDP(t)

	if err := uc.Open(context.Background(), model.UDPConfig{LocalAddress: "127.0.0.1"}); err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	if err := uc.Send(context.Background(), []byte("x")); !errors.Is(err, model.ErrNotOpen) {
		t.Fatalf("Send() error = %v, want ErrNotOpen", err)
	}
	rec.waitFor(t, "send error", isError(model.OpSend))
	if n := rec.count(isAnyTransfer); n != 0 {
		t.Fatalf("got %d transfers, want 0", n)
	}
}

func TestUDPChannelSendToDefaultRemote(t *testing.T) {
	uc, _ := newTestUDP(t)
	peer := newUDPPeer(t)
	port := peer.LocalAddr().(*net.UDPAddr).Port

	cfg := model.UDPConfig{RemoteAddress: "127.0.0.1", RemotePort: port, LocalAddress: "127.0.0.1"}
	if err := uc.Open(context.Background(), cfg); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := uc.Send(context.Background(), []byte("default")); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if got := readDatagram(t, peer); got != "default" {
		t.Fatalf("peer read %q, want default", got)
	}
}

func TestUDPChannelReceiverLifecycle(t *testing.T) {
	uc, rec := newTestUDP(t)
	peer := newUDPPeer(t)

	if err := uc.OpenReceiver(context.Background(), "127.0.0.1", 0); err != nil {
		t.Fatalf("OpenReceiver() error = %v", err)
	}
	if err := uc.CloseReceiver(); err != nil {
		t.Fatalf("CloseReceiver() error = %v", err)
	}
	if err := uc.CloseReceiver(); err != nil {
		t.Fatalf("second CloseReceiver() error = %v", err)
	}
	if uc.State() != model.StateUnbound {
		t.Fatalf("State() = %s, want UNBOUND", uc.State())
	}
	if n := rec.count(isStateMessage("closed receiver")); n != 1 {
		t.Fatalf("closed receiver events = %d, want 1", n)
	}

	// sending does not need the receiver
	addr := peer.LocalAddr().(*net.UDPAddr)
	if err := uc.SendToAddr(context.Background(), []byte("unbound"), "127.0.0.1", addr.Port); err != nil {
		t.Fatalf("SendToAddr() error = %v", err)
	}
	if got := readDatagram(t, peer); got != "unbound" {
		t.Fatalf("peer read %q, want unbound", got)
	}

	if err := uc.OpenReceiver(context.Background(), "127.0.0.1", 0); err != nil {
		t.Fatalf("reopen OpenReceiver() error = %v", err)
	}
	if uc.State() != model.StateBound {
		t.Fatalf("State() = %s, want BOUND", uc.State())
	}
}

func TestUDPChannelBindFailure(t *testing.T) {
	busy := newUDPPeer(t)
	port := busy.LocalAddr().(*net.UDPAddr).Port

	uc, rec := newTestUDP(t)
	err := uc.OpenReceiver(context.Background(), "127.0.0.1", port)
	if !errors.Is(err, model.ErrOpen) || !errors.Is(err, model.ErrReceive) {
		t.Fatalf("OpenReceiver() error = %v, want ErrOpen and ErrReceive", err)
	}
	if uc.State() != model.StateUnbound {
		t.Fatalf("State() = %s, want UNBOUND", uc.State())
	}

	ev := rec.waitFor(t, "receiver error", isError(model.OpReceive))
	if !strings.HasPrefix(ev.Error.Description, "cannot start receiver: ") || ev.Error.Code != "ADDRESS_IN_USE" {
		t.Errorf("error event = %+v", ev.Error)
	}
}

func TestUDPChannelInvalidConfigIsNotReceiveError(t *testing.T) {
	uc, _ := newTestUDP(t)

	err := uc.Open(context.Background(), model.UDPConfig{LocalPort: 70000})
	if !errors.Is(err, model.ErrInvalidConfig) {
		t.Fatalf("Open() error = %v, want ErrInvalidConfig", err)
	}
	if errors.Is(err, model.ErrReceive) {
		t.Fatalf("Open() error = %v, config error reported as receive failure", err)
	}
}

func TestUDPChannelSendWhileReceiverCycles(t *testing.T) {
	uc, _ := newTestUDP(t)
	peer := newUDPPeer(t)
	port := peer.LocalAddr().(*net.UDPAddr).Port

	if err := uc.OpenReceiver(context.Background(), "127.0.0.1", 0); err != nil {
		t.Fatalf("OpenReceiver() error = %v", err)
	}

	stop := make(chan struct{})
	sendErrs := make(chan error, 1)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			if err := uc.SendToAddr(context.Background(), []byte("tick"), "127.0.0.1", port); err != nil {
				select {
				case sendErrs <- err:
				default:
				}
				return
			}
			time.Sleep(100 * time.Microsecond)
		}
	}()

	for i := 0; i < 50; i++ {
		if err := uc.CloseReceiver(); err != nil {
			t.Fatalf("CloseReceiver() error = %v", err)
		}
		if err := uc.OpenReceiver(context.Background(), "127.0.0.1", 0); err != nil {
			t.Fatalf("OpenReceiver() error = %v", err)
		}
	}
	close(stop)
	wg.Wait()

	select {
	case err := <-sendErrs:
		t.Fatalf("SendToAddr() while receiver cycled error = %v", err)
	default:
	}
}

func TestUDPChannelSendFailure(t *testing.T) {
	uc, rec := newTestUDP(t)

	err := uc.SendTo(context.Background(), []byte("x"), "not-an-address")
	if !errors.Is(err, model.ErrSend) {
		t.Fatalf("SendTo() error = %v, want ErrSend", err)
	}

	ev := rec.waitFor(t, "send error", isError(model.OpSend))
	if !strings.HasPrefix(ev.Error.Description, "failed to send: ") || ev.Error.Peer != "not-an-address" {
		t.Errorf("error event = %+v", ev.Error)
	}
	if n := rec.count(isAnyTransfer); n != 0 {
		t.Fatalf("got %d transfers, want 0", n)
	}
}

func TestUDPChannelClose(t *testing.T) {
	uc, rec := newTestUDP(t)

	if err := uc.Open(context.Background(), model.UDPConfig{LocalAddress: "127.0.0.1"}); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	local := uc.Target()

	if err := uc.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if n := rec.count(isStateMessage("closed " + local)); n != 1 {
		t.Fatalf("closed events = %d, want 1", n)
	}
	if err := uc.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	if err := uc.OpenReceiver(context.Background(), "127.0.0.1", 0); !errors.Is(err, model.ErrChannelClosed) {
		t.Fatalf("OpenReceiver() after Close error = %v, want ErrChannelClosed", err)
	}
}

func TestUDPChannelCloseNeverOpened(t *testing.T) {
	uc, rec := newTestUDP(t)

	if err := uc.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if n := len(rec.snapshot()); n != 0 {
		t.Fatalf("Close() of unused channel emitted %d events", n)
	}
}
