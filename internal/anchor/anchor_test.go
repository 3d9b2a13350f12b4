package anchor

import (
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/camsync/host/internal/config"
)

// listenOnce starts a one-shot TCP listener and returns the bytes
// written by the first connection over ch.
func listenOnce(t *testing.T) (addr string, ch <-chan []byte) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	out := make(chan []byte, 1)
	go func() {
		defer ln.Close()
		conn, err := ln.Accept()
		if err != nil {
			out <- nil
			return
		}
		defer conn.Close()
		buf := make([]byte, 64)
		n, _ := conn.Read(buf)
		out <- buf[:n]
	}()
	return ln.Addr().String(), out
}

func TestSendStartAnchorWireFormat(t *testing.T) {
	addr, ch := listenOnce(t)
	before := uint64(time.Now().UnixNano())

	b := New([]config.CameraConfig{{ID: "cam0", CommandAddr: addr}})
	anchor, err := b.SendStartAnchor()
	if err != nil {
		t.Fatalf("SendStartAnchor: %v", err)
	}

	var got []byte
	select {
	case got = <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for anchor bytes")
	}

	if len(got) != 8 {
		t.Fatalf("expected 8-byte anchor, got %d bytes", len(got))
	}
	wire := binary.LittleEndian.Uint64(got)
	if wire != anchor {
		t.Errorf("wire anchor %d != returned anchor %d", wire, anchor)
	}
	if anchor <= before {
		t.Errorf("anchor %d should be ahead of send time %d", anchor, before)
	}
	if delta := anchor - before; delta < uint64(500*time.Millisecond) || delta > uint64(2*time.Second) {
		t.Errorf("anchor lead time %v outside expected ~1s window", time.Duration(delta))
	}
}

func TestSendStopWireFormat(t *testing.T) {
	addr, ch := listenOnce(t)

	b := New([]config.CameraConfig{{ID: "cam0", CommandAddr: addr}})
	b.SendStop()

	var got []byte
	select {
	case got = <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for stop bytes")
	}

	if string(got) != "STOP" {
		t.Errorf("expected STOP sentinel, got %q", got)
	}
}

func TestSendStartAnchorFailsOnUnreachableCamera(t *testing.T) {
	// Port 0 listener closed immediately yields a guaranteed-refused
	// address without flaking on a real unused port.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	b := New([]config.CameraConfig{{ID: "cam0", CommandAddr: addr}})
	if _, err := b.SendStartAnchor(); err == nil {
		t.Error("expected error broadcasting to a closed listener")
	}
}

func TestBroadcastReachesAllCameras(t *testing.T) {
	addr1, ch1 := listenOnce(t)
	addr2, ch2 := listenOnce(t)

	b := New([]config.CameraConfig{
		{ID: "cam0", CommandAddr: addr1},
		{ID: "cam1", CommandAddr: addr2},
	})
	if _, err := b.SendStartAnchor(); err != nil {
		t.Fatalf("SendStartAnchor: %v", err)
	}

	for i, ch := range []<-chan []byte{ch1, ch2} {
		select {
		case got := <-ch:
			if len(got) != 8 {
				t.Errorf("camera %d: expected 8 bytes, got %d", i, len(got))
			}
		case <-time.After(2 * time.Second):
			t.Errorf("camera %d: timed out waiting for anchor", i)
		}
	}
}
