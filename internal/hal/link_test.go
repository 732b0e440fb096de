package hal

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeLinkOps struct {
	up       bool
	addr     string
	upAfter  int
	polls    int
	ups      int
	downs    int
	stateErr error
}

func (f *fakeLinkOps) setUp(string) error {
	f.ups++
	return nil
}

func (f *fakeLinkOps) setDown(string) error {
	f.downs++
	f.up = false
	f.addr = ""
	return nil
}

func (f *fakeLinkOps) state(string) (bool, string, error) {
	f.polls++
	if f.stateErr != nil {
		return false, "", f.stateErr
	}
	if f.upAfter > 0 && f.polls >= f.upAfter {
		f.up = true
		f.addr = "192.168.1.50"
	}
	return f.up, f.addr, nil
}

func newTestLink(ops *fakeLinkOps) *Link {
	l := NewLink("wlan0")
	l.ops = ops
	l.PollEvery = time.Millisecond
	return l
}

func TestConnectWaitsForAddress(t *testing.T) {
	ops := &fakeLinkOps{upAfter: 3}
	l := newTestLink(ops)
	if err := l.Connect(context.Background(), "office", "pw"); err != nil {
		t.Fatal(err)
	}
	if ops.ups != 1 {
		t.Errorf("setUp calls: %d", ops.ups)
	}
	info := l.Info()
	if !info.Connected || info.IP != "192.168.1.50" || info.SSID != "office" || info.Interface != "wlan0" {
		t.Errorf("info: %+v", info)
	}
}

func TestConnectAlreadyUp(t *testing.T) {
	ops := &fakeLinkOps{up: true, addr: "10.0.0.2"}
	l := newTestLink(ops)
	if err := l.Connect(context.Background(), "office", ""); err != nil {
		t.Fatal(err)
	}
	if ops.ups != 0 {
		t.Errorf("link already up, setUp called %d times", ops.ups)
	}
}

func TestConnectTimeout(t *testing.T) {
	l := newTestLink(&fakeLinkOps{})
	l.Timeout = 20 * time.Millisecond
	err := l.Connect(context.Background(), "office", "pw")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("got %v, want deadline exceeded", err)
	}
	if l.Connected() {
		t.Error("should not be connected")
	}
}

func TestConnectRequiresSSID(t *testing.T) {
	if err := newTestLink(&fakeLinkOps{}).Connect(context.Background(), "", ""); err == nil {
		t.Error("expected error")
	}
}

func TestConnectStateError(t *testing.T) {
	ops := &fakeLinkOps{stateErr: errors.New("no such device")}
	if err := newTestLink(ops).Connect(context.Background(), "office", ""); err == nil {
		t.Error("expected error")
	}
}

func TestDisconnect(t *testing.T) {
	ops := &fakeLinkOps{up: true, addr: "10.0.0.2"}
	l := newTestLink(ops)
	if !l.Connected() {
		t.Fatal("should be connected")
	}
	if err := l.Disconnect(); err != nil {
		t.Fatal(err)
	}
	if ops.downs != 1 || l.Connected() || l.Info().Connected {
		t.Errorf("still connected after Disconnect: %+v", l.Info())
	}
}
