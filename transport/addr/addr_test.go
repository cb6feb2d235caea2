package addr_test

import (
	"context"
	"net"
	"testing"

	"github.com/MarcusAsynchronous/dsock/hvfs"
	"github.com/MarcusAsynchronous/dsock/transport/addr"
)

func TestLocalAny(t *testing.T) {
	a, err := addr.Local("", 9000, addr.ModeIPv4)
	if err != nil {
		t.Fatalf("Local: %v", err)
	}
	if !a.IP.Equal(net.IPv4zero) {
		t.Fatalf("got IP %v, want IPv4zero", a.IP)
	}
	if a.PortOf() != 9000 {
		t.Fatalf("got port %d, want 9000", a.PortOf())
	}
	if a.Family() != 2 {
		t.Fatalf("got family %d, want AF_INET(2)", a.Family())
	}
}

func TestLocalLiteralIP(t *testing.T) {
	a, err := addr.Local("127.0.0.1", 80, addr.ModeIPv4)
	if err != nil {
		t.Fatalf("Local: %v", err)
	}
	if a.String() != "127.0.0.1:80" {
		t.Fatalf("got %q, want 127.0.0.1:80", a.String())
	}
}

func TestRemoteResolvesLoopback(t *testing.T) {
	a, err := addr.Remote(context.Background(), "localhost", 443, addr.ModeIPv4, hvfs.Forever)
	if err != nil {
		t.Fatalf("Remote: %v", err)
	}
	if a.PortOf() != 443 {
		t.Fatalf("got port %d, want 443", a.PortOf())
	}
}

func TestTCPAddrUDPAddrConversions(t *testing.T) {
	a := &addr.Addr{IP: net.ParseIP("10.0.0.1"), Port: 53}
	if tc := a.TCPAddr(); tc.Port != 53 || !tc.IP.Equal(a.IP) {
		t.Fatalf("TCPAddr mismatch: %+v", tc)
	}
	if uc := a.UDPAddr(); uc.Port != 53 || !uc.IP.Equal(a.IP) {
		t.Fatalf("UDPAddr mismatch: %+v", uc)
	}
}

func TestNilAddrIsSafe(t *testing.T) {
	var a *addr.Addr
	if a.Family() != 0 {
		t.Fatalf("got %d, want 0 for nil addr", a.Family())
	}
	if a.String() != "" {
		t.Fatalf("got %q, want empty string for nil addr", a.String())
	}
}
