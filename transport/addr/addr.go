// Package addr provides the IP-address helpers named in spec §3/§6
// (ipaddr_local, ipaddr_remote, family/port/sockaddr accessors). Address
// parsing and DNS resolution are explicitly out of scope (spec §1): this
// package is a thin wrapper delegating to net.ResolveIPAddr/net.Resolver.LookupIP,
// not a resolver of its own.
/*
 * Copyright (c) 2024, dsock authors.
 */
package addr

import (
	"context"
	"net"
	"strconv"

	"github.com/MarcusAsynchronous/dsock/hvfs"
)

// Mode selects the address family preference, mirroring spec §6's
// ipaddr_local/ipaddr_remote "mode" parameter.
type Mode int

const (
	ModeAny Mode = iota
	ModeIPv4
	ModeIPv6
)

func (m Mode) network() string {
	switch m {
	case ModeIPv4:
		return "ip4"
	case ModeIPv6:
		return "ip6"
	default:
		return "ip"
	}
}

// Addr is the opaque address container from spec §3 ("32-byte container
// for sockaddr_in/sockaddr_in6"); in Go this is simply a net.IP plus port,
// which carries the same information without the fixed-size encoding the
// original needed for syscall interop.
type Addr struct {
	IP   net.IP
	Port int
}

// Family reports syscall.AF_INET or syscall.AF_INET6 equivalent via the IP
// shape; returns 0 if the address is the zero value.
func (a *Addr) Family() int {
	if a == nil || a.IP == nil {
		return 0
	}
	if a.IP.To4() != nil {
		return 2 // AF_INET
	}
	return 10 // AF_INET6
}

func (a *Addr) PortOf() int { return a.Port }

func (a *Addr) String() string {
	if a == nil || a.IP == nil {
		return ""
	}
	return net.JoinHostPort(a.IP.String(), strconv.Itoa(a.Port))
}

func (a *Addr) TCPAddr() *net.TCPAddr { return &net.TCPAddr{IP: a.IP, Port: a.Port} }
func (a *Addr) UDPAddr() *net.UDPAddr { return &net.UDPAddr{IP: a.IP, Port: a.Port} }

// Local resolves a bind address: name may be empty (any address), a
// literal IP, or a local interface hostname.
func Local(name string, port int, mode Mode) (*Addr, error) {
	if name == "" {
		if mode == ModeIPv6 {
			return &Addr{IP: net.IPv6zero, Port: port}, nil
		}
		return &Addr{IP: net.IPv4zero, Port: port}, nil
	}
	ipa, err := net.ResolveIPAddr(mode.network(), name)
	if err != nil {
		return nil, err
	}
	return &Addr{IP: ipa.IP, Port: port}, nil
}

// Remote resolves a remote host:port, honoring the given deadline via a
// context with a deadline attached (DNS resolution itself is delegated to
// net's resolver, the external collaborator named in spec §1).
func Remote(ctx context.Context, name string, port int, mode Mode, dl hvfs.Deadline) (*Addr, error) {
	if !dl.IsForever() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, dl.Time())
		defer cancel()
	}
	r := net.DefaultResolver
	ips, err := r.LookupIP(ctx, mode.network(), name)
	if err != nil {
		return nil, err
	}
	if len(ips) == 0 {
		return nil, &net.AddrError{Err: "no such host", Addr: name}
	}
	return &Addr{IP: ips[0], Port: port}, nil
}
