//
//
// Tencent is pleased to support the open source community by making tRPC available.
//
// Copyright (C) 2023 THL A29 Limited, a Tencent company.
// All rights reserved.
//
// If you have downloaded a copy of the tRPC source code from Tencent,
// please note that tRPC source code is licensed under the  Apache 2.0 License,
// A copy of the Apache 2.0 License is included in this file.
//
//

package sal

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// Addr is a resolved socket address: an IP, a port, and the address
// family it belongs to. It plays the role of `bal_sockaddr` in the
// original library, minus the union-of-families representation C needs
// and Go's net.IP already gives us for free.
type Addr struct {
	Family Family
	IP     net.IP
	Port   int
}

// String implements fmt.Stringer.
func (a Addr) String() string {
	return net.JoinHostPort(a.IP.String(), fmt.Sprint(a.Port))
}

// ResolveAddr resolves host:port into an Addr, playing the role of
// `_bal_getaddrinfo`. Go's net package already performs the
// getaddrinfo-equivalent resolution (including cgo/pure-Go resolver
// selection) internally; no pack library wraps name resolution, so this
// is intentionally built on the standard library rather than grounded in
// a third-party dependency.
func ResolveAddr(network, hostport string) (Addr, error) {
	host, portStr, err := net.SplitHostPort(hostport)
	if err != nil {
		return Addr{}, fail(ErrBadString, err)
	}
	ips, err := net.LookupIP(host)
	if err != nil {
		return Addr{}, fail(ErrUnavailable, err)
	}
	var port int
	if _, err := fmt.Sscanf(portStr, "%d", &port); err != nil {
		return Addr{}, fail(ErrBadString, err)
	}

	for _, ip := range ips {
		switch network {
		case "tcp4", "udp4":
			if ip4 := ip.To4(); ip4 != nil {
				return Addr{Family: FamilyIPv4, IP: ip4, Port: port}, nil
			}
		case "tcp6", "udp6":
			if ip.To4() == nil {
				return Addr{Family: FamilyIPv6, IP: ip, Port: port}, nil
			}
		default:
			if ip4 := ip.To4(); ip4 != nil {
				return Addr{Family: FamilyIPv4, IP: ip4, Port: port}, nil
			}
			return Addr{Family: FamilyIPv6, IP: ip, Port: port}, nil
		}
	}
	return Addr{}, fail(ErrUnavailable, fmt.Errorf("no address of the requested family for %q", host))
}

// sockaddr converts Addr to the unix.Sockaddr CreateSocket/BindSocket/
// ConnectSocket need.
func (a Addr) sockaddr() (unix.Sockaddr, error) {
	switch a.Family {
	case FamilyIPv4:
		ip4 := a.IP.To4()
		if ip4 == nil {
			return nil, fmt.Errorf("address %s is not a valid IPv4 address", a.IP)
		}
		sa := &unix.SockaddrInet4{Port: a.Port}
		copy(sa.Addr[:], ip4)
		return sa, nil
	case FamilyIPv6:
		ip6 := a.IP.To16()
		if ip6 == nil {
			return nil, fmt.Errorf("address %s is not a valid IPv6 address", a.IP)
		}
		sa := &unix.SockaddrInet6{Port: a.Port}
		copy(sa.Addr[:], ip6)
		return sa, nil
	default:
		return nil, fmt.Errorf("unsupported address family %d", a.Family)
	}
}

// addrFromSockaddr is sockaddr's inverse, used to decode AcceptSocket's
// peer address.
func addrFromSockaddr(sa unix.Sockaddr) (Addr, error) {
	switch sa := sa.(type) {
	case *unix.SockaddrInet4:
		ip := make(net.IP, 4)
		copy(ip, sa.Addr[:])
		return Addr{Family: FamilyIPv4, IP: ip, Port: sa.Port}, nil
	case *unix.SockaddrInet6:
		ip := make(net.IP, 16)
		copy(ip, sa.Addr[:])
		return Addr{Family: FamilyIPv6, IP: ip, Port: sa.Port}, nil
	default:
		return Addr{}, fmt.Errorf("unsupported sockaddr type %T", sa)
	}
}
