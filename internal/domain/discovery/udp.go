package discovery

import (
	"net"
	"time"

	"vitarp-go/internal/platform/errors"
)

// udpConn is the production Conn: an IPv4 socket broadcasting to the
// discovery port and collecting replies on an ephemeral local port.
type udpConn struct {
	pc   net.PacketConn
	port int
}

func openUDP(port int) (Conn, error) {
	pc, err := net.ListenPacket("udp4", ":0")
	if err != nil {
		return nil, errors.Wrap(errors.KindNetwork, "discovery.open", "open broadcast socket", err)
	}
	return &udpConn{pc: pc, port: port}, nil
}

func (c *udpConn) Broadcast(payload []byte) error {
	dst := &net.UDPAddr{IP: net.IPv4bcast, Port: c.port}
	if _, err := c.pc.WriteTo(payload, dst); err != nil {
		return errors.Wrap(errors.KindNetwork, "discovery.broadcast", "send probe", err)
	}
	return nil
}

func (c *udpConn) ReadFrom(buf []byte, deadline time.Time) (int, string, error) {
	if err := c.pc.SetReadDeadline(deadline); err != nil {
		return 0, "", errors.Wrap(errors.KindNetwork, "discovery.read", "set read deadline", err)
	}
	n, addr, err := c.pc.ReadFrom(buf)
	if err != nil {
		return 0, "", err
	}
	ip := ""
	if udp, ok := addr.(*net.UDPAddr); ok {
		ip = udp.IP.String()
	} else if addr != nil {
		host, _, splitErr := net.SplitHostPort(addr.String())
		if splitErr == nil {
			ip = host
		}
	}
	return n, ip, nil
}

func (c *udpConn) Close() error {
	return c.pc.Close()
}
