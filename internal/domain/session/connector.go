package session

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"vitarp-go/internal/domain/console"
	"vitarp-go/internal/domain/input"
	"vitarp-go/internal/domain/registration/model"
	"vitarp-go/internal/platform/config"
	"vitarp-go/internal/platform/errors"
)

// Stream is a live session with a console.
type Stream interface {
	// Dimensions returns the negotiated frame size.
	Dimensions() (width, height int)
	// NextFrame blocks for the next video frame.
	NextFrame(ctx context.Context) (Frame, error)
	// SendInput transmits one encoded input frame.
	SendInput(encoded input.Encoded) error
	// Rehandshake renegotiates the session in place after a transient
	// protocol error.
	Rehandshake(ctx context.Context) error
	Close() error
}

// Connector negotiates a session using stored credentials.
type Connector interface {
	Connect(ctx context.Context, creds model.Credentials) (Stream, error)
}

// frameHeaderSize is the fixed prefix on each stream datagram: sequence,
// width, height, payload length.
const frameHeaderSize = 16

// tcpConnector negotiates over the control port and pulls frames from the
// stream port.
type tcpConnector struct {
	cfg config.SessionConfig
}

// NewConnector builds the production connector.
func NewConnector(cfg config.SessionConfig) Connector {
	return &tcpConnector{cfg: cfg}
}

func (c *tcpConnector) Connect(ctx context.Context, creds model.Credentials) (Stream, error) {
	control, width, height, err := c.handshake(ctx, creds)
	if err != nil {
		return nil, err
	}

	video, err := net.Dial("udp4", net.JoinHostPort(creds.IP, strconv.Itoa(c.cfg.StreamPort)))
	if err != nil {
		control.Close()
		return nil, errors.Wrap(errors.KindNetwork, "session.connect", "open stream socket", err)
	}

	return &tcpStream{
		connector: c,
		creds:     creds,
		control:   control,
		video:     video,
		width:     width,
		height:    height,
	}, nil
}

// handshake sends the session init request and maps the console's verdict
// onto the error taxonomy.
func (c *tcpConnector) handshake(ctx context.Context, creds model.Credentials) (net.Conn, int, int, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(creds.IP, strconv.Itoa(c.cfg.ControlPort)))
	if err != nil {
		return nil, 0, 0, errors.Wrap(errors.KindNetwork, "session.connect", "connect control port", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	path := "/sie/ps4/rp/sess/init"
	if creds.Target == console.GenPS5 {
		path = "/sie/ps5/rp/sess/init"
	}
	var req strings.Builder
	fmt.Fprintf(&req, "GET %s HTTP/1.1\r\n", path)
	fmt.Fprintf(&req, "HOST: %s\r\n", creds.IP)
	fmt.Fprintf(&req, "RP-Registkey: %s\r\n", creds.RegistHex8)
	req.WriteString("RP-Version: 1.0\r\n\r\n")
	if _, err := conn.Write([]byte(req.String())); err != nil {
		conn.Close()
		return nil, 0, 0, errors.Wrap(errors.KindNetwork, "session.connect", "send init request", err)
	}

	r := bufio.NewReader(conn)
	status, err := r.ReadString('\n')
	if err != nil {
		conn.Close()
		return nil, 0, 0, errors.Wrap(errors.KindNetwork, "session.connect", "read init response", err)
	}

	switch {
	case strings.Contains(status, " 200 "):
	case strings.Contains(status, " 401 "), strings.Contains(status, " 403 "):
		conn.Close()
		return nil, 0, 0, errors.New(errors.KindAuthFailed, "session.connect",
			"console rejected the stored credentials")
	case strings.Contains(status, " 480 "):
		conn.Close()
		return nil, 0, 0, errors.New(errors.KindServiceNotReady, "session.connect",
			"remote play service is still starting")
	case strings.Contains(status, " 493 "):
		conn.Close()
		return nil, 0, 0, errors.New(errors.KindVersionMismatch, "session.connect",
			"console requires a newer protocol version")
	default:
		conn.Close()
		return nil, 0, 0, errors.New(errors.KindNetwork, "session.connect",
			"unexpected init response: "+strings.TrimSpace(status))
	}

	width, height := 1920, 1080
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			break
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "rp-streamwidth":
			if v, err := strconv.Atoi(value); err == nil && v > 0 {
				width = v
			}
		case "rp-streamheight":
			if v, err := strconv.Atoi(value); err == nil && v > 0 {
				height = v
			}
		}
	}

	_ = conn.SetDeadline(time.Time{})
	return conn, width, height, nil
}

type tcpStream struct {
	connector *tcpConnector
	creds     model.Credentials
	control   net.Conn
	video     net.Conn
	width     int
	height    int
}

func (s *tcpStream) Dimensions() (int, int) {
	return s.width, s.height
}

func (s *tcpStream) NextFrame(ctx context.Context) (Frame, error) {
	deadline := time.Now().Add(time.Second)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := s.video.SetReadDeadline(deadline); err != nil {
		return Frame{}, errors.Wrap(errors.KindNetwork, "session.frame", "set read deadline", err)
	}

	buf := make([]byte, 1<<16)
	n, err := s.video.Read(buf)
	if err != nil {
		if ctx.Err() != nil {
			return Frame{}, errors.Wrap(errors.KindCancelled, "session.frame", "stream closed", ctx.Err())
		}
		return Frame{}, errors.Wrap(errors.KindTimeout, "session.frame", "await frame", err)
	}
	if n < frameHeaderSize {
		return Frame{}, errors.New(errors.KindInvalidData, "session.frame", "short frame datagram")
	}

	size := binary.BigEndian.Uint32(buf[12:16])
	if int(size) > n-frameHeaderSize {
		return Frame{}, errors.New(errors.KindInvalidData, "session.frame", "truncated frame payload")
	}
	frame := Frame{
		Sequence: binary.BigEndian.Uint64(buf[0:8]),
		Width:    int(binary.BigEndian.Uint16(buf[8:10])),
		Height:   int(binary.BigEndian.Uint16(buf[10:12])),
		Data:     append([]byte(nil), buf[frameHeaderSize:frameHeaderSize+int(size)]...),
	}
	return frame, nil
}

func (s *tcpStream) SendInput(encoded input.Encoded) error {
	packet := make([]byte, 14)
	binary.BigEndian.PutUint32(packet[0:4], encoded.Buttons)
	binary.BigEndian.PutUint16(packet[4:6], uint16(encoded.LeftX))
	binary.BigEndian.PutUint16(packet[6:8], uint16(encoded.LeftY))
	binary.BigEndian.PutUint16(packet[8:10], uint16(encoded.RightX))
	binary.BigEndian.PutUint16(packet[10:12], uint16(encoded.RightY))
	packet[12] = encoded.L2
	packet[13] = encoded.R2
	if _, err := s.control.Write(packet); err != nil {
		return errors.Wrap(errors.KindNetwork, "session.input", "send input frame", err)
	}
	return nil
}

func (s *tcpStream) Rehandshake(ctx context.Context) error {
	control, width, height, err := s.connector.handshake(ctx, s.creds)
	if err != nil {
		return err
	}
	s.control.Close()
	s.control = control
	s.width = width
	s.height = height
	return nil
}

func (s *tcpStream) Close() error {
	s.video.Close()
	return s.control.Close()
}
