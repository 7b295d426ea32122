package engine

import (
	"bufio"
	"context"
	"encoding/hex"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"vitarp-go/internal/domain/console"
	"vitarp-go/internal/platform/errors"
)

// Target identifies the console a pairing attempt talks to.
type Target struct {
	IP         string
	HostID     string
	Nickname   string
	Generation console.Generation
	AccountID  string
}

// PairResult is the raw payload a successful handshake yields.
type PairResult struct {
	RegistKey  [16]byte
	MorningKey [16]byte
	Nickname   string
	KeyType    string
}

// Pairer drives one pairing exchange against a console.
type Pairer interface {
	Pair(ctx context.Context, target Target, pin uint32) (PairResult, error)
}

// PortChecker probes one TCP port; nil means reachable.
type PortChecker func(ctx context.Context, ip string, port int) error

// TCPPortChecker dials the port within the context's deadline.
func TCPPortChecker(ctx context.Context, ip string, port int) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(ip, strconv.Itoa(port)))
	if err != nil {
		return errors.Wrap(errors.KindNetwork, "regengine.portcheck",
			fmt.Sprintf("port %d unreachable", port), err)
	}
	conn.Close()
	return nil
}

// netPairer runs the registration exchange over the console's control port.
type netPairer struct {
	controlPort int
}

// NewNetPairer builds the production pairer.
func NewNetPairer(controlPort int) Pairer {
	return &netPairer{controlPort: controlPort}
}

func (p *netPairer) Pair(ctx context.Context, target Target, pin uint32) (PairResult, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(target.IP, strconv.Itoa(p.controlPort)))
	if err != nil {
		return PairResult{}, errors.Wrap(errors.KindNetwork, "regengine.pair", "connect control port", err)
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Now().Add(10 * time.Second))
	}

	path := "/sie/ps4/rp/sess/rgst"
	if target.Generation == console.GenPS5 {
		path = "/sie/ps5/rp/sess/rgst"
	}
	body := fmt.Sprintf("Client-Type: vitarp\r\nNp-AccountId: %s\r\nPin: %08d\r\n",
		target.AccountID, pin)

	var req strings.Builder
	fmt.Fprintf(&req, "POST %s HTTP/1.1\r\n", path)
	fmt.Fprintf(&req, "HOST: %s\r\n", target.IP)
	req.WriteString("User-Agent: remoteplay Windows\r\n")
	req.WriteString("Connection: close\r\n")
	fmt.Fprintf(&req, "Content-Length: %d\r\n\r\n", len(body))
	req.WriteString(body)

	if _, err := conn.Write([]byte(req.String())); err != nil {
		return PairResult{}, errors.Wrap(errors.KindNetwork, "regengine.pair", "send regist request", err)
	}
	return parsePairResponse(bufio.NewReader(conn))
}

func parsePairResponse(r *bufio.Reader) (PairResult, error) {
	status, err := r.ReadString('\n')
	if err != nil {
		return PairResult{}, errors.Wrap(errors.KindNetwork, "regengine.pair", "read response", err)
	}
	switch {
	case strings.Contains(status, " 200 "):
	case strings.Contains(status, " 403 "):
		return PairResult{}, errors.New(errors.KindAuthFailed, "regengine.pair",
			"console rejected the PIN (invalid or expired)")
	case strings.Contains(status, " 503 "):
		return PairResult{}, errors.New(errors.KindServiceNotReady, "regengine.pair",
			"Remote Play is disabled on the console")
	default:
		return PairResult{}, errors.New(errors.KindNetwork, "regengine.pair",
			"unexpected response: "+strings.TrimSpace(status))
	}

	result := PairResult{}
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
		case "rp-registkey":
			if err := decodeKey(value, result.RegistKey[:]); err != nil {
				return PairResult{}, err
			}
		case "rp-key":
			if err := decodeKey(value, result.MorningKey[:]); err != nil {
				return PairResult{}, err
			}
		case "rp-nickname":
			result.Nickname = value
		case "rp-keytype":
			result.KeyType = value
		}
	}

	if result.RegistKey == ([16]byte{}) {
		return PairResult{}, errors.New(errors.KindInvalidData, "regengine.pair",
			"response missing registration key")
	}
	return result, nil
}

// decodeKey accepts the 32-hex-char encoding of a 16-byte key, or the raw
// 16-byte form some firmware revisions send.
func decodeKey(value string, dst []byte) error {
	if len(value) == 2*len(dst) {
		if _, err := hex.Decode(dst, []byte(value)); err == nil {
			return nil
		}
	}
	if len(value) == len(dst) {
		copy(dst, value)
		return nil
	}
	return errors.New(errors.KindInvalidData, "regengine.pair", "malformed key in response")
}
