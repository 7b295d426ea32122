package discovery

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"vitarp-go/internal/domain/console"
	"vitarp-go/internal/platform/errors"
)

// protocolVersion is the discovery protocol revision consoles answer to.
const protocolVersion = "00030010"

// BuildProbe renders one broadcast search datagram. When an account id is
// configured it rides along so replies can be authenticated downstream.
func BuildProbe(accountID string) []byte {
	var b strings.Builder
	b.WriteString("SRCH * HTTP/1.1\n")
	b.WriteString("device-discovery-protocol-version:" + protocolVersion + "\n")
	if accountID != "" {
		b.WriteString("user-credential:" + accountID + "\n")
	}
	return []byte(b.String())
}

// ParseResponse classifies one reply datagram. The status line decides the
// power state; header fields fill in the console identity.
func ParseResponse(data []byte, ip string, port int) (console.Discovered, error) {
	text := string(data)
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	if len(lines) == 0 || !strings.HasPrefix(lines[0], "HTTP/1.1 ") {
		return console.Discovered{}, errors.New(errors.KindInvalidData, "discovery.parse",
			"not a discovery response")
	}

	found := console.Discovered{
		IP:            ip,
		DiscoveryPort: port,
		State:         console.StateUnknown,
		LastSeen:      time.Now(),
	}

	switch {
	case strings.Contains(lines[0], "200"):
		found.State = console.StateReady
		found.IsAwake = true
	case strings.Contains(lines[0], "620"):
		found.State = console.StateStandby
	}

	for _, line := range lines[1:] {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "host-id":
			found.HostID = value
		case "host-name":
			found.Nickname = value
		case "host-type":
			found.Generation = parseGeneration(value)
		case "host-request-port":
			if p, err := strconv.Atoi(value); err == nil {
				found.DiscoveryPort = p
			}
		}
	}

	if found.HostID == "" {
		return console.Discovered{}, errors.New(errors.KindInvalidData, "discovery.parse",
			"response missing host-id")
	}
	return found, nil
}

func parseGeneration(hostType string) console.Generation {
	switch strings.ToUpper(hostType) {
	case "PS5":
		return console.GenPS5
	default:
		return console.GenPS4
	}
}

// simulatedConsoles are the synthetic results used when the socket cannot be
// opened. They render in the console list but are never connectable.
func simulatedConsoles() []console.Discovered {
	now := time.Now()
	return []console.Discovered{
		{
			IP:            "192.168.1.100",
			HostID:        fmt.Sprintf("SIM%013d", 1),
			Nickname:      "Simulated PS5",
			Generation:    console.GenPS5,
			DiscoveryPort: 9302,
			State:         console.StateReady,
			IsAwake:       true,
			Simulated:     true,
			LastSeen:      now,
		},
		{
			IP:            "192.168.1.101",
			HostID:        fmt.Sprintf("SIM%013d", 2),
			Nickname:      "Simulated PS4",
			Generation:    console.GenPS4,
			DiscoveryPort: 987,
			State:         console.StateStandby,
			Simulated:     true,
			LastSeen:      now,
		},
	}
}
