package storage

import (
	"time"

	"gorm.io/datatypes"
)

// RegistrationRecord is the durable form of per-console pairing credentials.
// RegistKey and MorningKey hold the two 16-byte secrets base64-encoded so the
// bytes survive the round trip exactly.
type RegistrationRecord struct {
	ID           uint           `gorm:"primaryKey"`
	HostID       string         `gorm:"type:varchar(64);uniqueIndex;not null" json:"host_id"`
	IP           string         `gorm:"type:varchar(45);index;not null"       json:"ip"`
	Nickname     string         `gorm:"type:varchar(128)"                     json:"nickname"`
	Target       string         `gorm:"type:varchar(16)"                      json:"target"`
	KeyType      string         `gorm:"type:varchar(16)"                      json:"key_type"`
	RegistKey    string         `gorm:"type:varchar(32);not null"             json:"regist_key"`
	RegistHex8   string         `gorm:"type:varchar(8)"                       json:"regist_key_hex8"`
	MorningKey   string         `gorm:"type:varchar(32);not null"             json:"morning_key"`
	WakeCred     string         `gorm:"type:varchar(16)"                      json:"wake_credential"`
	AccountID    string         `gorm:"type:varchar(16)"                      json:"account_id"`
	Valid        bool           `                                             json:"valid"`
	RegisteredAt time.Time      `                                             json:"registered_at"`
	UpdatedAt    time.Time      `                                             json:"updated_at"`
	Metadata     datatypes.JSON `                                             json:"metadata,omitempty"`
}

// ConsoleEntry is one persistent console-cache row.
type ConsoleEntry struct {
	ID            uint      `gorm:"primaryKey"`
	HostID        string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"host_id"`
	IP            string    `gorm:"type:varchar(45);index;not null"       json:"ip"`
	Nickname      string    `gorm:"type:varchar(128)"                     json:"nickname"`
	Generation    string    `gorm:"type:varchar(16)"                      json:"generation"`
	DiscoveryPort int       `                                             json:"discovery_port"`
	State         string    `gorm:"type:varchar(16)"                      json:"state"`
	IsAwake       bool      `                                             json:"is_awake"`
	IsRegistered  bool      `gorm:"index"                                 json:"is_registered"`
	Simulated     bool      `                                             json:"simulated"`
	LastSeen      time.Time `gorm:"index"                                 json:"last_seen"`
	LastConnected time.Time `                                             json:"last_connected"`
}
