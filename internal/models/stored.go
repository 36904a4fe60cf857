package models

import "time"

type DeviceCategory string

const (
	DeviceDesktop DeviceCategory = "desktop"
	DeviceMobile  DeviceCategory = "mobile"
	DeviceTablet  DeviceCategory = "tablet"
	DeviceUnknown DeviceCategory = "unknown"
)

// Valid reports whether c is one of the known categories.
func (c DeviceCategory) Valid() bool {
	switch c {
	case DeviceDesktop, DeviceMobile, DeviceTablet, DeviceUnknown:
		return true
	}
	return false
}

// StoredFingerprint is a previously seen device as kept by the fingerprint store.
// The matcher only reads these; lastSeen and seenCount are advanced by the store.
type StoredFingerprint struct {
	FingerprintID  string              `json:"fingerprint_id" db:"fingerprint_id"`
	TenantID       string              `json:"tenant_id,omitempty" db:"tenant_id"`
	UserID         *string             `json:"user_id,omitempty" db:"user_id"`
	Signals        Fingerprint         `json:"signals" db:"-"`
	DeviceCategory DeviceCategory      `json:"device_category" db:"device_category"`
	CreatedAt      time.Time           `json:"created_at" db:"created_at"`
	LastSeen       time.Time           `json:"last_seen" db:"last_seen"`
	SeenCount      int                 `json:"seen_count" db:"seen_count"`
	Metadata       FingerprintMetadata `json:"metadata" db:"-"`
}

type FingerprintMetadata struct {
	UserAgent    string  `json:"user_agent"`
	IPAddress    *string `json:"ip_address,omitempty"`
	Location     *string `json:"location,omitempty"`
	SessionCount int     `json:"session_count"`
}
