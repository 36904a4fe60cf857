package models

// RecognizeRequest is the body of POST /v1/recognize.
type RecognizeRequest struct {
	TenantID    string      `json:"tenant_id"`
	UserID      *string     `json:"user_id,omitempty"`
	Fingerprint Fingerprint `json:"fingerprint"`
	IPAddress   string      `json:"-"`
	Location    *string     `json:"location,omitempty"`
}

type RecognizeResponse struct {
	FingerprintID  string         `json:"fingerprint_id,omitempty"`
	RequestID      string         `json:"request_id"`
	IsNew          bool           `json:"is_new"`
	Recommendation Recommendation `json:"recommendation"`
	Confidence     float64        `json:"confidence"`
	Result         MatchResult    `json:"result"`
}

// MatchRequest is the body of POST /v1/match; nothing is read from or written to storage.
type MatchRequest struct {
	Current    Fingerprint         `json:"current"`
	Candidates []StoredFingerprint `json:"candidates"`
}

type StatsResponse struct {
	Recognitions map[Recommendation]int64 `json:"recognitions"`
	Stored       int64                    `json:"stored_fingerprints"`
	Database     *DatabasePool            `json:"database,omitempty"`
}

// DatabasePool is a snapshot of the store's connection pool.
type DatabasePool struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
}
