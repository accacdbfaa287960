package model

import "time"

// ScanLogEntry is one audited resolution attempt of a QR binding. Department
// is captured at scan time so entries stay attributable after the document is
// deleted.
type ScanLogEntry struct {
	ID            string    `json:"id" db:"id"`
	QRID          string    `json:"qr_id" db:"qr_id"`
	DocumentID    string    `json:"document_id" db:"document_id"`
	Department    string    `json:"department" db:"department"`
	ScannerUserID *string   `json:"scanner_user_id,omitempty" db:"scanner_user_id"`
	Timestamp     time.Time `json:"timestamp" db:"scanned_at"`
	IPAddress     string    `json:"ip_address" db:"ip_address"`
	UserAgent     string    `json:"user_agent" db:"user_agent"`
	Success       bool      `json:"success" db:"success"`
	Reason        string    `json:"reason,omitempty" db:"reason"`
}

// ScanBucket is one group of an aggregation over the scan log.
type ScanBucket struct {
	Key   string `json:"key" db:"bucket_key"`
	Label string `json:"label,omitempty" db:"bucket_label"`
	Count int64  `json:"count" db:"bucket_count"`
}
