package model

import "time"

// QRBinding maps an opaque public token to exactly one document.
type QRBinding struct {
	QRID          string     `json:"qr_id"`
	DocumentID    string     `json:"document_id"`
	IsActive      bool       `json:"is_active"`
	ScanCount     int64      `json:"scan_count"`
	LastScanAt    *time.Time `json:"last_scan_at,omitempty"`
	CreatedBy     string     `json:"created_by"`
	CreatedAt     time.Time  `json:"created_at"`
	DeactivatedAt *time.Time `json:"deactivated_at,omitempty"`
}
