package model

import "time"

// Document is a titled file resource with an append-only version history.
// QRID is filled from the document's active QR binding by an explicit join
// in the repository and is empty when no active binding exists.
type Document struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Description    string    `json:"description,omitempty"`
	Department     string    `json:"department"`
	MachineID      string    `json:"machine_id,omitempty"`
	QRID           string    `json:"qr_id,omitempty"`
	CurrentVersion int       `json:"current_version"`
	Versions       []Version `json:"versions"`
	AccessRoles    []Role    `json:"access_roles"`
	CreatedBy      string    `json:"created_by"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Version is one immutable uploaded file snapshot of a Document.
type Version struct {
	DocumentID       string    `json:"document_id"`
	VersionNumber    int       `json:"version_number"`
	StorageKey       string    `json:"storage_key"`
	URL              string    `json:"url"`
	OriginalFilename string    `json:"original_filename"`
	ContentType      string    `json:"content_type"`
	Size             int64     `json:"size"`
	Checksum         string    `json:"checksum"`
	UploadedBy       string    `json:"uploaded_by"`
	UploadedAt       time.Time `json:"uploaded_at"`
	Notes            string    `json:"notes,omitempty"`
}

// LatestVersion returns the version whose number equals CurrentVersion.
func (d *Document) LatestVersion() (Version, bool) {
	for _, v := range d.Versions {
		if v.VersionNumber == d.CurrentVersion {
			return v, true
		}
	}
	return Version{}, false
}

// HasAccessRole reports whether r is in the document's access role list.
func (d *Document) HasAccessRole(r Role) bool {
	for _, ar := range d.AccessRoles {
		if ar == r {
			return true
		}
	}
	return false
}
