package storage

import "time"

// Snapshot is one stored data-load result for a section. The payload is the
// service's JSON response, kept verbatim so the dashboard can show the last
// known data when the service is down.
type Snapshot struct {
	ID        string
	Section   string
	Payload   string
	FetchedAt time.Time
}

// ExportRecord is one completed export delivered to a user-chosen
// destination.
type ExportRecord struct {
	ID            string
	Kind          string
	Section       string
	Symbol        string
	Destination   string
	ArtifactBytes int64
	CreatedAt     time.Time
}
