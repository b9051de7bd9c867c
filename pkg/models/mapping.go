package models

import "time"

// Mapping provenance tiers. Manual entries are never overwritten by
// automated refresh or bulk imports.
const (
	ProvenanceManual            = "manual"
	ProvenanceAuto              = "auto"
	ProvenanceBulkImport        = "bulk_import"
	ProvenanceWebhookDiscovered = "webhook_discovered"
)

func ValidProvenance(p string) bool {
	switch p {
	case ProvenanceManual, ProvenanceAuto, ProvenanceBulkImport, ProvenanceWebhookDiscovered:
		return true
	}
	return false
}

// AniDBMapping links an AniDB id (seen in Jellyfin webhooks) to a MAL id.
// MALID is nil while the entry is an unmapped placeholder awaiting triage.
type AniDBMapping struct {
	ID         int64     `json:"id"`
	AniDBID    int       `json:"anidb_id"`
	MALID      *int      `json:"mal_id,omitempty"`
	Title      string    `json:"title,omitempty"`
	Confidence *float64  `json:"confidence,omitempty"`
	Provenance string    `json:"provenance"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type MappingStats struct {
	Total             int      `json:"total"`
	MappedCount       int      `json:"mapped_count"`
	UnmappedCount     int      `json:"unmapped_count"`
	ManualCount       int      `json:"manual_count"`
	AutoCount         int      `json:"auto_count"`
	BulkImportCount   int      `json:"bulk_import_count"`
	WebhookCount      int      `json:"webhook_discovered_count"`
	AverageConfidence *float64 `json:"average_confidence,omitempty"`
}
