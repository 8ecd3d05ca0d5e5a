package dto

// TenderSummary is one list entry returned by a tender source connector.
type TenderSummary struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Agency string `json:"agency,omitempty"`
	Status string `json:"status,omitempty"`
}

// IngestionResult reports what one ingestion batch did. Callers inspect it
// for partial-failure details instead of relying on an error return.
type IngestionResult struct {
	Source           string `json:"source"`
	Total            int    `json:"total"`
	CreatedRevisions int    `json:"created_revisions"`
	SkippedRevisions int    `json:"skipped_revisions"`
	QueuedJobs       int    `json:"queued_jobs"`
	Failed           int    `json:"failed"`
}

// NormalizationStatus is the outcome class of one normalization call
type NormalizationStatus string

const (
	NormalizationSuccess NormalizationStatus = "SUCCESS"
	NormalizationNoop    NormalizationStatus = "NOOP"
	NormalizationFailed  NormalizationStatus = "FAILED"
)

// NormalizationResult reports the outcome of normalizing one raw payload
type NormalizationResult struct {
	Status          NormalizationStatus `json:"status"`
	RevisionID      uint                `json:"revision_id,omitempty"`
	RevisionHash    string              `json:"revision_hash,omitempty"`
	CreatedRevision bool                `json:"created_revision"`
}

// ProcessPendingStats reports one drain pass over the normalize job queue
type ProcessPendingStats struct {
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Noop      int `json:"noop"`
	Failed    int `json:"failed"`
}

// ReindexStats reports one reindex pass over the latest successful revisions
type ReindexStats struct {
	Scanned          int `json:"scanned"`
	IndexedDocuments int `json:"indexed_documents"`
	IndexedChunks    int `json:"indexed_chunks"`
	SkippedDocuments int `json:"skipped_documents"`
}

// MatchNotifyStats reports one match-and-notify pass for a revision
type MatchNotifyStats struct {
	SubscriptionsScanned int `json:"subscriptions_scanned"`
	MatchesComputed      int `json:"matches_computed"`
	NotificationsSent    int `json:"notifications_sent"`
	NotificationsSkipped int `json:"notifications_skipped"`
	NotificationsFailed  int `json:"notifications_failed"`
}

// Add accumulates another stats block, used when re-driving several revisions
func (s *MatchNotifyStats) Add(other *MatchNotifyStats) {
	if other == nil {
		return
	}
	s.SubscriptionsScanned += other.SubscriptionsScanned
	s.MatchesComputed += other.MatchesComputed
	s.NotificationsSent += other.NotificationsSent
	s.NotificationsSkipped += other.NotificationsSkipped
	s.NotificationsFailed += other.NotificationsFailed
}
