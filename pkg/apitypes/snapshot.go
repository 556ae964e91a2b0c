package apitypes

import "time"

// SnapshotRecord mirrors spec §3's Snapshot Record, stored as labels on a
// Registry image tag rather than in any PAPI-owned table.
type SnapshotRecord struct {
	SnapshotID string    `json:"snapshot_id"`
	Owner      string     `json:"owner"`
	Kind       Kind       `json:"kind"`
	ImageTag   string     `json:"image_tag"`
	Title      string     `json:"title"`
	CreatedAt  time.Time  `json:"created_at"`
	SizeBytes  int64      `json:"size_bytes"`
	Status     string     `json:"status"`
	VO         string     `json:"vo"`
}

// SnapshotQuotaBytes is the per-user total snapshot-storage quota from
// spec §4.6 (15 GiB).
const SnapshotQuotaBytes int64 = 15 * 1024 * 1024 * 1024

// MaxSnapshotFilesystemBytes is the per-snapshot filesystem size cap from
// spec §4.6 (10 GiB, beyond which the batch job rejects with "too-large").
const MaxSnapshotFilesystemBytes int64 = 10 * 1024 * 1024 * 1024
