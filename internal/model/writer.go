package model

import "time"

// Snapshot is a point-in-time copy of every flow held by the aggregate store.
type Snapshot struct {
	TakenAt time.Time
	Flows   []FlowRecord
}

// Totals returns the summed upload and download bytes of the snapshot.
func (s *Snapshot) Totals() (upload, download uint64) {
	for _, f := range s.Flows {
		upload += f.UploadBytes
		download += f.DownloadBytes
	}
	return upload, download
}

// Writer defines a generic interface for exporting flow snapshots.
type Writer interface {
	// Write persists or forwards one snapshot. timestamp is the snapshot
	// time formatted as 2006-01-02_15-04-05.
	Write(snapshot *Snapshot, timestamp string) error

	// GetInterval returns the configured snapshot interval for this writer.
	GetInterval() time.Duration
}
