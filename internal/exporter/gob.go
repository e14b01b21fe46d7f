// Package exporter holds the snapshot writers that persist flow snapshots.
package exporter

import (
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"NetSpeedMonitor/internal/config"
	"NetSpeedMonitor/internal/factory"
	"NetSpeedMonitor/internal/model"
)

func init() {
	factory.RegisterWriter("gob", func(def config.WriterDef) (model.Writer, error) {
		if def.Gob.RootPath == "" {
			return nil, fmt.Errorf("gob writer requires gob.root_path")
		}
		return NewGobWriter(def.Gob.RootPath, config.Duration(def.SnapshotInterval)), nil
	})
}

// FlowsFile and SummaryFile are the names written inside each snapshot
// directory.
const (
	FlowsFile   = "flows.dat"
	SummaryFile = "summary.json"
)

// SummaryData holds the metadata for a snapshot.
type SummaryData struct {
	TotalFlows      int    `json:"total_flows"`
	UploadBytes     uint64 `json:"upload_bytes"`
	DownloadBytes   uint64 `json:"download_bytes"`
	UploadPackets   uint64 `json:"upload_packets"`
	DownloadPackets uint64 `json:"download_packets"`
	TakenAt         string `json:"taken_at"`
	Timestamp       string `json:"timestamp"`
}

// GobWriter writes snapshots to disk in gob format. It implements the
// model.Writer interface.
type GobWriter struct {
	rootPath string
	interval time.Duration
}

// NewGobWriter creates a writer rooted at rootPath.
func NewGobWriter(rootPath string, interval time.Duration) *GobWriter {
	return &GobWriter{rootPath: rootPath, interval: interval}
}

// GetInterval returns the configured snapshot interval for this writer.
func (w *GobWriter) GetInterval() time.Duration {
	return w.interval
}

// Write stores the snapshot under rootPath/timestamp. Empty snapshots are
// skipped.
func (w *GobWriter) Write(snapshot *model.Snapshot, timestamp string) error {
	if snapshot == nil || len(snapshot.Flows) == 0 {
		return nil
	}

	snapshotDir := filepath.Join(w.rootPath, timestamp)
	if err := os.MkdirAll(snapshotDir, 0755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	flowsPath := filepath.Join(snapshotDir, FlowsFile)
	file, err := os.Create(flowsPath)
	if err != nil {
		return fmt.Errorf("failed to create snapshot file '%s': %w", flowsPath, err)
	}
	defer file.Close()

	if err := gob.NewEncoder(file).Encode(snapshot.Flows); err != nil {
		return fmt.Errorf("failed to encode flows to gob for file '%s': %w", flowsPath, err)
	}

	summary := SummaryData{
		TotalFlows: len(snapshot.Flows),
		TakenAt:    snapshot.TakenAt.UTC().Format(time.RFC3339),
		Timestamp:  timestamp,
	}
	for _, f := range snapshot.Flows {
		summary.UploadBytes += f.UploadBytes
		summary.DownloadBytes += f.DownloadBytes
		summary.UploadPackets += f.UploadPackets
		summary.DownloadPackets += f.DownloadPackets
	}

	summaryPath := filepath.Join(snapshotDir, SummaryFile)
	summaryFile, err := os.Create(summaryPath)
	if err != nil {
		return fmt.Errorf("failed to create summary file: %w", err)
	}
	defer summaryFile.Close()

	enc := json.NewEncoder(summaryFile)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		return fmt.Errorf("failed to encode summary to json: %w", err)
	}
	return nil
}

// ReadGobSnapshot loads the flows stored in one snapshot directory.
func ReadGobSnapshot(dir string) ([]model.FlowRecord, error) {
	file, err := os.Open(filepath.Join(dir, FlowsFile))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var flows []model.FlowRecord
	if err := gob.NewDecoder(file).Decode(&flows); err != nil {
		return nil, fmt.Errorf("failed to decode flows: %w", err)
	}
	return flows, nil
}
