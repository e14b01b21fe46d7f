package exporter

import (
	"encoding/json"
	"net/netip"
	"os"
	"path/filepath"
	"testing"
	"time"

	"NetSpeedMonitor/internal/model"
)

func TestGobWriter_Write(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	snapshot := &model.Snapshot{
		TakenAt: now,
		Flows: []model.FlowRecord{
			{
				Key: model.FlowKey{
					LocalIP:    netip.MustParseAddr("10.0.0.5"),
					LocalPort:  50000,
					RemoteIP:   netip.MustParseAddr("93.184.216.34"),
					RemotePort: 443,
					Protocol:   model.ProtocolTCP,
				},
				Protocol:        model.ProtocolTCP,
				UploadBytes:     300,
				DownloadBytes:   1200,
				UploadPackets:   2,
				DownloadPackets: 3,
				FirstSeen:       now.Add(-time.Minute),
				LastSeen:        now,
			},
		},
	}

	tmpDir := t.TempDir()
	writer := NewGobWriter(tmpDir, time.Minute)
	if writer.GetInterval() != time.Minute {
		t.Fatalf("Unexpected interval %s", writer.GetInterval())
	}
	if err := writer.Write(snapshot, "2024-03-01_12-00-00"); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	dir := filepath.Join(tmpDir, "2024-03-01_12-00-00")
	summaryBytes, err := os.ReadFile(filepath.Join(dir, SummaryFile))
	if err != nil {
		t.Fatalf("Failed to read summary.json: %v", err)
	}
	var summary SummaryData
	if err := json.Unmarshal(summaryBytes, &summary); err != nil {
		t.Fatalf("Failed to unmarshal summary.json: %v", err)
	}
	if summary.TotalFlows != 1 || summary.UploadBytes != 300 || summary.DownloadBytes != 1200 {
		t.Errorf("Unexpected summary: %+v", summary)
	}
	if summary.UploadPackets != 2 || summary.DownloadPackets != 3 {
		t.Errorf("Unexpected packet totals: %+v", summary)
	}

	flows, err := ReadGobSnapshot(dir)
	if err != nil {
		t.Fatalf("ReadGobSnapshot failed: %v", err)
	}
	if len(flows) != 1 {
		t.Fatalf("Expected 1 flow, got %d", len(flows))
	}
	got := flows[0]
	if got.Key != snapshot.Flows[0].Key {
		t.Errorf("Key mismatch: %v != %v", got.Key, snapshot.Flows[0].Key)
	}
	if got.TotalBytes() != 1500 || !got.LastSeen.Equal(now) {
		t.Errorf("Unexpected decoded flow: %+v", got)
	}
}

func TestGobWriter_SkipsEmptySnapshot(t *testing.T) {
	tmpDir := t.TempDir()
	writer := NewGobWriter(tmpDir, time.Minute)
	if err := writer.Write(&model.Snapshot{TakenAt: time.Now()}, "2024-03-01_12-00-00"); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	entries, err := os.ReadDir(tmpDir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("Expected no snapshot directory for an empty snapshot, found %d entries", len(entries))
	}
}
