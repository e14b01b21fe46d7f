package exporter

import (
	"context"
	"fmt"
	"log"
	"time"

	"NetSpeedMonitor/internal/config"
	"NetSpeedMonitor/internal/factory"
	"NetSpeedMonitor/internal/model"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

func init() {
	factory.RegisterWriter("clickhouse", func(def config.WriterDef) (model.Writer, error) {
		return NewClickHouseWriter(def.ClickHouse, config.Duration(def.SnapshotInterval))
	})
}

const createTableStatement = `
CREATE TABLE IF NOT EXISTS traffic_flows (
    Timestamp       DateTime,
    LocalIP         String,
    LocalPort       UInt16,
    RemoteIP        String,
    RemotePort      UInt16,
    Protocol        UInt8,
    FirstSeen       DateTime64(3),
    LastSeen        DateTime64(3),
    UploadBytes     UInt64,
    DownloadBytes   UInt64,
    UploadPackets   UInt64,
    DownloadPackets UInt64
) ENGINE = MergeTree()
PARTITION BY toYYYYMM(Timestamp)
ORDER BY (LocalIP, Timestamp);
`

// ClickHouseWriter implements the model.Writer interface for ClickHouse.
type ClickHouseWriter struct {
	conn     driver.Conn
	interval time.Duration
}

// NewClickHouseWriter connects and makes sure the traffic_flows table exists.
func NewClickHouseWriter(cfg config.ClickHouseConfig, interval time.Duration) (*ClickHouseWriter, error) {
	conn, err := connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}

	if err := conn.Exec(context.Background(), createTableStatement); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}
	log.Println("Successfully connected to ClickHouse and ensured table exists.")

	return &ClickHouseWriter{conn: conn, interval: interval}, nil
}

// GetInterval returns the configured snapshot interval for this writer.
func (w *ClickHouseWriter) GetInterval() time.Duration {
	return w.interval
}

func connect(cfg config.ClickHouseConfig) (driver.Conn, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, err
	}

	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}
	return conn, nil
}

// Write inserts every flow of the snapshot as one row.
func (w *ClickHouseWriter) Write(snapshot *model.Snapshot, timestamp string) error {
	if snapshot == nil || len(snapshot.Flows) == 0 {
		return nil
	}

	batch, err := w.conn.PrepareBatch(context.Background(), "INSERT INTO traffic_flows")
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	snapshotTime, err := time.ParseInLocation("2006-01-02_15-04-05", timestamp, time.Local)
	if err != nil {
		snapshotTime = snapshot.TakenAt
	}

	for _, f := range snapshot.Flows {
		err = batch.Append(
			snapshotTime,
			f.Key.LocalIP.String(),
			f.Key.LocalPort,
			f.Key.RemoteIP.String(),
			f.Key.RemotePort,
			uint8(f.Protocol),
			f.FirstSeen,
			f.LastSeen,
			f.UploadBytes,
			f.DownloadBytes,
			f.UploadPackets,
			f.DownloadPackets,
		)
		if err != nil {
			return fmt.Errorf("failed to append flow to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}
	log.Printf("Wrote %d flows to ClickHouse", len(snapshot.Flows))
	return nil
}

// Close releases the connection.
func (w *ClickHouseWriter) Close() error {
	return w.conn.Close()
}
