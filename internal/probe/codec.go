package probe

import (
	"fmt"
	"net/netip"
	"time"

	"NetSpeedMonitor/internal/model"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// EncodeSnapshot serializes a snapshot to a protobuf Struct. Counters are
// carried as numbers, which is exact up to 2^53.
func EncodeSnapshot(s *model.Snapshot) ([]byte, error) {
	flows := make([]any, 0, len(s.Flows))
	for _, f := range s.Flows {
		flows = append(flows, map[string]any{
			"local_ip":         f.Key.LocalIP.String(),
			"local_port":       float64(f.Key.LocalPort),
			"remote_ip":        f.Key.RemoteIP.String(),
			"remote_port":      float64(f.Key.RemotePort),
			"protocol":         float64(f.Protocol),
			"upload_bytes":     float64(f.UploadBytes),
			"download_bytes":   float64(f.DownloadBytes),
			"upload_packets":   float64(f.UploadPackets),
			"download_packets": float64(f.DownloadPackets),
			"first_seen":       f.FirstSeen.UTC().Format(time.RFC3339Nano),
			"last_seen":        f.LastSeen.UTC().Format(time.RFC3339Nano),
		})
	}

	msg, err := structpb.NewStruct(map[string]any{
		"taken_at": s.TakenAt.UTC().Format(time.RFC3339Nano),
		"flows":    flows,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build snapshot message: %w", err)
	}
	return proto.Marshal(msg)
}

// DecodeSnapshot is the inverse of EncodeSnapshot.
func DecodeSnapshot(data []byte) (*model.Snapshot, error) {
	var msg structpb.Struct
	if err := proto.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("error unmarshalling protobuf: %w", err)
	}
	fields := msg.GetFields()

	takenAt, err := time.Parse(time.RFC3339Nano, fields["taken_at"].GetStringValue())
	if err != nil {
		return nil, fmt.Errorf("invalid taken_at: %w", err)
	}

	s := &model.Snapshot{TakenAt: takenAt}
	for i, v := range fields["flows"].GetListValue().GetValues() {
		f, err := decodeFlow(v.GetStructValue().GetFields())
		if err != nil {
			return nil, fmt.Errorf("flow %d: %w", i, err)
		}
		s.Flows = append(s.Flows, f)
	}
	return s, nil
}

func decodeFlow(fields map[string]*structpb.Value) (model.FlowRecord, error) {
	var rec model.FlowRecord

	local, err := netip.ParseAddr(fields["local_ip"].GetStringValue())
	if err != nil {
		return rec, fmt.Errorf("invalid local_ip: %w", err)
	}
	remote, err := netip.ParseAddr(fields["remote_ip"].GetStringValue())
	if err != nil {
		return rec, fmt.Errorf("invalid remote_ip: %w", err)
	}
	first, err := time.Parse(time.RFC3339Nano, fields["first_seen"].GetStringValue())
	if err != nil {
		return rec, fmt.Errorf("invalid first_seen: %w", err)
	}
	last, err := time.Parse(time.RFC3339Nano, fields["last_seen"].GetStringValue())
	if err != nil {
		return rec, fmt.Errorf("invalid last_seen: %w", err)
	}

	num := func(name string) float64 { return fields[name].GetNumberValue() }
	p := model.Protocol(num("protocol"))
	rec = model.FlowRecord{
		Key: model.FlowKey{
			LocalIP:    local,
			LocalPort:  uint16(num("local_port")),
			RemoteIP:   remote,
			RemotePort: uint16(num("remote_port")),
			Protocol:   p,
		},
		Protocol:        p,
		UploadBytes:     uint64(num("upload_bytes")),
		DownloadBytes:   uint64(num("download_bytes")),
		UploadPackets:   uint64(num("upload_packets")),
		DownloadPackets: uint64(num("download_packets")),
		FirstSeen:       first,
		LastSeen:        last,
	}
	return rec, nil
}
