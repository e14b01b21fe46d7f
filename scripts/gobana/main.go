package main

import (
	"fmt"
	"log"
	"os"

	"NetSpeedMonitor/internal/exporter"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: go run ./scripts/gobana/main.go <snapshot_dir>")
		os.Exit(1)
	}
	dir := os.Args[1]

	flows, err := exporter.ReadGobSnapshot(dir)
	if err != nil {
		log.Fatalf("Failed to read snapshot: %v", err)
	}

	fmt.Printf("Decoded %d flows:\n", len(flows))
	for _, f := range flows {
		fmt.Printf("%s %s up=%d/%dpkt down=%d/%dpkt last=%s\n",
			f.Key, f.Protocol, f.UploadBytes, f.UploadPackets, f.DownloadBytes, f.DownloadPackets,
			f.LastSeen.Format("15:04:05"))
	}
}
