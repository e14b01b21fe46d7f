package main

import (
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"strings"
	"text/tabwriter"

	"NetSpeedMonitor/internal/config"
	"NetSpeedMonitor/internal/engine/manager"
	"NetSpeedMonitor/internal/intake"
	"NetSpeedMonitor/internal/store"
	"NetSpeedMonitor/internal/topology"
	"NetSpeedMonitor/pkg/pcap"
)

func main() {
	local := flag.String("local", "", "Comma-separated local subnets in CIDR form, e.g. 192.168.1.10/24. Defaults to this host's interfaces.")
	top := flag.Int("top", 20, "Number of flows to print.")
	configPath := flag.String("config", "", "Optional configuration file; when set, its enabled writers receive the final snapshot.")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] <path_to_pcap_file>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(1)
	}
	pcapFilePath := flag.Arg(0)

	topo, err := buildTopology(*local)
	if err != nil {
		log.Fatalf("Failed to build topology: %v", err)
	}
	for _, s := range topo.Subnets() {
		log.Printf("Local subnet %s", s)
	}
	current := &topology.Current{}
	current.Store(topo)

	flows := store.New(0)

	var exporter *manager.Manager
	if *configPath != "" {
		cfg, err := config.LoadConfig(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		exporter, err = manager.NewManager(cfg, flows)
		if err != nil {
			log.Fatalf("Failed to create exporter: %v", err)
		}
	}

	reader, err := pcap.NewReader(pcapFilePath)
	if err != nil {
		log.Fatalf("Failed to open pcap file: %v", err)
	}
	defer reader.Close()
	log.Printf("Reading frames from '%s' (%s)...", pcapFilePath, reader.LinkType())

	handler := intake.NewPipeline(flows, current, nil, nil).NewHandler(pcapFilePath, reader.LinkType())
	count, err := reader.ReadFrames(handler)
	if err != nil {
		log.Printf("Replay stopped early: %v", err)
	}
	log.Printf("Finished reading %d frames.", count)

	snapshot := flows.Snapshot()
	up, down := snapshot.Totals()
	fmt.Printf("%d flows, %d bytes up, %d bytes down\n\n", len(snapshot.Flows), up, down)

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "LOCAL\tREMOTE\tPROTO\tUP\tDOWN\tPACKETS")
	for i, f := range snapshot.Flows {
		if *top > 0 && i >= *top {
			break
		}
		fmt.Fprintf(tw, "%s:%d\t%s:%d\t%s\t%d\t%d\t%d\n",
			f.Key.LocalIP, f.Key.LocalPort, f.Key.RemoteIP, f.Key.RemotePort, f.Protocol,
			f.UploadBytes, f.DownloadBytes, f.UploadPackets+f.DownloadPackets)
	}
	tw.Flush()

	if exporter != nil {
		// Stop writes the final snapshot to every writer.
		exporter.Start()
		exporter.Stop()
	}
}

func buildTopology(cidrs string) (*topology.Topology, error) {
	if cidrs == "" {
		ifaces, err := topology.HostInterfaces()
		if err != nil {
			return nil, err
		}
		return topology.Rebuild(ifaces), nil
	}

	var subnets []topology.Subnet
	for _, c := range strings.Split(cidrs, ",") {
		ip, ipnet, err := net.ParseCIDR(strings.TrimSpace(c))
		if err != nil {
			return nil, fmt.Errorf("invalid subnet %q: %w", c, err)
		}
		s, err := topology.NewSubnet("cli", ip, ipnet.Mask)
		if err != nil {
			return nil, err
		}
		subnets = append(subnets, s)
	}
	return topology.New(subnets...), nil
}
