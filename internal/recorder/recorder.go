// Package recorder writes raw captured frames to per-device pcap files.
package recorder

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// frame is one captured frame queued for writing. data is owned by the
// frame, never by the capture buffer.
type frame struct {
	device string
	link   layers.LinkType
	ci     gopacket.CaptureInfo
	data   []byte
}

type output struct {
	file   *os.File
	writer *pcapgo.Writer
}

// Recorder persists frames in the background. Enqueue never blocks: frames
// are dropped when the channel is full.
type Recorder struct {
	dir     string
	snapLen uint32
	stamp   string

	frames  chan frame
	outputs map[string]*output
	wg      sync.WaitGroup

	mu      sync.Mutex
	stopped bool
	dropped uint64
}

// New creates dir if needed and starts the writer goroutine.
func New(dir string, snapLen uint32, bufferSize int) (*Recorder, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create recording directory: %w", err)
	}
	if bufferSize <= 0 {
		bufferSize = 10000
	}
	if snapLen == 0 {
		snapLen = 65535
	}

	r := &Recorder{
		dir:     dir,
		snapLen: snapLen,
		stamp:   time.Now().Format("2006-01-02_15-04-05"),
		frames:  make(chan frame, bufferSize),
		outputs: make(map[string]*output),
	}
	r.wg.Add(1)
	go r.run()
	log.Printf("Recorder: writing frames to %s", dir)
	return r, nil
}

// Enqueue copies data and queues it for writing.
func (r *Recorder) Enqueue(device string, link layers.LinkType, ci gopacket.CaptureInfo, data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return
	}

	f := frame{device: device, link: link, ci: ci, data: append([]byte(nil), data...)}
	select {
	case r.frames <- f:
	default:
		r.dropped++
		if r.dropped%1000 == 1 {
			log.Printf("Recorder: channel is full, %d frames dropped so far", r.dropped)
		}
	}
}

// Dropped returns the number of frames dropped because the queue was full.
func (r *Recorder) Dropped() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

// Stop flushes queued frames and closes every file.
func (r *Recorder) Stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	close(r.frames)
	r.mu.Unlock()

	r.wg.Wait()
	for name, out := range r.outputs {
		if err := out.file.Close(); err != nil {
			log.Printf("Recorder: error closing file for %s: %v", name, err)
		}
	}
	log.Println("Recorder stopped and files closed.")
}

func (r *Recorder) run() {
	defer r.wg.Done()
	for f := range r.frames {
		out, err := r.outputFor(f.device, f.link)
		if err != nil {
			log.Printf("Recorder: %v", err)
			continue
		}
		if err := out.writer.WritePacket(f.ci, f.data); err != nil {
			log.Printf("Recorder: error writing frame from %s: %v", f.device, err)
		}
	}
}

// outputFor opens the file for device on first use. Only run touches
// outputs before Stop.
func (r *Recorder) outputFor(device string, link layers.LinkType) (*output, error) {
	if out, ok := r.outputs[device]; ok {
		return out, nil
	}
	path := filepath.Join(r.dir, fmt.Sprintf("%s_%s.pcap", r.stamp, sanitize(device)))
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", path, err)
	}
	w := pcapgo.NewWriter(file)
	if err := w.WriteFileHeader(r.snapLen, link); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to write pcap header to %s: %w", path, err)
	}
	out := &output{file: file, writer: w}
	r.outputs[device] = out
	return out, nil
}

// sanitize turns a device name such as \Device\NPF_{GUID} into a file name.
func sanitize(device string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '\\', '/', ':', '{', '}', '*', '?', '"', '<', '>', '|', ' ':
			return '_'
		}
		return r
	}, device)
}
