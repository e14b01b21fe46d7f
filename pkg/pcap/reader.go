// Package pcap replays capture files frame by frame.
package pcap

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

var pcapngMagic = []byte{0x0a, 0x0d, 0x0d, 0x0a}

type packetReader interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
	LinkType() layers.LinkType
}

// Reader reads frames from a pcap or pcapng file.
type Reader struct {
	file *os.File
	src  packetReader
}

// NewReader opens filePath. The format is detected from the file magic.
func NewReader(filePath string) (*Reader, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}

	br := bufio.NewReader(file)
	magic, err := br.Peek(4)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to read file magic: %w", err)
	}

	var src packetReader
	if bytes.Equal(magic, pcapngMagic) {
		src, err = pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
	} else {
		src, err = pcapgo.NewReader(br)
	}
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to open capture file %s: %w", filePath, err)
	}
	return &Reader{file: file, src: src}, nil
}

// LinkType returns the link type of the frames in the file.
func (r *Reader) LinkType() layers.LinkType {
	return r.src.LinkType()
}

// Close closes the underlying file.
func (r *Reader) Close() error {
	return r.file.Close()
}

// ReadFrames hands every frame to handler and returns the number of frames
// read. A truncated final record ends the replay without error.
func (r *Reader) ReadFrames(handler func(data []byte, ci gopacket.CaptureInfo)) (int, error) {
	count := 0
	for {
		data, ci, err := r.src.ReadPacketData()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return count, nil
			}
			return count, err
		}
		handler(data, ci)
		count++
	}
}
