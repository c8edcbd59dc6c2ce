// Package samplefile reads sample file headers without decoding audio.
package samplefile

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

var ErrNotWAV = errors.New("not a RIFF/WAVE file")

// Info describes the audio stored in a sample file.
type Info struct {
	Channels      int
	SampleRate    int
	BitsPerSample int
	Format        int // 1 = PCM, 3 = IEEE float
	Frames        int64
}

func (i Info) Stereo() bool { return i.Channels >= 2 }

// Probe reads the header of the WAV file at path.
func Probe(path string) (Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return Info{}, err
	}
	defer f.Close()
	info, err := Read(f)
	if err != nil {
		return Info{}, fmt.Errorf("%s: %w", path, err)
	}
	return info, nil
}

// Read walks RIFF chunks until both "fmt " and "data" have been seen.
func Read(r io.Reader) (Info, error) {
	var hdr [12]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return Info{}, ErrNotWAV
	}
	if string(hdr[0:4]) != "RIFF" || string(hdr[8:12]) != "WAVE" {
		return Info{}, ErrNotWAV
	}

	var info Info
	haveFmt := false
	for {
		var chunk [8]byte
		if _, err := io.ReadFull(r, chunk[:]); err != nil {
			if haveFmt {
				return info, nil
			}
			return Info{}, fmt.Errorf("missing fmt chunk: %w", ErrNotWAV)
		}
		id := string(chunk[0:4])
		size := int64(binary.LittleEndian.Uint32(chunk[4:8]))
		switch id {
		case "fmt ":
			if size < 16 {
				return Info{}, fmt.Errorf("short fmt chunk (%d bytes)", size)
			}
			body := make([]byte, size)
			if _, err := io.ReadFull(r, body); err != nil {
				return Info{}, fmt.Errorf("read fmt chunk: %w", err)
			}
			info.Format = int(binary.LittleEndian.Uint16(body[0:2]))
			info.Channels = int(binary.LittleEndian.Uint16(body[2:4]))
			info.SampleRate = int(binary.LittleEndian.Uint32(body[4:8]))
			info.BitsPerSample = int(binary.LittleEndian.Uint16(body[14:16]))
			if info.Format == 0xFFFE && size >= 26 {
				// WAVE_FORMAT_EXTENSIBLE: the real format tag leads the subformat GUID.
				info.Format = int(binary.LittleEndian.Uint16(body[24:26]))
			}
			haveFmt = true
			if size%2 == 1 {
				skip(r, 1)
			}
		case "data":
			if !haveFmt {
				return Info{}, fmt.Errorf("data before fmt chunk: %w", ErrNotWAV)
			}
			if frameBytes := int64(info.Channels * info.BitsPerSample / 8); frameBytes > 0 {
				info.Frames = size / frameBytes
			}
			return info, nil
		default:
			if err := skip(r, size+size%2); err != nil {
				return Info{}, fmt.Errorf("skip %q chunk: %w", id, err)
			}
		}
	}
}

func skip(r io.Reader, n int64) error {
	if s, ok := r.(io.Seeker); ok {
		_, err := s.Seek(n, io.SeekCurrent)
		return err
	}
	_, err := io.CopyN(io.Discard, r, n)
	return err
}
