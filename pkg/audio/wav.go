package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// wavHeaderSize is the size of a canonical RIFF/WAVE header with a single
// 16-byte PCM fmt chunk followed directly by the data chunk.
const wavHeaderSize = 44

// ErrNotWAV is returned by [DecodeWAV] when the input does not begin with a
// RIFF/WAVE header.
var ErrNotWAV = errors.New("audio: not a RIFF/WAVE file")

// EncodeWAV wraps raw 16-bit signed little-endian PCM data in a standard
// RIFF/WAV container. The returned byte slice is suitable for blob storage
// or direct inclusion in a multipart upload.
func EncodeWAV(pcm []byte, f Format) []byte {
	byteRate := f.BytesPerSecond()
	blockAlign := f.Channels * bytesPerSample
	dataSize := len(pcm)

	buf := make([]byte, wavHeaderSize+dataSize)

	// RIFF chunk descriptor
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize)) // file size − 8
	copy(buf[8:12], "WAVE")

	// fmt sub-chunk
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16) // sub-chunk size (PCM)
	binary.LittleEndian.PutUint16(buf[20:22], 1)  // audio format: PCM
	binary.LittleEndian.PutUint16(buf[22:24], uint16(f.Channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(f.SampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], bytesPerSample*8)

	// data sub-chunk
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	copy(buf[44:], pcm)

	return buf
}

// DecodeWAV parses a RIFF/WAVE container and returns its PCM payload and
// format. Only uncompressed 16-bit PCM is supported; chunks other than
// "fmt " and "data" are skipped. The returned PCM slice aliases data.
func DecodeWAV(data []byte) ([]byte, Format, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, Format{}, ErrNotWAV
	}

	var (
		f       Format
		haveFmt bool
		pcm     []byte
	)

	// Walk the chunk list. Chunks are word-aligned; a chunk with an odd size
	// is followed by one padding byte.
	off := 12
	for off+8 <= len(data) {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8
		if body+size > len(data) {
			return nil, Format{}, fmt.Errorf("audio: truncated WAV chunk %q", id)
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, Format{}, fmt.Errorf("audio: short fmt chunk (%d bytes)", size)
			}
			audioFormat := binary.LittleEndian.Uint16(data[body : body+2])
			if audioFormat != 1 {
				return nil, Format{}, fmt.Errorf("audio: unsupported WAV format %d (want PCM)", audioFormat)
			}
			bits := binary.LittleEndian.Uint16(data[body+14 : body+16])
			if bits != 16 {
				return nil, Format{}, fmt.Errorf("audio: unsupported bit depth %d (want 16)", bits)
			}
			f.Channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			f.SampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			haveFmt = true
		case "data":
			pcm = data[body : body+size]
		}

		off = body + size
		if size%2 == 1 {
			off++
		}
	}

	if !haveFmt || pcm == nil {
		return nil, Format{}, errors.New("audio: WAV missing fmt or data chunk")
	}
	if !f.Valid() {
		return nil, Format{}, fmt.Errorf("audio: invalid WAV format %s", f)
	}
	return pcm, f, nil
}
