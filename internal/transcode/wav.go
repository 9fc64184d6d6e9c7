package transcode

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/zaf/g711"
)

// wavAudio holds the format and raw PCM payload of a parsed WAV container.
type wavAudio struct {
	SampleRate    uint32
	NumChannels   uint16
	BitsPerSample uint16
	PCMData       []byte
}

// IsWAV reports whether data starts with a RIFF/WAVE container header.
func IsWAV(data []byte) bool {
	return len(data) >= 12 &&
		bytes.Equal(data[0:4], []byte("RIFF")) &&
		bytes.Equal(data[8:12], []byte("WAVE"))
}

// WAVToMulaw converts a PCM16 WAV payload to raw µ-law at the given sample
// rate, downmixing stereo and resampling as needed. Payloads that already
// match the rate convert without resampling.
func WAVToMulaw(data []byte, sampleRate int) ([]byte, error) {
	if sampleRate <= 0 {
		sampleRate = 8000
	}

	audio, err := parseWAV(data)
	if err != nil {
		return nil, err
	}

	pcm, err := toMonoPCM(audio)
	if err != nil {
		return nil, err
	}
	pcm = resamplePCM(pcm, int(audio.SampleRate), sampleRate)

	return g711.EncodeUlaw(pcm), nil
}

// parseWAV walks the RIFF chunks and extracts the fmt and data payloads.
func parseWAV(data []byte) (*wavAudio, error) {
	if !IsWAV(data) {
		return nil, fmt.Errorf("not a valid RIFF/WAVE file")
	}

	r := bytes.NewReader(data[12:])
	audio := &wavAudio{}
	haveFmt := false

	for {
		var chunkID [4]byte
		if _, err := io.ReadFull(r, chunkID[:]); err != nil {
			break
		}
		var chunkSize uint32
		if err := binary.Read(r, binary.LittleEndian, &chunkSize); err != nil {
			return nil, fmt.Errorf("failed to read chunk size: %w", err)
		}

		switch string(chunkID[:]) {
		case "fmt ":
			var format uint16
			if err := binary.Read(r, binary.LittleEndian, &format); err != nil {
				return nil, fmt.Errorf("failed to read audio format: %w", err)
			}
			if format != 1 {
				return nil, fmt.Errorf("only PCM audio format (1) is supported, got %d", format)
			}
			if err := binary.Read(r, binary.LittleEndian, &audio.NumChannels); err != nil {
				return nil, fmt.Errorf("failed to read channels: %w", err)
			}
			if err := binary.Read(r, binary.LittleEndian, &audio.SampleRate); err != nil {
				return nil, fmt.Errorf("failed to read sample rate: %w", err)
			}
			// Skip byte rate and block align
			if _, err := r.Seek(6, io.SeekCurrent); err != nil {
				return nil, fmt.Errorf("failed to seek past byte rate: %w", err)
			}
			if err := binary.Read(r, binary.LittleEndian, &audio.BitsPerSample); err != nil {
				return nil, fmt.Errorf("failed to read bits per sample: %w", err)
			}
			if rest := int64(chunkSize) - 16; rest > 0 {
				if _, err := r.Seek(rest, io.SeekCurrent); err != nil {
					return nil, fmt.Errorf("failed to skip fmt extension: %w", err)
				}
			}
			haveFmt = true

		case "data":
			audio.PCMData = make([]byte, chunkSize)
			if _, err := io.ReadFull(r, audio.PCMData); err != nil {
				return nil, fmt.Errorf("failed to read audio data: %w", err)
			}

		default:
			if _, err := r.Seek(int64(chunkSize), io.SeekCurrent); err != nil {
				return nil, fmt.Errorf("failed to skip chunk %q: %w", chunkID, err)
			}
		}
		// Chunks are word aligned
		if chunkSize%2 == 1 {
			_, _ = r.Seek(1, io.SeekCurrent)
		}
	}

	if !haveFmt {
		return nil, fmt.Errorf("fmt chunk not found in WAV file")
	}
	if audio.PCMData == nil {
		return nil, fmt.Errorf("data chunk not found in WAV file")
	}
	if audio.BitsPerSample != 16 {
		return nil, fmt.Errorf("only 16-bit PCM is supported, got %d bits", audio.BitsPerSample)
	}
	return audio, nil
}

// toMonoPCM downmixes the payload to single-channel 16-bit PCM.
func toMonoPCM(audio *wavAudio) ([]byte, error) {
	switch audio.NumChannels {
	case 1:
		return audio.PCMData, nil
	case 2:
		mono := make([]byte, len(audio.PCMData)/2)
		for i := 0; i+3 < len(audio.PCMData); i += 4 {
			left := int16(audio.PCMData[i]) | int16(audio.PCMData[i+1])<<8
			right := int16(audio.PCMData[i+2]) | int16(audio.PCMData[i+3])<<8
			sample := (int32(left) + int32(right)) / 2
			mono[i/2] = byte(sample & 0xFF)
			mono[i/2+1] = byte((sample >> 8) & 0xFF)
		}
		return mono, nil
	default:
		return nil, fmt.Errorf("unsupported number of channels: %d", audio.NumChannels)
	}
}

// resamplePCM converts mono 16-bit PCM between sample rates with linear
// interpolation.
func resamplePCM(pcm []byte, from, to int) []byte {
	if from == to || from <= 0 {
		return pcm
	}

	ratio := float64(from) / float64(to)
	inSamples := len(pcm) / 2
	outSamples := int(float64(inSamples) / ratio)
	out := make([]byte, 0, outSamples*2)

	for i := 0; i < outSamples; i++ {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		if srcIdx+1 >= inSamples {
			break
		}

		s1 := int16(pcm[srcIdx*2]) | int16(pcm[srcIdx*2+1])<<8
		s2 := int16(pcm[(srcIdx+1)*2]) | int16(pcm[(srcIdx+1)*2+1])<<8
		sample := int16(float64(s1)*(1-frac) + float64(s2)*frac)

		out = append(out, byte(sample&0xFF), byte((sample>>8)&0xFF))
	}
	return out
}
