package media

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sineWave(samples int, freq float64, sampleRate int) []int16 {
	pcm := make([]int16, samples)
	for i := range pcm {
		pcm[i] = int16(12000 * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate)))
	}
	return pcm
}

func TestPCMToWAVHeader(t *testing.T) {
	pcm := Int16ToBytes(sineWave(1600, 440, 16000))
	data, err := PCMToWAV(pcm, 16000, 1)
	require.NoError(t, err)
	require.Len(t, data, 44+len(pcm))

	assert.Equal(t, "RIFF", string(data[0:4]))
	assert.Equal(t, uint32(36+len(pcm)), binary.LittleEndian.Uint32(data[4:8]))
	assert.Equal(t, "WAVE", string(data[8:12]))
	assert.Equal(t, "fmt ", string(data[12:16]))
	assert.Equal(t, uint16(1), binary.LittleEndian.Uint16(data[22:24]))
	assert.Equal(t, uint32(16000), binary.LittleEndian.Uint32(data[24:28]))
	assert.Equal(t, "data", string(data[36:40]))
	assert.Equal(t, uint32(len(pcm)), binary.LittleEndian.Uint32(data[40:44]))
	assert.True(t, IsWAV(data))
}

func TestIsWAVRejectsShortOrGarbage(t *testing.T) {
	assert.False(t, IsWAV(nil))
	assert.False(t, IsWAV([]byte("RIFF")))
	assert.False(t, IsWAV(make([]byte, 64)))
}

func TestBytesInt16RoundTrip(t *testing.T) {
	pcm := []int16{0, 1, -1, 32767, -32768, 12345}
	assert.Equal(t, pcm, BytesToInt16(Int16ToBytes(pcm)))
}

func TestDurationSeconds(t *testing.T) {
	assert.InDelta(t, 1.0, DurationSeconds(16000, 16000), 1e-9)
	assert.InDelta(t, 0.5, DurationSeconds(8000, 16000), 1e-9)
	assert.Zero(t, DurationSeconds(100, 0))
}

func TestNormalizePeak(t *testing.T) {
	t.Run("near-silence passes through", func(t *testing.T) {
		in := []int16{0, 50, -99, 10}
		assert.Equal(t, in, NormalizePeak(in))
	})

	t.Run("hot signal untouched", func(t *testing.T) {
		in := []int16{20000, -20000, 5000}
		assert.Equal(t, in, NormalizePeak(in))
	})

	t.Run("quiet signal gained to -3dBFS", func(t *testing.T) {
		out := NormalizePeak([]int16{0, 250, -500, 125})
		var peak int32
		for _, s := range out {
			v := int32(s)
			if v < 0 {
				v = -v
			}
			if v > peak {
				peak = v
			}
		}
		assert.InDelta(t, 23198, float64(peak), 1)
	})

	t.Run("never exceeds int16 range", func(t *testing.T) {
		for _, s := range NormalizePeak([]int16{16000, -16000, 8000}) {
			assert.GreaterOrEqual(t, int32(s), int32(-32768))
			assert.LessOrEqual(t, int32(s), int32(32767))
		}
	})
}

func TestResample24To16(t *testing.T) {
	t.Run("ratio", func(t *testing.T) {
		out := Resample24To16(make([]int16, 2400))
		assert.Len(t, out, 1600)
	})

	t.Run("empty", func(t *testing.T) {
		assert.Nil(t, Resample24To16(nil))
	})

	t.Run("constant stays constant", func(t *testing.T) {
		in := make([]int16, 24)
		for i := range in {
			in[i] = 100
		}
		for _, s := range Resample24To16(in) {
			assert.Equal(t, int16(100), s)
		}
	})

	t.Run("interpolates odd samples", func(t *testing.T) {
		in := []int16{0, 30, 60, 90, 120, 150}
		assert.Equal(t, []int16{0, 45, 90, 135}, Resample24To16(in))
	})
}

func TestOpusEncodeDecodeRoundTrip(t *testing.T) {
	enc, err := NewEncoder(16000, 1, 24000)
	require.NoError(t, err)
	dec, err := NewDecoder(16000, 1)
	require.NoError(t, err)

	pcm := sineWave(1920, 440, 16000) // 两帧整
	frames, err := enc.EncodeFrames(pcm, 960)
	require.NoError(t, err)
	require.Len(t, frames, 2)

	decoded, err := dec.DecodeAll(frames)
	require.NoError(t, err)
	assert.Len(t, decoded, 1920)
}

func TestEncodeFramesPadsTail(t *testing.T) {
	enc, err := NewEncoder(16000, 1, 24000)
	require.NoError(t, err)
	dec, err := NewDecoder(16000, 1)
	require.NoError(t, err)

	frames, err := enc.EncodeFrames(sineWave(1000, 440, 16000), 960)
	require.NoError(t, err)
	require.Len(t, frames, 2)

	decoded, err := dec.DecodeAll(frames)
	require.NoError(t, err)
	assert.Len(t, decoded, 1920)
}

func TestDecodeFrameRejectsEmpty(t *testing.T) {
	dec, err := NewDecoder(16000, 1)
	require.NoError(t, err)
	_, err = dec.DecodeFrame(nil)
	assert.Error(t, err)
}

func TestSilenceFrame(t *testing.T) {
	frame, err := SilenceFrame(16000, 1, 960)
	require.NoError(t, err)
	assert.NotEmpty(t, frame)

	dec, err := NewDecoder(16000, 1)
	require.NoError(t, err)
	pcm, err := dec.DecodeFrame(frame)
	require.NoError(t, err)
	assert.Len(t, pcm, 960)
}
