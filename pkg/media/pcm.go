package media

import "encoding/binary"

// 响度阈值，满幅按 32768 计
const (
	silencePeak  = 100   // 低于此不做增益
	hotPeak      = 16422 // -6 dBFS，高于此不再增益
	targetPeak   = 23198 // -3 dBFS，归一化目标
	maxInt16Amp  = 32767
	minInt16Amp  = -32768
	bytesPerSamp = 2
)

// BytesToInt16 小端 s16le 字节流转采样，奇数尾字节丢弃
func BytesToInt16(b []byte) []int16 {
	n := len(b) / bytesPerSamp
	pcm := make([]int16, n)
	for i := 0; i < n; i++ {
		pcm[i] = int16(binary.LittleEndian.Uint16(b[i*bytesPerSamp:]))
	}
	return pcm
}

// Int16ToBytes 采样转小端 s16le 字节流
func Int16ToBytes(pcm []int16) []byte {
	b := make([]byte, len(pcm)*bytesPerSamp)
	for i, s := range pcm {
		binary.LittleEndian.PutUint16(b[i*bytesPerSamp:], uint16(s))
	}
	return b
}

// DurationSeconds 单声道 PCM 的播放时长
func DurationSeconds(samples, sampleRate int) float64 {
	if sampleRate <= 0 {
		return 0
	}
	return float64(samples) / float64(sampleRate)
}

// NormalizePeak 识别前的响度预处理（麦克风信号普遍偏小）。
// 峰值低于静音阈值或已超过 -6 dBFS 时原样返回，
// 其余线性增益到 -3 dBFS 并截幅到 int16。
func NormalizePeak(pcm []int16) []int16 {
	var peak int32
	for _, s := range pcm {
		v := int32(s)
		if v < 0 {
			v = -v
		}
		if v > peak {
			peak = v
		}
	}
	if peak < silencePeak || peak > hotPeak {
		return pcm
	}
	gain := float64(targetPeak) / float64(peak)
	out := make([]int16, len(pcm))
	for i, s := range pcm {
		v := int32(float64(s) * gain)
		if v > maxInt16Amp {
			v = maxInt16Amp
		} else if v < minInt16Amp {
			v = minInt16Amp
		}
		out[i] = int16(v)
	}
	return out
}
