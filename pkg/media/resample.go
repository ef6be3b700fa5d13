package media

// Resample24To16 把 24kHz 单声道 PCM 线性插值降采样到 16kHz（比例 2/3）。
// 输出第 i 个采样对应输入位置 i*1.5：偶数下标直取，奇数下标取相邻两点均值。
func Resample24To16(in []int16) []int16 {
	if len(in) == 0 {
		return nil
	}
	n := len(in) * 2 / 3
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		pos := i * 3 / 2
		if i%2 == 0 || pos+1 >= len(in) {
			out[i] = in[pos]
		} else {
			out[i] = int16((int32(in[pos]) + int32(in[pos+1])) / 2)
		}
	}
	return out
}
