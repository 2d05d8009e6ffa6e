package sam

// maskThreshold Mask logits 的二值化阈值, 严格大于为选中
const maskThreshold = 0.0

// compositeMask 将多个通道的 logits 平面合并为单通道二值 Mask
//
// 对每个像素, 任一通道的值严格大于阈值即视为选中 (逻辑或),
// 输出为 0/255 两值的扁平 uint8 序列
func compositeMask(channels [][]float32, w, h int) []uint8 {
	out := make([]uint8, w*h)
	for _, ch := range channels {
		for i := 0; i < len(ch) && i < len(out); i++ {
			if ch[i] > maskThreshold {
				out[i] = 255
			}
		}
	}
	return out
}
