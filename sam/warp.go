package sam

import (
	"image"

	"github.com/disintegration/imaging"
)

// warpImage 将原图按纯缩放仿射变换绘制到 Encoder 输入画布上
//
// 输出为 HWC 排列的 float32 像素数据 (0-255), 缩放后图像之外的画布
// 区域保持零填充, 线性插值
func warpImage(img image.Image, scale float32, canvasH, canvasW int) []float32 {
	bounds := img.Bounds()
	origW, origH := bounds.Dx(), bounds.Dy()

	newW := int(float32(origW)*scale + 0.5)
	newH := int(float32(origH)*scale + 0.5)
	if newW > canvasW {
		newW = canvasW
	}
	if newH > canvasH {
		newH = canvasH
	}

	// imaging.Resize 顺带完成任意像素格式到 RGB 的转换
	resized := imaging.Resize(img, newW, newH, imaging.Linear)

	data := make([]float32, canvasH*canvasW*3)
	for y := 0; y < newH; y++ {
		for x := 0; x < newW; x++ {
			i := resized.PixOffset(x, y)
			base := (y*canvasW + x) * 3
			data[base] = float32(resized.Pix[i])
			data[base+1] = float32(resized.Pix[i+1])
			data[base+2] = float32(resized.Pix[i+2])
		}
	}
	return data
}
