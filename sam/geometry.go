package sam

import (
	"fmt"
	"math"
)

// affine 3x3 仿射变换矩阵, 本管线中只包含各向缩放分量
type affine [3][3]float32

// newScaleAffine 构建纯缩放变换
func newScaleAffine(scale float32) affine {
	return affine{
		{scale, 0, 0},
		{0, scale, 0},
		{0, 0, 1},
	}
}

// apply 对单个坐标做齐次变换, 丢弃第三分量
func (m affine) apply(x, y float32) (float32, float32) {
	nx := m[0][0]*x + m[0][1]*y + m[0][2]
	ny := m[1][0]*x + m[1][1]*y + m[1][2]
	return nx, ny
}

// applyBatch 对扁平坐标序列 [x0, y0, x1, y1, ...] 做齐次变换, 不修改输入
func (m affine) applyBatch(coords []float32) []float32 {
	out := make([]float32, len(coords))
	for i := 0; i+1 < len(coords); i += 2 {
		out[i], out[i+1] = m.apply(coords[i], coords[i+1])
	}
	return out
}

// invert 求逆矩阵, 行列式接近零时返回 ErrDegenerateGeometry
func (m affine) invert() (affine, error) {
	a := float64(m[0][0])
	b := float64(m[0][1])
	c := float64(m[0][2])
	d := float64(m[1][0])
	e := float64(m[1][1])
	f := float64(m[1][2])
	g := float64(m[2][0])
	h := float64(m[2][1])
	i := float64(m[2][2])

	det := a*(e*i-f*h) - b*(d*i-f*g) + c*(d*h-e*g)
	if math.Abs(det) < 1e-12 || math.IsNaN(det) || math.IsInf(det, 0) {
		return affine{}, fmt.Errorf("%w: 行列式为 %v", ErrDegenerateGeometry, det)
	}

	inv := affine{
		{float32((e*i - f*h) / det), float32((c*h - b*i) / det), float32((b*f - c*e) / det)},
		{float32((f*g - d*i) / det), float32((a*i - c*g) / det), float32((c*d - a*f) / det)},
		{float32((d*h - e*g) / det), float32((b*g - a*h) / det), float32((a*e - b*d) / det)},
	}
	return inv, nil
}

// preprocessShape 将 (oldH, oldW) 等比缩放, 使长边恰好等于 longSide, 短边四舍五入
func preprocessShape(oldH, oldW, longSide int) (newH, newW int) {
	scale := float64(longSide) / float64(max(oldH, oldW))
	newH = int(float64(oldH)*scale + 0.5)
	newW = int(float64(oldW)*scale + 0.5)
	return newH, newW
}

// applyCoords 将基于 (oldH, oldW) 的坐标序列按轴缩放到 longSide 长边约定下, 不修改输入
//
// # Params:
//
//	coords: 扁平坐标序列 [x0, y0, x1, y1, ...]
//	oldH, oldW: 坐标原参考尺寸
//	longSide: 目标长边尺寸
func applyCoords(coords []float32, oldH, oldW, longSide int) []float32 {
	newH, newW := preprocessShape(oldH, oldW, longSide)
	sx := float32(newW) / float32(oldW)
	sy := float32(newH) / float32(oldH)

	out := make([]float32, len(coords))
	for i := 0; i+1 < len(coords); i += 2 {
		out[i] = coords[i] * sx
		out[i+1] = coords[i+1] * sy
	}
	return out
}

// warpPlane 将单通道浮点平面按仿射变换重采样到目标尺寸
//
// 语义与 cv2.warpAffine 一致: m 描述 src -> dst 的映射, 采样时取其逆,
// 双线性插值, 越界按零填充
func warpPlane(src []float32, srcW, srcH int, m affine, dstW, dstH int) ([]float32, error) {
	inv, err := m.invert()
	if err != nil {
		return nil, err
	}

	dst := make([]float32, dstW*dstH)
	for y := 0; y < dstH; y++ {
		for x := 0; x < dstW; x++ {
			sx, sy := inv.apply(float32(x), float32(y))
			dst[y*dstW+x] = sampleBilinear(src, srcW, srcH, sx, sy)
		}
	}
	return dst, nil
}

// sampleBilinear 双线性采样, 越界坐标贡献零
func sampleBilinear(src []float32, srcW, srcH int, x, y float32) float32 {
	x0 := int(math.Floor(float64(x)))
	y0 := int(math.Floor(float64(y)))
	fx := x - float32(x0)
	fy := y - float32(y0)

	at := func(px, py int) float32 {
		if px < 0 || py < 0 || px >= srcW || py >= srcH {
			return 0
		}
		return src[py*srcW+px]
	}

	v00 := at(x0, y0)
	v10 := at(x0+1, y0)
	v01 := at(x0, y0+1)
	v11 := at(x0+1, y0+1)

	top := v00*(1-fx) + v10*fx
	bot := v01*(1-fx) + v11*fx
	return top*(1-fy) + bot*fy
}
