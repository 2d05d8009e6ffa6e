package gosam

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"os"

	"golang.org/x/image/font"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

// OverlayMask 将二值 Mask 以指定颜色叠加到原图上, 便于检查分割结果
//
// # Params:
//
//	src: 原图
//	mask: 二值 Mask (0/255), 尺寸需与原图一致
//	c: 叠加颜色
//	opacity: 叠加不透明度, 0~1
func OverlayMask(src image.Image, mask *image.Gray, c color.RGBA, opacity float64) *image.RGBA {
	bounds := src.Bounds()
	dst := image.NewRGBA(bounds)
	draw.Draw(dst, bounds, src, bounds.Min, draw.Src)

	if opacity < 0 {
		opacity = 0
	} else if opacity > 1 {
		opacity = 1
	}

	mb := mask.Bounds()
	for y := 0; y < bounds.Dy(); y++ {
		for x := 0; x < bounds.Dx(); x++ {
			if y >= mb.Dy() || x >= mb.Dx() {
				continue
			}
			if mask.GrayAt(mb.Min.X+x, mb.Min.Y+y).Y == 0 {
				continue
			}
			px := dst.RGBAAt(bounds.Min.X+x, bounds.Min.Y+y)
			px.R = uint8(float64(px.R)*(1-opacity) + float64(c.R)*opacity)
			px.G = uint8(float64(px.G)*(1-opacity) + float64(c.G)*opacity)
			px.B = uint8(float64(px.B)*(1-opacity) + float64(c.B)*opacity)
			dst.SetRGBA(bounds.Min.X+x, bounds.Min.Y+y, px)
		}
	}
	return dst
}

// DrawMarker 在指定坐标绘制十字标记, 用于标注点击提示的位置
func DrawMarker(img draw.Image, x, y, size int, c color.Color) {
	for d := -size; d <= size; d++ {
		img.Set(x+d, y, c)
		img.Set(x, y+d, c)
	}
}

// DrawBox 绘制矩形框, 用于标注框选提示的范围
func DrawBox(img draw.Image, x1, y1, x2, y2 int, c color.Color) {
	if x1 > x2 {
		x1, x2 = x2, x1
	}
	if y1 > y2 {
		y1, y2 = y2, y1
	}
	for x := x1; x <= x2; x++ {
		img.Set(x, y1, c)
		img.Set(x, y2, c)
	}
	for y := y1; y <= y2; y++ {
		img.Set(x1, y, c)
		img.Set(x2, y, c)
	}
}

// TextDrawer 文本绘制工具
type TextDrawer struct {
	font     *opentype.Font
	face     font.Face
	fontSize float64
}

// NewTextDrawer 创建文本绘制工具
//
// # Params:
//
//	fontPath: 字体路径
func NewTextDrawer(fontPath string) (*TextDrawer, error) {
	fontBytes, err := os.ReadFile(fontPath)
	if err != nil {
		return nil, fmt.Errorf("打开字体文件失败：%w", err)
	}

	ttFont, err := opentype.Parse(fontBytes)
	if err != nil {
		return nil, fmt.Errorf("解析字体文件失败：%w", err)
	}

	d := &TextDrawer{font: ttFont}
	if err := d.SetSize(12); err != nil {
		return nil, err
	}
	return d, nil
}

// SetSize 动态调整字体大小
func (d *TextDrawer) SetSize(fontSize float64) error {
	if d.face != nil && d.fontSize == fontSize {
		return nil
	}

	// 释放旧 Face 内存
	if d.face != nil {
		d.face.Close()
	}

	nf, err := opentype.NewFace(d.font, &opentype.FaceOptions{
		Size:    fontSize,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return err
	}

	d.face = nf
	d.fontSize = fontSize
	return nil
}

// DrawText 绘制文本
//
// # Params:
//
//	img: 被绘制的图像
//	text: 绘制的文本
//	x, y: 绘制的坐标
//	c: 绘制的颜色
func (d *TextDrawer) DrawText(img draw.Image, text string, x, y int, c color.Color) {
	point := fixed.Point26_6{
		X: fixed.I(x),
		Y: fixed.I(y),
	}

	d1 := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c), // 文字颜色源
		Face: d.face,
		Dot:  point, // 开始绘制的点
	}
	d1.DrawString(text)
}

// Close 释放资源
func (d *TextDrawer) Close() {
	if d.face != nil {
		d.face.Close()
	}
}
