package sam

import (
	"fmt"
	"image"
	"math"
	"runtime"

	gosam "github.com/getcharzp/go-sam"
	"github.com/up-zero/gotool/convertutil"
)

// Engine 持有推理引擎, 负责创建 ImageContext
type Engine struct {
	inference Inference
	config    Config
}

// NewEngine 初始化 SAM 引擎, 使用 ONNX Runtime 加载 Encoder/Decoder 模型
func NewEngine(cfg Config) (*Engine, error) {
	cfg = cfg.withDefaults()

	onnxConfig := new(gosam.OnnxConfig)
	if err := convertutil.CopyProperties(cfg, onnxConfig); err != nil {
		return nil, fmt.Errorf("复制参数失败: %w", err)
	}
	// 初始化 ONNX
	if err := onnxConfig.New(); err != nil {
		return nil, err
	}

	// encoder session
	encSession, err := onnxConfig.NewSession(cfg.EncodeModelPath,
		[]string{cfg.EncoderInputName},
		[]string{cfg.EncoderOutputName})
	if err != nil {
		return nil, fmt.Errorf("创建 Encoder ONNX 会话失败: %w", err)
	}

	// decoder session
	decInputs := []string{
		"image_embeddings", "point_coords", "point_labels",
		"mask_input", "has_mask_input", "orig_im_size",
	}
	decOutputs := []string{"masks", "iou_predictions", "low_res_masks"}
	decSession, err := onnxConfig.NewSession(cfg.DecodeModelPath, decInputs, decOutputs)
	if err != nil {
		encSession.Destroy()
		return nil, fmt.Errorf("创建 Decoder ONNX 会话失败: %w", err)
	}

	return &Engine{
		inference: &onnxInference{
			encoderSession: encSession,
			decoderSession: decSession,
			config:         cfg,
		},
		config: cfg,
	}, nil
}

// NewEngineWithInference 使用自定义推理实现初始化引擎, 便于接入其他推理后端
func NewEngineWithInference(inf Inference, cfg Config) *Engine {
	return &Engine{
		inference: inf,
		config:    cfg.withDefaults(),
	}
}

// Destroy 释放相关资源
func (e *Engine) Destroy() error {
	return e.inference.Destroy()
}

// ImageContext 包含特定图像的特征缓存和参数
//
// 特征与变换参数在创建后不可变, 同一张图的多轮提示可复用同一个
// ImageContext 而无需重新 Encode
type ImageContext struct {
	engine    *Engine
	embedding *Embedding

	origW, origH int
	transform    affine
	isDestroyed  bool
}

// EncodeImage 图像特征提取
//
// 按 min(Hi/H, Wi/W) 等比缩放并零填充到 Encoder 输入画布后执行
// Encoder 推理, 返回持有特征缓存的 ImageContext
func (e *Engine) EncodeImage(img image.Image) (*ImageContext, error) {
	bounds := img.Bounds()
	origW, origH := bounds.Dx(), bounds.Dy()
	if origW <= 0 || origH <= 0 {
		return nil, fmt.Errorf("%w: 图像尺寸为 %dx%d", ErrDegenerateGeometry, origW, origH)
	}

	canvasH := e.config.EncoderInputHeight
	canvasW := e.config.EncoderInputWidth

	scaleX := float64(canvasW) / float64(origW)
	scaleY := float64(canvasH) / float64(origH)
	scale := math.Min(scaleX, scaleY)
	if scale <= 0 || math.IsInf(scale, 0) || math.IsNaN(scale) {
		return nil, fmt.Errorf("%w: 缩放系数为 %v", ErrDegenerateGeometry, scale)
	}

	pixels := warpImage(img, float32(scale), canvasH, canvasW)

	embedding, err := e.inference.Encode(pixels, canvasH, canvasW)
	if err != nil {
		return nil, fmt.Errorf("图片特征提取失败: %w", err)
	}

	ctx := &ImageContext{
		engine:    e,
		embedding: embedding,
		origW:     origW,
		origH:     origH,
		transform: newScaleAffine(float32(scale)),
	}

	// 设置 Finalizer 以防用户忘记 Destroy
	runtime.SetFinalizer(ctx, func(c *ImageContext) { c.Destroy() })

	return ctx, nil
}

// Destroy 释放图像特征缓存
func (ctx *ImageContext) Destroy() {
	if ctx.isDestroyed {
		return
	}
	ctx.embedding = nil
	ctx.isDestroyed = true
}

// Result Mask 预测结果
type Result struct {
	Mask   []uint8 // 0 or 255
	Scores []float32
	Width  int
	Height int
}

// PredictRaw 根据提示解码 Mask 并返回原始结果
//
// 提示坐标以 Encoder 输入画布的像素为单位。编码后的点序列会追加一个
// (0,0)/-1 的填充点 (网络训练约定, 即使已有提示也不可省略), 再经过
// 两段变换对齐到解码器的坐标约定: 先按 TargetSize 长边归一化, 再乘以
// 图像实际使用的仿射矩阵。解码得到的多通道 Mask 经逆仿射变换回原图
// 尺寸后按阈值取并集
func (ctx *ImageContext) PredictRaw(prompts []Prompt) (*Result, error) {
	if ctx.isDestroyed {
		return nil, fmt.Errorf("图片特征已销毁")
	}

	coords, labels, err := EncodePrompts(prompts)
	if err != nil {
		return nil, err
	}

	// 填充点
	coords = append(coords, 0, 0)
	labels = append(labels, float32(LabelPadding))

	cfg := ctx.engine.config
	coords = applyCoords(coords, cfg.EncoderInputHeight, cfg.EncoderInputWidth, cfg.TargetSize)
	coords = ctx.transform.applyBatch(coords)

	decoded, err := ctx.engine.inference.Decode(ctx.embedding, coords, labels)
	if err != nil {
		return nil, fmt.Errorf("mask 解码失败: %w", err)
	}

	mask, err := ctx.restoreMasks(&decoded.Masks)
	if err != nil {
		return nil, err
	}

	return &Result{
		Mask:   mask,
		Scores: decoded.Scores,
		Width:  ctx.origW,
		Height: ctx.origH,
	}, nil
}

// restoreMasks 将解码器输出的 Mask 批次逆变换回原图尺寸并合并
func (ctx *ImageContext) restoreMasks(masks *MaskStack) ([]uint8, error) {
	if len(masks.Shape) != 4 {
		return nil, fmt.Errorf("%w: mask 形状异常: %v", ErrInference, masks.Shape)
	}
	channelCount := int(masks.Shape[1])
	maskH := int(masks.Shape[2])
	maskW := int(masks.Shape[3])
	planeSize := maskH * maskW

	inv, err := ctx.transform.invert()
	if err != nil {
		return nil, err
	}

	// 只处理第一个 batch
	channels := make([][]float32, 0, channelCount)
	for c := 0; c < channelCount; c++ {
		plane := masks.Data[c*planeSize : (c+1)*planeSize]
		warped, err := warpPlane(plane, maskW, maskH, inv, ctx.origW, ctx.origH)
		if err != nil {
			return nil, err
		}
		channels = append(channels, warped)
	}

	return compositeMask(channels, ctx.origW, ctx.origH), nil
}

// Predict 根据提示解码 Mask 并返回二值图
func (ctx *ImageContext) Predict(prompts []Prompt) (*image.Gray, error) {
	result, err := ctx.PredictRaw(prompts)
	if err != nil {
		return nil, err
	}

	img := image.NewGray(image.Rect(0, 0, result.Width, result.Height))
	copy(img.Pix, result.Mask)
	return img, nil
}

// Predict 一次性完成图像编码与 Mask 解码
//
// 同一张图的多轮提示建议使用 EncodeImage 复用特征缓存
func (e *Engine) Predict(img image.Image, prompts []Prompt) (*image.Gray, error) {
	ctx, err := e.EncodeImage(img)
	if err != nil {
		return nil, err
	}
	defer ctx.Destroy()

	return ctx.Predict(prompts)
}
