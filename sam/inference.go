package sam

import (
	"fmt"

	ort "github.com/yalue/onnxruntime_go"
)

// Embedding Encoder 输出的图像特征, 对本管线而言是不透明数据
type Embedding struct {
	Data  []float32
	Shape []int64
}

// MaskStack Decoder 输出的候选 Mask 批次
type MaskStack struct {
	Data  []float32
	Shape []int64 // [batch, channels, H, W]
}

// DecodeResult Decoder 的完整输出, 本管线只消费 Masks
type DecodeResult struct {
	Masks       MaskStack
	Scores      []float32
	LowResMasks []float32
}

// Inference 推理引擎边界
//
// Encode/Decode 均为同步阻塞的确定性调用, 管线不做重试,
// 失败原样向上传递。实现可替换, 便于测试或接入其他推理后端
type Inference interface {
	// Encode 提取图像特征, pixels 为 HWC 排列的 float32 数据 (height*width*3)
	Encode(pixels []float32, height, width int) (*Embedding, error)
	// Decode 根据图像特征与提示点解码候选 Mask
	//
	// coords 为扁平坐标序列 [x0, y0, x1, y1, ...], labels 与点一一对应
	Decode(emb *Embedding, coords, labels []float32) (*DecodeResult, error)
	// Destroy 释放底层资源
	Destroy() error
}

// onnxInference 基于 ONNX Runtime 的 Inference 实现
type onnxInference struct {
	encoderSession *ort.DynamicAdvancedSession
	decoderSession *ort.DynamicAdvancedSession
	config         Config
}

// Encode 图像特征提取
func (o *onnxInference) Encode(pixels []float32, height, width int) (*Embedding, error) {
	inputShape := ort.NewShape(int64(height), int64(width), 3)
	inputTensor, err := ort.NewTensor(inputShape, pixels)
	if err != nil {
		return nil, fmt.Errorf("创建图片 Input Tensor 失败: %w", err)
	}
	defer inputTensor.Destroy()

	outputs := make([]ort.Value, 1)
	if err := o.encoderSession.Run([]ort.Value{inputTensor}, outputs); err != nil {
		return nil, fmt.Errorf("%w: encoder 推理失败: %v", ErrInference, err)
	}
	defer outputs[0].Destroy()

	embTensor, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("%w: encoder 输出类型异常", ErrInference)
	}

	return &Embedding{
		Data:  append([]float32(nil), embTensor.GetData()...),
		Shape: append([]int64(nil), embTensor.GetShape()...),
	}, nil
}

// Decode Mask解码
func (o *onnxInference) Decode(emb *Embedding, coords, labels []float32) (*DecodeResult, error) {
	numPoints := int64(len(labels))

	tEmbedding, err := ort.NewTensor(ort.Shape(emb.Shape), emb.Data)
	if err != nil {
		return nil, fmt.Errorf("创建 Embedding Tensor 失败: %w", err)
	}
	defer tEmbedding.Destroy()

	tCoords, err := ort.NewTensor(ort.NewShape(1, numPoints, 2), coords)
	if err != nil {
		return nil, fmt.Errorf("创建 Decoder Points Tensor 失败: %w", err)
	}
	defer tCoords.Destroy()

	tLabels, err := ort.NewTensor(ort.NewShape(1, numPoints), labels)
	if err != nil {
		return nil, fmt.Errorf("创建 Decoder Labels Tensor 失败: %w", err)
	}
	defer tLabels.Destroy()

	// 不提供先验 Mask: mask_input 为全零, has_mask_input 为零标量
	maskSize := int64(o.config.MaskInputSize)
	tMaskInput, err := ort.NewTensor(ort.NewShape(1, 1, maskSize, maskSize), make([]float32, maskSize*maskSize))
	if err != nil {
		return nil, fmt.Errorf("创建 Decoder MaskInput Tensor 失败: %w", err)
	}
	defer tMaskInput.Destroy()

	tHasMask, err := ort.NewTensor(ort.NewShape(1), []float32{0})
	if err != nil {
		return nil, fmt.Errorf("创建 Decoder HasMask Tensor 失败: %w", err)
	}
	defer tHasMask.Destroy()

	tOrigSize, err := ort.NewTensor(ort.NewShape(2), []float32{
		float32(o.config.EncoderInputHeight),
		float32(o.config.EncoderInputWidth),
	})
	if err != nil {
		return nil, fmt.Errorf("创建 Decoder OrigSize Tensor 失败: %w", err)
	}
	defer tOrigSize.Destroy()

	inputs := []ort.Value{tEmbedding, tCoords, tLabels, tMaskInput, tHasMask, tOrigSize}
	outputs := make([]ort.Value, 3)

	if err := o.decoderSession.Run(inputs, outputs); err != nil {
		return nil, fmt.Errorf("%w: decoder 推理失败: %v", ErrInference, err)
	}
	defer func() {
		for _, out := range outputs {
			out.Destroy()
		}
	}()

	tMasks, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("%w: decoder 输出类型异常", ErrInference)
	}
	tScores, _ := outputs[1].(*ort.Tensor[float32])
	tLowRes, _ := outputs[2].(*ort.Tensor[float32])

	result := &DecodeResult{
		Masks: MaskStack{
			Data:  append([]float32(nil), tMasks.GetData()...),
			Shape: append([]int64(nil), tMasks.GetShape()...),
		},
	}
	if tScores != nil {
		result.Scores = append([]float32(nil), tScores.GetData()...)
	}
	if tLowRes != nil {
		result.LowResMasks = append([]float32(nil), tLowRes.GetData()...)
	}
	return result, nil
}

// Destroy 释放 ONNX 会话
func (o *onnxInference) Destroy() error {
	if o.encoderSession != nil {
		if err := o.encoderSession.Destroy(); err != nil {
			return fmt.Errorf("销毁 Encoder ONNX 会话失败: %w", err)
		}
		o.encoderSession = nil
	}
	if o.decoderSession != nil {
		if err := o.decoderSession.Destroy(); err != nil {
			return fmt.Errorf("销毁 Decoder ONNX 会话失败: %w", err)
		}
		o.decoderSession = nil
	}
	return nil
}
