package sam

import (
	gosam "github.com/getcharzp/go-sam"
)

type Label int

const (
	LabelBackground  Label = 0  // 背景/排除
	LabelForeground  Label = 1  // 前景/点击
	LabelBoxTopLeft  Label = 2  // 框选左上
	LabelBoxBotRight Label = 3  // 框选右下
	LabelPadding     Label = -1 // 填充点, 网络训练约定, 由引擎自动追加
)

// Config 配置项
type Config struct {
	// 必填参数
	OnnxRuntimeLibPath string // onnxruntime.dll (或 .so, .dylib) 的路径
	EncodeModelPath    string // 图片特征提取模型
	DecodeModelPath    string // Mask解码模型

	// 可选参数
	UseCuda    bool // (可选) 是否启用 CUDA
	NumThreads int  // (可选) ONNX 线程数, 默认由CPU核心数决定

	// 网络规格参数, 零值时取默认值, 与 SAM ViT 系列模型的导出约定一致
	EncoderInputHeight int // Encoder 输入画布高度, 默认 684
	EncoderInputWidth  int // Encoder 输入画布宽度, 默认 1024
	TargetSize         int // 解码器坐标约定的长边尺寸, 默认 1024
	MaskInputSize      int // 解码器 mask_input 的边长, 默认 256

	// 模型输入输出名称, 零值时取默认值
	EncoderInputName  string // 默认 "x"
	EncoderOutputName string // 默认 "image_embeddings"
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		OnnxRuntimeLibPath: gosam.DefaultLibraryPath(),
		EncodeModelPath:    "./sam_weights/sam_vit_b_01ec64.encoder.onnx",
		DecodeModelPath:    "./sam_weights/sam_vit_b_01ec64.decoder.onnx",
	}
}

// withDefaults 补全零值参数
func (cfg Config) withDefaults() Config {
	if cfg.EncoderInputHeight == 0 {
		cfg.EncoderInputHeight = 684
	}
	if cfg.EncoderInputWidth == 0 {
		cfg.EncoderInputWidth = 1024
	}
	if cfg.TargetSize == 0 {
		cfg.TargetSize = 1024
	}
	if cfg.MaskInputSize == 0 {
		cfg.MaskInputSize = 256
	}
	if cfg.EncoderInputName == "" {
		cfg.EncoderInputName = "x"
	}
	if cfg.EncoderOutputName == "" {
		cfg.EncoderOutputName = "image_embeddings"
	}
	return cfg
}
