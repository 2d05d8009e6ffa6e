package sam

import "errors"

var (
	// ErrInvalidPrompt 提示输入不符合格式要求
	ErrInvalidPrompt = errors.New("无效的提示输入")
	// ErrInference 外部推理引擎调用失败
	ErrInference = errors.New("推理引擎调用失败")
	// ErrDegenerateGeometry 缩放系数为零或非有限值, 无法构建可逆变换
	ErrDegenerateGeometry = errors.New("退化的几何变换")
)
