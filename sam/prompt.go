package sam

import (
	"encoding/json"
	"fmt"
)

const (
	PromptTypePoint     = "point"
	PromptTypeRectangle = "rectangle"
)

// Prompt 用户提示, 点击或框选
//
// Type 为 point 时 Data 为 [x, y], Label 使用调用方给定的值;
// Type 为 rectangle 时 Data 为 [x1, y1, x2, y2], Label 被忽略,
// 编码时两个角点固定使用 LabelBoxTopLeft / LabelBoxBotRight
type Prompt struct {
	Type  string    `json:"type"`
	Label Label     `json:"label"`
	Data  []float32 `json:"data"`
}

// ParsePrompts 解析并校验 JSON 格式的提示列表
//
// 输入形如 [{"type": "point", "label": 1, "data": [50, 80]}]
func ParsePrompts(data []byte) ([]Prompt, error) {
	var prompts []Prompt
	if err := json.Unmarshal(data, &prompts); err != nil {
		return nil, fmt.Errorf("%w: 解析 JSON 失败: %v", ErrInvalidPrompt, err)
	}
	if err := ValidatePrompts(prompts); err != nil {
		return nil, err
	}
	return prompts, nil
}

// ValidatePrompts 校验提示列表的格式
func ValidatePrompts(prompts []Prompt) error {
	for i, p := range prompts {
		switch p.Type {
		case PromptTypePoint:
			if len(p.Data) != 2 {
				return fmt.Errorf("%w: 第 %d 项 point 的 data 长度应为 2, 实际为 %d", ErrInvalidPrompt, i, len(p.Data))
			}
		case PromptTypeRectangle:
			if len(p.Data) != 4 {
				return fmt.Errorf("%w: 第 %d 项 rectangle 的 data 长度应为 4, 实际为 %d", ErrInvalidPrompt, i, len(p.Data))
			}
		default:
			return fmt.Errorf("%w: 第 %d 项的 type 无效: %q", ErrInvalidPrompt, i, p.Type)
		}
	}
	return nil
}

// EncodePrompts 将提示列表编码为扁平坐标序列和标签序列
//
// 点提示贡献一个坐标和调用方给定的标签; 框选提示按输入顺序展开为
// 两个角点, 标签固定为 2 (左上) 和 3 (右下); 整体顺序与输入一致。
// 空列表返回空序列
func EncodePrompts(prompts []Prompt) (coords []float32, labels []float32, err error) {
	if err := ValidatePrompts(prompts); err != nil {
		return nil, nil, err
	}

	coords = make([]float32, 0, len(prompts)*4)
	labels = make([]float32, 0, len(prompts)*2)

	for _, p := range prompts {
		switch p.Type {
		case PromptTypePoint:
			coords = append(coords, p.Data[0], p.Data[1])
			labels = append(labels, float32(p.Label))
		case PromptTypeRectangle:
			coords = append(coords, p.Data[0], p.Data[1], p.Data[2], p.Data[3])
			labels = append(labels, float32(LabelBoxTopLeft), float32(LabelBoxBotRight))
		}
	}
	return coords, labels, nil
}
