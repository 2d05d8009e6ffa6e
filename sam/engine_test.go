package sam

import (
	"errors"
	"fmt"
	"image"
	"math"
	"testing"
)

// stubInference 确定性的推理桩, 记录收到的输入
type stubInference struct {
	decoded   *DecodeResult
	encodeErr error
	decodeErr error

	gotPixels []float32
	gotHeight int
	gotWidth  int
	gotCoords []float32
	gotLabels []float32

	decodeCalls int
}

func (s *stubInference) Encode(pixels []float32, height, width int) (*Embedding, error) {
	if s.encodeErr != nil {
		return nil, s.encodeErr
	}
	s.gotPixels = pixels
	s.gotHeight = height
	s.gotWidth = width
	return &Embedding{Data: []float32{42}, Shape: []int64{1, 1}}, nil
}

func (s *stubInference) Decode(emb *Embedding, coords, labels []float32) (*DecodeResult, error) {
	s.decodeCalls++
	if s.decodeErr != nil {
		return nil, s.decodeErr
	}
	s.gotCoords = coords
	s.gotLabels = labels
	return s.decoded, nil
}

func (s *stubInference) Destroy() error { return nil }

// testConfig 小尺寸规格, 便于构造可手算的用例
func testConfig() Config {
	return Config{
		EncoderInputHeight: 8,
		EncoderInputWidth:  8,
		TargetSize:         8,
		MaskInputSize:      4,
	}
}

// stubMasks 构造 [1, len(channels), h, w] 形状的 MaskStack
func stubMasks(h, w int, channels ...func(x, y int) float32) *DecodeResult {
	data := make([]float32, 0, len(channels)*h*w)
	for _, fill := range channels {
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				data = append(data, fill(x, y))
			}
		}
	}
	return &DecodeResult{
		Masks: MaskStack{
			Data:  data,
			Shape: []int64{1, int64(len(channels)), int64(h), int64(w)},
		},
		Scores: []float32{0.9},
	}
}

func grayImage(w, h int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 128
	}
	return img
}

func TestEncodeImageWarpsToCanvas(t *testing.T) {
	stub := &stubInference{}
	engine := NewEngineWithInference(stub, testConfig())

	ctx, err := engine.EncodeImage(grayImage(10, 10))
	if err != nil {
		t.Fatal(err)
	}
	defer ctx.Destroy()

	if stub.gotHeight != 8 || stub.gotWidth != 8 {
		t.Fatalf("画布尺寸异常: %dx%d", stub.gotHeight, stub.gotWidth)
	}
	if len(stub.gotPixels) != 8*8*3 {
		t.Fatalf("像素数据长度异常: %d", len(stub.gotPixels))
	}
	// 10x10 以 0.8 缩放后铺满画布, 不存在零填充区域
	if stub.gotPixels[0] == 0 {
		t.Fatal("缩放后的图像内容缺失")
	}
}

func TestEncodeImageDegenerate(t *testing.T) {
	engine := NewEngineWithInference(&stubInference{}, testConfig())

	for _, r := range []image.Rectangle{
		image.Rect(0, 0, 0, 0),
		image.Rect(0, 0, 5, 0),
	} {
		_, err := engine.EncodeImage(image.NewGray(r))
		if !errors.Is(err, ErrDegenerateGeometry) {
			t.Fatalf("%v: 期望 ErrDegenerateGeometry, 实际 %v", r, err)
		}
	}
}

func TestPredictPadsEmptyPromptList(t *testing.T) {
	stub := &stubInference{decoded: stubMasks(8, 8, func(x, y int) float32 { return -1 })}
	engine := NewEngineWithInference(stub, testConfig())

	ctx, err := engine.EncodeImage(grayImage(10, 10))
	if err != nil {
		t.Fatal(err)
	}
	defer ctx.Destroy()

	if _, err := ctx.PredictRaw(nil); err != nil {
		t.Fatal(err)
	}

	// 空提示列表仍需携带唯一的 (0,0)/-1 填充点
	if len(stub.gotLabels) != 1 || stub.gotLabels[0] != -1 {
		t.Fatalf("标签异常: %v", stub.gotLabels)
	}
	if len(stub.gotCoords) != 2 || stub.gotCoords[0] != 0 || stub.gotCoords[1] != 0 {
		t.Fatalf("坐标异常: %v", stub.gotCoords)
	}
}

func TestPredictPinnedCoordinate(t *testing.T) {
	// 固定场景: 200x100 (HxW) 图像, 默认 684x1024 画布
	// scale = min(684/200, 1024/100) = 3.42
	// 点 (50, 80) 经归一化 (此处为恒等) 与仿射相乘后为 (171, 273.6)
	stub := &stubInference{decoded: stubMasks(4, 4, func(x, y int) float32 { return -1 })}
	engine := NewEngineWithInference(stub, Config{})

	ctx, err := engine.EncodeImage(grayImage(100, 200))
	if err != nil {
		t.Fatal(err)
	}
	defer ctx.Destroy()

	prompts := []Prompt{{Type: PromptTypePoint, Label: LabelForeground, Data: []float32{50, 80}}}
	if _, err := ctx.PredictRaw(prompts); err != nil {
		t.Fatal(err)
	}

	want := []float32{171, 273.6, 0, 0}
	if len(stub.gotCoords) != len(want) {
		t.Fatalf("坐标长度异常: %v", stub.gotCoords)
	}
	for i := range want {
		if math.Abs(float64(stub.gotCoords[i]-want[i])) > 1e-2 {
			t.Fatalf("坐标异常: %v, 期望 %v", stub.gotCoords, want)
		}
	}
	if len(stub.gotLabels) != 2 || stub.gotLabels[0] != 1 || stub.gotLabels[1] != -1 {
		t.Fatalf("标签异常: %v", stub.gotLabels)
	}
}

func TestPredictRoundTripWithStub(t *testing.T) {
	// 10x10 图像, 8x8 画布, scale = 0.8
	// 通道 0 在 x <= 3 处为正, 通道 1 在 y <= 1 处为正
	// 逆变换采样 src = 0.8 * dst 后,
	// 通道 0 选中列 0..4, 通道 1 选中行 0..1, 结果为二者并集
	decoded := stubMasks(8, 8,
		func(x, y int) float32 {
			if x <= 3 {
				return 1
			}
			return -1
		},
		func(x, y int) float32 {
			if y <= 1 {
				return 1
			}
			return -1
		},
	)
	stub := &stubInference{decoded: decoded}
	engine := NewEngineWithInference(stub, testConfig())

	ctx, err := engine.EncodeImage(grayImage(10, 10))
	if err != nil {
		t.Fatal(err)
	}
	defer ctx.Destroy()

	mask, err := ctx.Predict([]Prompt{
		{Type: PromptTypePoint, Label: LabelForeground, Data: []float32{2, 2}},
	})
	if err != nil {
		t.Fatal(err)
	}

	if mask.Bounds().Dx() != 10 || mask.Bounds().Dy() != 10 {
		t.Fatalf("输出尺寸应与原图一致: %v", mask.Bounds())
	}

	for y := 0; y < 10; y++ {
		for x := 0; x < 10; x++ {
			want := uint8(0)
			if x <= 4 || y <= 1 {
				want = 255
			}
			if got := mask.GrayAt(x, y).Y; got != want {
				t.Fatalf("(%d, %d) = %d, 期望 %d", x, y, got, want)
			}
		}
	}
}

func TestPredictDuplicateChannelIdempotent(t *testing.T) {
	positiveLeft := func(x, y int) float32 {
		if x <= 3 {
			return 1
		}
		return -1
	}

	run := func(decoded *DecodeResult) []uint8 {
		stub := &stubInference{decoded: decoded}
		engine := NewEngineWithInference(stub, testConfig())
		ctx, err := engine.EncodeImage(grayImage(10, 10))
		if err != nil {
			t.Fatal(err)
		}
		defer ctx.Destroy()

		result, err := ctx.PredictRaw(nil)
		if err != nil {
			t.Fatal(err)
		}
		return result.Mask
	}

	once := run(stubMasks(8, 8, positiveLeft))
	twice := run(stubMasks(8, 8, positiveLeft, positiveLeft))

	for i := range once {
		if once[i] != twice[i] {
			t.Fatal("通道重复应不影响合并结果")
		}
	}
}

func TestPredictInvalidPrompt(t *testing.T) {
	stub := &stubInference{decoded: stubMasks(8, 8, func(x, y int) float32 { return 1 })}
	engine := NewEngineWithInference(stub, testConfig())

	ctx, err := engine.EncodeImage(grayImage(10, 10))
	if err != nil {
		t.Fatal(err)
	}
	defer ctx.Destroy()

	_, err = ctx.PredictRaw([]Prompt{{Type: "circle", Data: []float32{1, 2}}})
	if !errors.Is(err, ErrInvalidPrompt) {
		t.Fatalf("期望 ErrInvalidPrompt, 实际 %v", err)
	}
	if stub.decodeCalls != 0 {
		t.Fatal("校验失败后不应调用解码")
	}
}

func TestInferenceFailurePropagates(t *testing.T) {
	encodeErr := fmt.Errorf("%w: 模型文件缺失", ErrInference)
	engine := NewEngineWithInference(&stubInference{encodeErr: encodeErr}, testConfig())

	if _, err := engine.EncodeImage(grayImage(10, 10)); !errors.Is(err, ErrInference) {
		t.Fatalf("Encode 失败应原样传递, 实际 %v", err)
	}

	decodeErr := fmt.Errorf("%w: 会话异常", ErrInference)
	stub := &stubInference{decodeErr: decodeErr}
	engine = NewEngineWithInference(stub, testConfig())

	ctx, err := engine.EncodeImage(grayImage(10, 10))
	if err != nil {
		t.Fatal(err)
	}
	defer ctx.Destroy()

	result, err := ctx.PredictRaw(nil)
	if !errors.Is(err, ErrInference) {
		t.Fatalf("Decode 失败应原样传递, 实际 %v", err)
	}
	if result != nil {
		t.Fatal("失败时不应返回部分结果")
	}
}

func TestPredictAfterDestroy(t *testing.T) {
	stub := &stubInference{decoded: stubMasks(8, 8, func(x, y int) float32 { return 1 })}
	engine := NewEngineWithInference(stub, testConfig())

	ctx, err := engine.EncodeImage(grayImage(10, 10))
	if err != nil {
		t.Fatal(err)
	}
	ctx.Destroy()

	if _, err := ctx.PredictRaw(nil); err == nil {
		t.Fatal("销毁后的 ImageContext 应拒绝解码")
	}
}

func TestEngineOneShotPredict(t *testing.T) {
	stub := &stubInference{decoded: stubMasks(8, 8, func(x, y int) float32 { return 1 })}
	engine := NewEngineWithInference(stub, testConfig())

	mask, err := engine.Predict(grayImage(10, 10), nil)
	if err != nil {
		t.Fatal(err)
	}
	for _, v := range mask.Pix {
		if v != 255 {
			t.Fatal("全正通道应生成全选中的 Mask")
		}
	}
}
