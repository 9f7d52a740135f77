package model

import (
	"fmt"
	"os"

	ort "github.com/yalue/onnxruntime_go"
)

// Session abstracts the ONNX runtime so tests can inject a stand-in
// classifier without the shared library present.
type Session interface {
	// Score returns P(downsize) per row. Every row must have exactly
	// one value per schema column, already standardized.
	Score(rows [][]float32) ([]float32, error)
	Destroy() error
}

// Tensor names exported by the training pipeline's ONNX conversion.
const (
	inputTensorName  = "float_input"
	outputTensorName = "probabilities"
)

type ortSession struct {
	session *ort.DynamicAdvancedSession
	dims    int
}

func newORTSession(modelPath string, dims int) (*ortSession, error) {
	if !ort.IsInitialized() {
		setSharedLibraryPath()
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("initialize onnxruntime: %w", err)
		}
	}

	session, err := ort.NewDynamicAdvancedSession(
		modelPath,
		[]string{inputTensorName},
		[]string{outputTensorName},
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("create onnx session: %w", err)
	}
	return &ortSession{session: session, dims: dims}, nil
}

func (s *ortSession) Score(rows [][]float32) ([]float32, error) {
	n := len(rows)
	if n == 0 {
		return []float32{}, nil
	}

	flat := make([]float32, 0, n*s.dims)
	for i, row := range rows {
		if len(row) != s.dims {
			return nil, fmt.Errorf("row %d has %d features, model expects %d", i, len(row), s.dims)
		}
		flat = append(flat, row...)
	}

	input, err := ort.NewTensor(ort.NewShape(int64(n), int64(s.dims)), flat)
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}
	defer input.Destroy()

	// The classifier emits per-class probabilities: column 0 is keep,
	// column 1 is downsize.
	output, err := ort.NewTensor(ort.NewShape(int64(n), 2), make([]float32, n*2))
	if err != nil {
		return nil, fmt.Errorf("create output tensor: %w", err)
	}
	defer output.Destroy()

	if err := s.session.Run(
		[]ort.ArbitraryTensor{input},
		[]ort.ArbitraryTensor{output},
	); err != nil {
		return nil, fmt.Errorf("run inference: %w", err)
	}

	data := output.GetData()
	probs := make([]float32, n)
	for i := range probs {
		probs[i] = data[i*2+1]
	}
	return probs, nil
}

func (s *ortSession) Destroy() error {
	if s.session == nil {
		return nil
	}
	err := s.session.Destroy()
	s.session = nil
	return err
}

func setSharedLibraryPath() {
	paths := []string{}
	if env := os.Getenv("ORT_SHARED_LIBRARY_PATH"); env != "" {
		paths = append(paths, env)
	}
	if env := os.Getenv("ADVISOR_ONNXRUNTIME_PATH"); env != "" {
		paths = append(paths, env)
	}
	paths = append(paths,
		"/opt/homebrew/lib/libonnxruntime.dylib",
		"/usr/local/lib/libonnxruntime.dylib",
		"/usr/lib/libonnxruntime.so",
	)
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			ort.SetSharedLibraryPath(p)
			return
		}
	}
	ort.SetSharedLibraryPath("onnxruntime")
}
