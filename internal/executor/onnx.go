package executor

import (
	"fmt"
	"time"

	"github.com/Brownie44l1/classbench/internal/model"
	"github.com/Brownie44l1/classbench/internal/tensor"
	ort "github.com/yalue/onnxruntime_go"
)

// ORTRuntime creates onnxruntime sessions from in-memory artifacts.
type ORTRuntime struct {
	threads int
}

// NewORTRuntime initializes the onnxruntime environment. libPath selects the
// shared library when non-empty; threads > 0 caps intra-op parallelism.
func NewORTRuntime(libPath string, threads int) (*ORTRuntime, error) {
	if libPath != "" {
		ort.SetSharedLibraryPath(libPath)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
		}
	}
	return &ORTRuntime{threads: threads}, nil
}

func (r *ORTRuntime) Close() error {
	return ort.DestroyEnvironment()
}

func (r *ORTRuntime) NewSession(artifact []byte, d model.Descriptor) (Session, error) {
	inputs, outputs, err := ort.GetInputOutputInfoWithONNXData(artifact)
	if err != nil {
		return nil, fmt.Errorf("failed to read model graph: %w", err)
	}
	if len(inputs) != 1 || len(outputs) < 1 {
		return nil, fmt.Errorf("model %s has %d inputs and %d outputs, want 1 and at least 1", d.ID, len(inputs), len(outputs))
	}
	if err := checkInputShape(inputs[0].Dimensions, d); err != nil {
		return nil, err
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer options.Destroy()
	if r.threads > 0 {
		if err := options.SetIntraOpNumThreads(r.threads); err != nil {
			return nil, fmt.Errorf("failed to set thread count: %w", err)
		}
	}

	session, err := ort.NewDynamicAdvancedSessionWithONNXData(artifact,
		[]string{inputs[0].Name}, []string{outputs[0].Name}, options)
	if err != nil {
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}
	return &ortSession{session: session}, nil
}

// checkInputShape accepts dynamic (non-positive) dimensions.
func checkInputShape(dims ort.Shape, d model.Descriptor) error {
	want := []int64{1, 3, int64(d.Side), int64(d.Side)}
	if len(dims) != len(want) {
		return fmt.Errorf("model %s input has rank %d, want 4", d.ID, len(dims))
	}
	for i, v := range dims {
		if v > 0 && v != want[i] {
			return fmt.Errorf("model %s input shape %v, want %v", d.ID, dims, want)
		}
	}
	return nil
}

type ortSession struct {
	session *ort.DynamicAdvancedSession
}

func (s *ortSession) Run(t tensor.Tensor) ([]float32, time.Duration, error) {
	input, err := ort.NewTensor(ort.NewShape(t.Shape[:]...), t.Data)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer input.Destroy()

	outputs := []ort.Value{nil}
	start := time.Now()
	err = s.session.Run([]ort.Value{input}, outputs)
	elapsed := time.Since(start)
	if err != nil {
		return nil, 0, fmt.Errorf("inference failed: %w", err)
	}
	defer outputs[0].Destroy()

	out, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, 0, fmt.Errorf("unexpected output type %T", outputs[0])
	}
	scores := make([]float32, len(out.GetData()))
	copy(scores, out.GetData())
	return scores, elapsed, nil
}

func (s *ortSession) Destroy() error {
	return s.session.Destroy()
}
