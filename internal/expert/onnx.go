package expert

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// byt5-style special token offset applied to raw bytes.
const byteTokenOffset = 3

// onnxExpert runs a local byte-level ONNX encoder. The session is
// created once at startup and guarded by a mutex; onnxruntime sessions
// are not safe for concurrent Run calls on shared tensors.
type onnxExpert struct {
	name   string
	seqLen int
	hidden int

	session       *ort.AdvancedSession
	inputIDs      *ort.Tensor[int64]
	attentionMask *ort.Tensor[int64]
	output        *ort.Tensor[float32]

	mu sync.Mutex
}

// NewONNX loads a byte-level encoder from modelPath. hidden is the
// encoder's embedding width; seqLen the fixed input length.
func NewONNX(name, modelPath string, seqLen, hidden int) (Expert, error) {
	if strings.TrimSpace(modelPath) == "" {
		return nil, errors.New("onnx expert: model path is empty")
	}
	if seqLen <= 0 {
		seqLen = 512
	}
	if hidden <= 0 {
		hidden = 768
	}

	libPath := resolveSharedLibraryPath(filepath.Dir(modelPath))
	if libPath == "" {
		return nil, fmt.Errorf("onnxruntime shared library not found; set ONNXRUNTIME_SHARED_LIBRARY_PATH or install the runtime")
	}
	ort.SetSharedLibraryPath(libPath)
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("initialize onnxruntime: %w", err)
		}
	}

	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("model file missing at %s: %w", modelPath, err)
	}

	inputShape := ort.NewShape(1, int64(seqLen))
	inputIDs, err := ort.NewEmptyTensor[int64](inputShape)
	if err != nil {
		return nil, fmt.Errorf("allocate input_ids tensor: %w", err)
	}
	attnMask, err := ort.NewEmptyTensor[int64](inputShape)
	if err != nil {
		return nil, fmt.Errorf("allocate attention_mask tensor: %w", err)
	}
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(hidden)))
	if err != nil {
		return nil, fmt.Errorf("allocate embedding tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(
		modelPath,
		[]string{"input_ids", "attention_mask"},
		[]string{"embedding"},
		[]ort.Value{inputIDs, attnMask},
		[]ort.Value{output},
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("create onnx session: %w", err)
	}

	return &onnxExpert{
		name:          name,
		seqLen:        seqLen,
		hidden:        hidden,
		session:       session,
		inputIDs:      inputIDs,
		attentionMask: attnMask,
		output:        output,
	}, nil
}

func (e *onnxExpert) Invoke(ctx context.Context, text string, task Task) (string, error) {
	switch task {
	case TaskProcess, TaskEmbed, TaskAnalyze:
	default:
		return "", &UnsupportedTaskError{Expert: e.name, Task: task}
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}

	embedding, err := e.encode(text)
	if err != nil {
		return "", err
	}

	switch task {
	case TaskProcess:
		return fmt.Sprintf("Processed with %s, embedding shape: [1, %d]", e.name, e.hidden), nil
	case TaskEmbed:
		return fmt.Sprintf("%s document embedding generated with shape: [1, %d]", e.name, e.hidden), nil
	default: // TaskAnalyze
		return fmt.Sprintf("%s analysis: embedding dim %d, l2 norm %.4f", e.name, e.hidden, l2(embedding)), nil
	}
}

// encode runs the encoder over byte-level ids and returns a copy of the
// embedding row.
func (e *onnxExpert) encode(text string) ([]float32, error) {
	ids, mask := e.tokenize(text)

	e.mu.Lock()
	defer e.mu.Unlock()

	copy(e.inputIDs.GetData(), ids)
	copy(e.attentionMask.GetData(), mask)

	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("onnx run: %w", err)
	}

	out := make([]float32, e.hidden)
	copy(out, e.output.GetData())
	return out, nil
}

// tokenize maps raw bytes to ids with the byte-token offset, padding or
// truncating to the fixed sequence length.
func (e *onnxExpert) tokenize(text string) ([]int64, []int64) {
	ids := make([]int64, e.seqLen)
	mask := make([]int64, e.seqLen)
	raw := []byte(text)
	n := len(raw)
	if n > e.seqLen {
		n = e.seqLen
	}
	for i := 0; i < n; i++ {
		ids[i] = int64(raw[i]) + byteTokenOffset
		mask[i] = 1
	}
	return ids, mask
}

func l2(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// resolveSharedLibraryPath locates a platform-specific onnxruntime
// shared library. ONNXRUNTIME_SHARED_LIBRARY_PATH wins when set.
func resolveSharedLibraryPath(modelDir string) string {
	if env := strings.TrimSpace(os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH")); env != "" {
		return env
	}

	names := []string{
		"libonnxruntime.dylib",
		"onnxruntime.dylib",
		"libonnxruntime.so",
		"onnxruntime.so",
		"onnxruntime.dll",
	}
	dirs := []string{
		modelDir,
		filepath.Join(modelDir, "lib"),
		".",
		"/opt/homebrew/lib",
		"/usr/local/lib",
		"/usr/lib",
	}

	for _, dir := range dirs {
		for _, name := range names {
			candidate := filepath.Join(dir, name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate
			}
		}
	}
	return ""
}
