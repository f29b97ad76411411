// Package localmodel runs BERT-style ONNX models in-process: a sentence
// embedder and a cross-encoder used for reranking.
package localmodel

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"golang.org/x/sync/semaphore"
)

var (
	envMu    sync.Mutex
	envReady bool
)

// initRuntime loads the onnxruntime shared library once per process. A failed
// attempt is retried on the next call.
func initRuntime(libPath string) error {
	envMu.Lock()
	defer envMu.Unlock()
	if envReady {
		return nil
	}
	if libPath != "" {
		ort.SetSharedLibraryPath(libPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("onnx init environment: %w", err)
	}
	envReady = true
	return nil
}

// Shutdown releases the onnxruntime environment. Sessions must be destroyed first.
func Shutdown() error {
	envMu.Lock()
	defer envMu.Unlock()
	envReady = false
	if !ort.IsInitialized() {
		return nil
	}
	return ort.DestroyEnvironment()
}

// session is a lazily created dynamic-shape session over a BERT-style graph.
// Run calls proceed concurrently up to maxRuns; waiting for a slot or for
// initialization gives up when the caller's context ends.
type session struct {
	modelPath string
	libPath   string

	initSem *semaphore.Weighted
	runSem  *semaphore.Weighted
	maxRuns int64

	// guarded by initSem
	ort        *ort.DynamicAdvancedSession
	inputNames []string
	outputName string
	inited     bool
}

func newSession(modelPath, libPath string, maxRuns int) *session {
	if maxRuns <= 0 {
		maxRuns = runtime.GOMAXPROCS(0)
	}
	return &session{
		modelPath: modelPath,
		libPath:   libPath,
		initSem:   semaphore.NewWeighted(1),
		runSem:    semaphore.NewWeighted(int64(maxRuns)),
		maxRuns:   int64(maxRuns),
	}
}

// graph is the initialized session state handed to a run.
type graph struct {
	ort        *ort.DynamicAdvancedSession
	inputNames []string
	outputName string
}

func (s *session) ready(ctx context.Context) (graph, error) {
	if err := s.initSem.Acquire(ctx, 1); err != nil {
		return graph{}, err
	}
	defer s.initSem.Release(1)
	if err := s.initLocked(); err != nil {
		return graph{}, err
	}
	return graph{ort: s.ort, inputNames: s.inputNames, outputName: s.outputName}, nil
}

func (s *session) initLocked() error {
	if s.inited {
		return nil
	}
	if err := initRuntime(s.libPath); err != nil {
		return err
	}
	inputs, outputs, err := ort.GetInputOutputInfo(s.modelPath)
	if err != nil {
		return fmt.Errorf("onnx get input/output info: %w", err)
	}
	if len(inputs) == 0 || len(outputs) == 0 {
		return errors.New("onnx model has no inputs or outputs")
	}
	names := make([]string, 0, len(inputs))
	for _, in := range inputs {
		switch in.Name {
		case "input_ids", "attention_mask", "token_type_ids":
			names = append(names, in.Name)
		default:
			return fmt.Errorf("onnx model has unexpected input %q", in.Name)
		}
	}
	sess, err := ort.NewDynamicAdvancedSession(s.modelPath, names, []string{outputs[0].Name}, nil)
	if err != nil {
		return fmt.Errorf("onnx new session: %w", err)
	}
	s.ort = sess
	s.inputNames = names
	s.outputName = outputs[0].Name
	s.inited = true
	return nil
}

// run feeds the batch and returns the first output's data and shape.
func (s *session) run(ctx context.Context, b Batch) ([]float32, ort.Shape, error) {
	if err := s.runSem.Acquire(ctx, 1); err != nil {
		return nil, nil, err
	}
	defer s.runSem.Release(1)

	g, err := s.ready(ctx)
	if err != nil {
		return nil, nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	shape := ort.NewShape(int64(b.Rows), int64(b.Cols))
	inputs := make([]ort.Value, 0, len(g.inputNames))
	defer func() {
		for _, v := range inputs {
			v.Destroy()
		}
	}()
	for _, name := range g.inputNames {
		var data []int64
		switch name {
		case "input_ids":
			data = b.IDs
		case "attention_mask":
			data = b.AttentionMask
		case "token_type_ids":
			data = b.TypeIDs
		}
		t, err := ort.NewTensor(shape, data)
		if err != nil {
			return nil, nil, fmt.Errorf("onnx new %s tensor: %w", name, err)
		}
		inputs = append(inputs, t)
	}

	outputs := []ort.Value{nil}
	if err := g.ort.Run(inputs, outputs); err != nil {
		return nil, nil, fmt.Errorf("onnx run: %w", err)
	}
	defer outputs[0].Destroy()

	out, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, nil, fmt.Errorf("onnx output %s is not float32", g.outputName)
	}
	data := append([]float32(nil), out.GetData()...)
	return data, out.GetShape().Clone(), nil
}

// close waits for in-flight runs before destroying the session.
func (s *session) close() error {
	ctx := context.Background()
	if err := s.runSem.Acquire(ctx, s.maxRuns); err != nil {
		return err
	}
	defer s.runSem.Release(s.maxRuns)
	if err := s.initSem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer s.initSem.Release(1)
	if !s.inited {
		return nil
	}
	s.inited = false
	return s.ort.Destroy()
}
