package inference

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/nvr-ai/fashion-eval/inference/providers"
	"github.com/nvr-ai/fashion-eval/log"
	"github.com/nvr-ai/fashion-eval/models"
)

// Session runs a multi-head ONNX classifier. The batch dimension is dynamic, so the last
// partial batch of a run needs no padding.
type Session struct {
	model   models.Model
	session *ort.DynamicAdvancedSession
	backend providers.ProviderBackend
	mu      sync.Mutex
}

// NewSession loads the model and binds it to the configured execution provider.
//
// Order of operations:
//  1. Environment setup: loads the ONNX Runtime shared library once per process.
//  2. Graph check: every head output exists and has the expected class count.
//  3. Session options: graph optimizations, threads and the execution provider.
//  4. Session creation: loads the model into a runnable session. With the auto backend a
//     CUDA session that fails to load is retried on CPU.
//
// Arguments:
//   - model: The model description.
//   - cfg: The execution provider configuration.
//
// Returns:
//   - *Session: The session, to be closed by the caller.
//   - error: An error if any step fails.
func NewSession(model models.Model, cfg providers.Config) (*Session, error) {
	if err := model.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid model")
	}

	provider, err := providers.NewProvider(cfg)
	if err != nil {
		return nil, err
	}

	if err := providers.InitializeEnvironment(cfg.LibraryPath); err != nil {
		return nil, err
	}

	if err := checkGraph(model); err != nil {
		return nil, err
	}

	session, backend, err := providers.OpenWithFallback(cfg.Backend, provider,
		func(p providers.ExecutionProvider) (*ort.DynamicAdvancedSession, providers.ProviderBackend, error) {
			return openSession(model, p, cfg.Threads)
		})
	if err != nil {
		return nil, err
	}

	log.Infow("model loaded", "model", model.Name, "path", model.Path, "backend", backend)

	return &Session{
		model:   model,
		session: session,
		backend: backend,
	}, nil
}

// openSession creates an ORT session bound to provider. The resolved backend is returned
// even when session creation fails.
func openSession(
	model models.Model,
	provider providers.ExecutionProvider,
	threads int,
) (*ort.DynamicAdvancedSession, providers.ProviderBackend, error) {
	options, backend, err := providers.NewSessionOptions(provider, threads)
	if err != nil {
		return nil, backend, err
	}
	defer options.Destroy()

	session, err := ort.NewDynamicAdvancedSession(
		model.Path,
		[]string{model.InputName},
		model.OutputNames(),
		options,
	)
	if err != nil {
		return nil, backend, errors.Wrapf(err, "error creating ORT session for %s on %s", model.Path, backend)
	}
	return session, backend, nil
}

// checkGraph compares the graph outputs with the head definitions.
func checkGraph(model models.Model) error {
	_, outputs, err := ort.GetInputOutputInfo(model.Path)
	if err != nil {
		return errors.Wrapf(err, "error reading model %s", model.Path)
	}

	byName := make(map[string]ort.InputOutputInfo, len(outputs))
	for _, o := range outputs {
		byName[o.Name] = o
	}
	for _, h := range models.Heads {
		name := model.Outputs[h]
		info, ok := byName[name]
		if !ok {
			return errors.Errorf("model has no output %q for head %s", name, h)
		}
		dims := info.Dimensions
		if len(dims) != 2 {
			return errors.Errorf("output %q has shape %v, want [batch, classes]", name, dims)
		}
		if dims[1] > 0 && int(dims[1]) != h.NumClasses() {
			return errors.Errorf("output %q has %d classes, head %s has %d", name, dims[1], h, h.NumClasses())
		}
	}
	return nil
}

// Backend returns the execution provider that runs the graph.
func (s *Session) Backend() providers.ProviderBackend {
	return s.backend
}

// Forward runs the model over n images.
//
// Arguments:
//   - ctx: Checked before the run. A forward pass cannot be interrupted.
//   - pixels: n*3*size*size normalized values in NCHW order.
//   - n: The batch size.
//
// Returns:
//   - *Outputs: The logits of every head.
//   - error: An error if the input does not match or the run fails.
func (s *Session) Forward(ctx context.Context, pixels []float32, n int) (*Outputs, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	size := s.model.InputSize
	if n <= 0 || len(pixels) != n*3*size*size {
		return nil, errors.Errorf("input holds %d values, want %d for %d images", len(pixels), n*3*size*size, n)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	input, err := ort.NewTensor(ort.NewShape(s.model.InputShape(n)...), pixels)
	if err != nil {
		return nil, errors.Wrap(err, "error creating input tensor")
	}
	defer input.Destroy()

	out := &Outputs{N: n}
	tensors := make([]*ort.Tensor[float32], 0, models.NumHeads)
	defer func() {
		for _, t := range tensors {
			t.Destroy()
		}
	}()

	values := make([]ort.Value, 0, models.NumHeads)
	for _, h := range models.Heads {
		t, err := ort.NewEmptyTensor[float32](ort.NewShape(int64(n), int64(h.NumClasses())))
		if err != nil {
			return nil, errors.Wrapf(err, "error creating output tensor for %s", h)
		}
		tensors = append(tensors, t)
		values = append(values, t)
		out.Classes[h] = h.NumClasses()
	}

	if err := s.session.Run([]ort.Value{input}, values); err != nil {
		return nil, errors.Wrap(err, "inference failed")
	}

	for i, h := range models.Heads {
		out.Logits[h] = append([]float32(nil), tensors[i].GetData()...)
	}
	return out, nil
}

// Close releases the resources associated with the Session.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return nil
	}
	err := s.session.Destroy()
	s.session = nil
	if err != nil {
		return errors.Wrap(err, "error destroying ORT session")
	}
	return nil
}
