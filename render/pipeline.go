package render

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"go.uber.org/zap"

	"preview_engine/insets"
	"preview_engine/logging"
	"preview_engine/preview"
	"preview_engine/sandbox"
)

// Record describes one completed render for observers.
type Record struct {
	Key        preview.Key
	Generation int64
	Status     Status
	Message    string
	WidthPx    int
	HeightPx   int
	StartedAt  time.Time
	Duration   time.Duration
}

// Observer receives a Record for every render the pipeline completes.
// ObserveRender is called synchronously and must not block.
type Observer interface {
	ObserveRender(Record)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Record)

func (f ObserverFunc) ObserveRender(r Record) { f(r) }

// Pipeline renders preview keys through a sandbox resolver.
//
// This molecule composes:
//   - sandbox.Resolver for the execution unit of a generation
//   - insets.Derive/Encode for the device config handed to both layers
//   - Composite for background, content and chrome
//
// Public API:
//   - NewPipeline(): Create a pipeline
//   - Prepare(): Resolve the execution context (no render lock needed)
//   - RenderPrepared(): Render one key with a prepared context
//   - Render(): Prepare + RenderPrepared
type Pipeline struct {
	resolver  *sandbox.Resolver
	logger    *zap.Logger
	observers []Observer
	now       func() time.Time
}

// NewPipeline creates a pipeline. A nil logger disables logging.
func NewPipeline(resolver *sandbox.Resolver, logger *zap.Logger, observers ...Observer) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		resolver:  resolver,
		logger:    logger,
		observers: observers,
		now:       time.Now,
	}
}

// Prepared is a resolved execution context for one generation. It must be
// released after rendering.
type Prepared struct {
	gen   sandbox.Generation
	lease *sandbox.Lease
	err   error
}

// Generation returns the generation the context was prepared for.
func (p *Prepared) Generation() sandbox.Generation { return p.gen }

// Err returns the resolution error, if any.
func (p *Prepared) Err() error { return p.err }

// Release returns the underlying lease.
func (p *Prepared) Release() {
	if p != nil && p.lease != nil {
		p.lease.Release()
	}
}

// Prepare resolves the execution context for gen. Resolution failures are
// carried in the result and surface as Error states from RenderPrepared.
func (p *Pipeline) Prepare(ctx context.Context, gen sandbox.Generation) *Prepared {
	lease, err := p.resolver.Acquire(ctx, gen)
	return &Prepared{gen: gen, lease: lease, err: err}
}

// Render resolves the context for gen and renders key.
func (p *Pipeline) Render(ctx context.Context, gen sandbox.Generation, key preview.Key) State {
	prep := p.Prepare(ctx, gen)
	defer prep.Release()
	return p.RenderPrepared(ctx, prep, key)
}

// RenderPrepared renders key with a prepared context. It never returns a
// Pending state.
//
// Steps:
//  1. Use the resolved unit (or fail with the resolution error)
//  2. Derive the device insets and serialize them to the wire form
//  3. Invoke the preview function (content layer)
//  4. Invoke the chrome entry point at the content's pixel size
//  5. Composite background, content and chrome
//  6. Convert the pixel size back to dp
func (p *Pipeline) RenderPrepared(ctx context.Context, prep *Prepared, key preview.Key) State {
	start := p.now()
	img, err := p.render(ctx, prep, key)

	var state State
	if err != nil {
		state = Error(failureMessage(err))
		if errors.Is(err, sandbox.ErrProtocol) {
			p.logger.DPanic("Render protocol violation",
				append(logging.KeyFields(key.FunctionID, key.ID()), zap.Error(err))...)
		}
	} else {
		b := img.Bounds()
		state = Success(img, SizeDp{
			Width:  float64(b.Dx()) / key.Spec.Density,
			Height: float64(b.Dy()) / key.Spec.Density,
		})
	}

	p.complete(key, prep.gen, state, start)
	return state
}

func (p *Pipeline) render(ctx context.Context, prep *Prepared, key preview.Key) (*image.NRGBA, error) {
	// Step 1: Resolved unit
	if prep.err != nil {
		return nil, prep.err
	}
	spec := key.Spec
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	lease := prep.lease
	unit := lease.Unit()

	fn, err := lease.ResolveFunction(ctx, key.FunctionID)
	if err != nil {
		return nil, err
	}

	// Step 2: Device insets for both layers
	wire := insets.Encode(insets.Derive(spec))

	// Step 3: Content layer
	content, err := unit.Invoke(ctx, lease.RenderEntry(), fn, key.Param.Value(),
		spec.WidthDp, spec.HeightDp, spec.Density, spec.FontScale, spec.DarkMode,
		spec.Locale, spec.RTL, spec.InspectionMode, wire)
	if err != nil {
		return nil, err
	}

	// Step 4: Chrome overlay at the exact content size. Density 1 makes
	// floor(dp*density) reproduce the pixel size.
	overlay, err := unit.Invoke(ctx, lease.ChromeEntry(), sandbox.NoFunction, spec.NavigationBarContrast,
		content.Width, content.Height, 1, spec.FontScale, spec.DarkMode,
		spec.Locale, spec.RTL, spec.InspectionMode, wire)
	if err != nil {
		return nil, err
	}

	// Step 5: Composite
	img, err := Composite(spec.Background, content, overlay)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", sandbox.ErrProtocol, err)
	}
	return img, nil
}

// failureMessage returns the text shown for a failed render. Invocation
// errors keep the message produced inside the isolation boundary verbatim.
func failureMessage(err error) string {
	var ie *sandbox.InvocationError
	if errors.As(err, &ie) {
		return ie.Message
	}
	return err.Error()
}

func (p *Pipeline) complete(key preview.Key, gen sandbox.Generation, state State, start time.Time) {
	end := p.now()
	rec := Record{
		Key:        key,
		Generation: gen.Counter,
		Status:     state.Status,
		Message:    state.Message,
		StartedAt:  start,
		Duration:   end.Sub(start),
	}
	if state.Image != nil {
		b := state.Image.Bounds()
		rec.WidthPx, rec.HeightPx = b.Dx(), b.Dy()
	}

	metrics := logging.RenderMetrics{
		FunctionID: key.FunctionID,
		KeyID:      key.ID(),
		Generation: gen.Counter,
		Status:     state.Status.String(),
		WidthPx:    rec.WidthPx,
		HeightPx:   rec.HeightPx,
		Duration:   rec.Duration,
	}
	if state.IsError() {
		p.logger.Warn("Render failed", logging.RenderFields(metrics), zap.String("message", state.Message))
	} else {
		p.logger.Debug("Render complete", logging.RenderFields(metrics))
	}

	for _, o := range p.observers {
		o.ObserveRender(rec)
	}
}
