// Package sandbox is the caller side of the preview isolation boundary. It
// resolves an execution unit for a compiled-code generation and invokes
// preview entry points through a narrow, primitive-only call signature.
//
// It follows atomic design principles:
//
//   - Atoms: Generation, RawImage, ParseFunctionID, sentinel errors
//   - Molecules: InProcessLoader, ProcessLoader, Resolver
//   - Organism: this package exposing a unified Unit API to the render pipeline
//
// # Public API
//
//   - NewResolver(loader Loader, logger *zap.Logger) *Resolver
//   - (*Resolver) Acquire(ctx context.Context, gen Generation) (*Lease, error)
//   - (*Lease) ResolveFunction(ctx context.Context, id string) (FunctionHandle, error)
//   - (Unit) Invoke(ctx, entry, fn, param, widthDp, heightDp, density,
//     fontScale, darkMode, locale, rtl, inspectionMode, insetsWire) (RawImage, error)
//   - (*Lease) Release()
//
// # Quick Start
//
//	resolver := sandbox.NewResolver(
//	    sandbox.NewInProcessLoader(sandbox.StaticLibrary(demo.NewLibrary())),
//	    logger,
//	)
//	defer resolver.Close()
//
//	lease, err := resolver.Acquire(ctx, sandbox.Generation{Counter: 1})
//	if err != nil {
//	    return err // wraps ErrResolveFailed
//	}
//	defer lease.Release()
//
//	fn, err := lease.ResolveFunction(ctx, "demo.Button")
//	if err != nil {
//	    return err
//	}
//	img, err := lease.Unit().Invoke(ctx, lease.RenderEntry(), fn, "OK",
//	    -1, -1, 2, 1, false, "en-US", false, true, wire)
//
// # Backends
//
//   - In-process (NewInProcessLoader): the unit calls the entry points of a
//     previewkit.Library bound to the generation. Only primitives are passed.
//   - Out-of-process (NewProcessLoader): one worker process per generation,
//     spawned with PREVIEW_WORKER_SOCKET and PREVIEW_WORKER_RESOURCES, reached
//     over HTTP on a unix socket. The worker side is previewkit.ServeWorker.
//
// # Error Handling
//
//   - ErrResolveFailed: the generation could not be resolved; memoized until
//     a generation with a different fingerprint is requested
//   - *InvocationError: the preview function failed; the message is verbatim
//   - ErrProtocol: caller and runtime disagree on the wire contract
//   - ErrWorkerStart, ErrWorkerUnavailable: worker process problems
//
// # Thread Safety
//
// Resolver is safe for concurrent use. Units serialize nothing themselves;
// the render scheduler runs one invocation at a time.
package sandbox
