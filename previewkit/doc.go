// Package previewkit is the callee side of the preview isolation boundary:
// the SDK that preview functions are written against and the runtime that
// executes them.
//
// A preview runtime exports two entry points with the primitive EntryFunc
// signature:
//
//   - RenderEntryPoint (Library.Render): draws one preview function on an
//     offscreen gg surface and returns its pixels
//   - ChromeEntryPoint (Chrome): draws the simulated device chrome for a
//     device inset configuration
//
// Nothing but primitives crosses the boundary, so a caller compiled against
// a different version of this package can still drive a runtime as long as
// ProtocolVersion matches.
//
// # Writing previews
//
//	lib := previewkit.NewLibrary("demo")
//	lib.MustRegister("demo.Button", func(s *previewkit.Surface, param any) error {
//	    s.SetRGB(0.2, 0.4, 0.9)
//	    s.DrawRoundedRectangle(0, 0, s.Dp(120), s.Dp(40), s.Dp(8))
//	    s.SetContentSize(int(s.Dp(120)), int(s.Dp(40)))
//	    return s.Fill()
//	})
//
// # Sizing
//
// A dimension of floor(dp*density) < 1 device pixel is auto-sized: the
// surface is floor(1024*density) pixels on that axis and the result is cropped
// to the measured content, either declared with Surface.SetContentSize or
// taken from the extent of non-transparent pixels.
//
// # Failure
//
// Panics and returned errors never cross the boundary; they come back as
// errText with the message, a blank line and (for panics) the stack.
//
// # Out-of-process runtimes
//
// ServeWorker exposes a Library over HTTP on a unix socket (GET /v1/catalog,
// POST /v1/invoke) for callers that run previews in a separate process.
package previewkit
