package manifest

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclsyntax"

	"preview_engine/preview"
	"preview_engine/sandbox"
)

// hclFile is the top-level structure of a manifest file.
type hclFile struct {
	Previews []*hclPreview `hcl:"preview,block"`
	Builds   []*hclBuild   `hcl:"build,block"`
}

// hclPreview is one preview block. Pointer fields are nil when the
// attribute is omitted so the Spec default applies.
type hclPreview struct {
	Name                  string         `hcl:"name,label"`
	Function              string         `hcl:"function"`
	Line                  *int           `hcl:"line,optional"`
	Group                 *string        `hcl:"group,optional"`
	WidthDp               *int           `hcl:"width_dp,optional"`
	HeightDp              *int           `hcl:"height_dp,optional"`
	Locale                *string        `hcl:"locale,optional"`
	RTL                   *bool          `hcl:"rtl,optional"`
	FontScale             *float64       `hcl:"font_scale,optional"`
	Density               *float64       `hcl:"density,optional"`
	DarkMode              *bool          `hcl:"dark_mode,optional"`
	BackgroundColor       *string        `hcl:"background_color,optional"`
	StatusBar             *bool          `hcl:"status_bar,optional"`
	NavigationBar         *string        `hcl:"navigation_bar,optional"`
	NavigationBarContrast *bool          `hcl:"navigation_bar_contrast,optional"`
	DisplayCutout         *string        `hcl:"display_cutout,optional"`
	CaptionBar            *bool          `hcl:"caption_bar,optional"`
	InspectionMode        *bool          `hcl:"inspection_mode,optional"`
	Param                 hcl.Expression `hcl:"param,optional"`
}

// hclBuild is the optional build block.
type hclBuild struct {
	Generation int64    `hcl:"generation"`
	OutputDirs []string `hcl:"output_dirs,optional"`
	Libraries  []string `hcl:"libraries,optional"`
}

// parsedFile is the decoded content of one manifest file.
type parsedFile struct {
	path         string
	declarations []Declaration
	build        *sandbox.Generation
}

// parse decodes one manifest file.
func parse(parser *hclparse.Parser, src []byte, path string) (*parsedFile, error) {
	file, diags := parser.ParseHCL(src, path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("%w: %w", ErrInvalidManifest, diags)
	}

	var raw hclFile
	if diags := gohcl.DecodeBody(file.Body, nil, &raw); diags.HasErrors() {
		return nil, fmt.Errorf("%w: %w", ErrInvalidManifest, diags)
	}

	out := &parsedFile{path: path}
	lines := blockLines(file.Body, "preview")
	seen := make(map[string]int, len(raw.Previews))
	for i, p := range raw.Previews {
		line := 0
		if i < len(lines) {
			line = lines[i]
		}
		if prev, dup := seen[p.Name]; dup {
			return nil, fmt.Errorf("%w: %s:%d: preview %q already declared on line %d",
				ErrInvalidManifest, path, line, p.Name, prev)
		}
		seen[p.Name] = line

		decl, err := p.declaration(path, line)
		if err != nil {
			return nil, fmt.Errorf("%w: %s:%d: preview %q: %w", ErrInvalidManifest, path, line, p.Name, err)
		}
		out.declarations = append(out.declarations, decl)
	}

	switch len(raw.Builds) {
	case 0:
	case 1:
		out.build = raw.Builds[0].generation(filepath.Dir(path))
	default:
		return nil, fmt.Errorf("%w: %s declares %d", ErrDuplicateBuild, path, len(raw.Builds))
	}
	return out, nil
}

// blockLines returns the start line of each block of the given type in
// source order. gohcl decodes blocks in the same order.
func blockLines(body hcl.Body, blockType string) []int {
	syntaxBody, ok := body.(*hclsyntax.Body)
	if !ok {
		return nil
	}
	var lines []int
	for _, b := range syntaxBody.Blocks {
		if b.Type == blockType {
			lines = append(lines, b.DefRange().Start.Line)
		}
	}
	return lines
}

// declaration converts a decoded block into a Declaration.
func (p *hclPreview) declaration(path string, blockLine int) (Declaration, error) {
	if _, err := sandbox.ParseFunctionID(p.Function); err != nil {
		return Declaration{}, err
	}

	opts := []preview.SpecOption{preview.WithName(p.Name)}
	add := func(opt preview.SpecOption) { opts = append(opts, opt) }

	if p.Group != nil {
		add(preview.WithGroup(*p.Group))
	}
	if p.WidthDp != nil || p.HeightDp != nil {
		w, h := preview.DefaultWidthDp, preview.DefaultHeightDp
		if p.WidthDp != nil {
			w = *p.WidthDp
		}
		if p.HeightDp != nil {
			h = *p.HeightDp
		}
		add(preview.WithSize(w, h))
	}
	if p.Locale != nil {
		add(preview.WithLocale(*p.Locale))
	}
	if p.RTL != nil {
		add(preview.WithRTL(*p.RTL))
	}
	if p.FontScale != nil {
		add(preview.WithFontScale(*p.FontScale))
	}
	if p.Density != nil {
		add(preview.WithDensity(*p.Density))
	}
	if p.DarkMode != nil {
		add(preview.WithDarkMode(*p.DarkMode))
	}
	if p.BackgroundColor != nil {
		argb, err := ParseColor(*p.BackgroundColor)
		if err != nil {
			return Declaration{}, err
		}
		add(preview.WithBackground(argb))
	}
	if p.StatusBar != nil {
		add(preview.WithStatusBar(*p.StatusBar))
	}
	if p.NavigationBar != nil {
		mode, err := preview.ParseNavigationBarMode(*p.NavigationBar)
		if err != nil {
			return Declaration{}, err
		}
		add(preview.WithNavigationBar(mode))
	}
	if p.NavigationBarContrast != nil {
		add(preview.WithNavigationBarContrast(*p.NavigationBarContrast))
	}
	if p.DisplayCutout != nil {
		mode, err := preview.ParseDisplayCutoutMode(*p.DisplayCutout)
		if err != nil {
			return Declaration{}, err
		}
		add(preview.WithDisplayCutout(mode))
	}
	if p.CaptionBar != nil {
		add(preview.WithCaptionBar(*p.CaptionBar))
	}
	if p.InspectionMode != nil {
		add(preview.WithInspectionMode(*p.InspectionMode))
	}

	spec := preview.NewSpec(opts...)
	if err := spec.Validate(); err != nil {
		return Declaration{}, err
	}

	param, err := p.param()
	if err != nil {
		return Declaration{}, err
	}

	line := blockLine
	if p.Line != nil {
		line = *p.Line
	}
	return Declaration{
		Name:       p.Name,
		FunctionID: p.Function,
		Line:       line,
		File:       path,
		Spec:       spec,
		Param:      param,
	}, nil
}

// param evaluates the param expression without variables or functions.
func (p *hclPreview) param() (preview.Param, error) {
	if p.Param == nil {
		return preview.NoParam, nil
	}
	v, diags := p.Param.Value(nil)
	if diags.HasErrors() {
		return preview.NoParam, diags
	}
	return ParamFromCty(v)
}

// generation converts the build block, resolving relative paths against
// the manifest file's directory.
func (b *hclBuild) generation(base string) *sandbox.Generation {
	resolve := func(paths []string) []string {
		out := make([]string, len(paths))
		for i, p := range paths {
			if filepath.IsAbs(p) {
				out[i] = p
			} else {
				out[i] = filepath.Join(base, p)
			}
		}
		return out
	}
	return &sandbox.Generation{
		Counter:    b.Generation,
		OutputDirs: resolve(b.OutputDirs),
		Libraries:  resolve(b.Libraries),
	}
}

// ParseColor parses "#AARRGGBB" or "#RRGGBB" into an ARGB value. Six-digit
// colors are opaque.
func ParseColor(s string) (uint32, error) {
	hex, ok := strings.CutPrefix(s, "#")
	if !ok || (len(hex) != 6 && len(hex) != 8) {
		return 0, fmt.Errorf("%w: background color %q must be #RRGGBB or #AARRGGBB", preview.ErrInvalidSpec, s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: background color %q: %v", preview.ErrInvalidSpec, s, err)
	}
	if len(hex) == 6 {
		v |= 0xFF000000
	}
	return uint32(v), nil
}
