// Package manifest loads preview declarations from HCL files.
//
// A manifest directory holds any number of *.preview.hcl files. Each file
// declares previews and, at most once per directory, the build generation to
// render them with:
//
//	preview "primary_button" {
//	  function  = "demo.Button"
//	  width_dp  = -1
//	  density   = 2
//	  param     = "Continue"
//	}
//
//	build {
//	  generation  = 1
//	  output_dirs = ["build/classes"]
//	}
//
// Omitted attributes take the defaults of preview.DefaultSpec.
package manifest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2/hclparse"

	"preview_engine/preview"
	"preview_engine/sandbox"
)

// FileSuffix is the suffix of manifest files.
const FileSuffix = ".preview.hcl"

var (
	// ErrInvalidManifest wraps every parse and decode failure.
	ErrInvalidManifest = errors.New("manifest: invalid manifest")
	// ErrDuplicateBuild is returned when more than one build block is found.
	ErrDuplicateBuild = errors.New("manifest: more than one build block")
)

// Declaration is one preview declared in a manifest file.
type Declaration struct {
	Name       string
	FunctionID string
	// Line is the source line reported to the UI. It defaults to the line of
	// the preview block.
	Line  int
	File  string
	Spec  preview.Spec
	Param preview.Param
}

// Key returns the cache key rendered for the declaration.
func (d Declaration) Key() preview.Key {
	return preview.NewKey(d.FunctionID, d.Param, d.Spec)
}

// Manifest is the merged content of a manifest directory.
type Manifest struct {
	Dir          string
	Files        []string
	Declarations []Declaration
	// Build is nil when no build block was declared.
	Build *sandbox.Generation
}

// Keys returns the declaration keys in declaration order.
func (m *Manifest) Keys() []preview.Key {
	keys := make([]preview.Key, len(m.Declarations))
	for i, d := range m.Declarations {
		keys[i] = d.Key()
	}
	return keys
}

// Lookup returns the declaration whose key has the given ID.
func (m *Manifest) Lookup(keyID string) (Declaration, bool) {
	for _, d := range m.Declarations {
		if d.Key().ID() == keyID {
			return d, true
		}
	}
	return Declaration{}, false
}

// LoadDir parses every manifest file below dir and returns the merged
// declarations ordered by file and line.
//
// Example:
//
//	m, err := manifest.LoadDir(ctx, "./previews")
//	if err != nil {
//	    return err
//	}
//	states := scheduler.RequestPreviews(m.Keys())
func LoadDir(ctx context.Context, dir string) (*Manifest, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidManifest, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrInvalidManifest, dir)
	}

	// Step 1: Find all manifest files first
	files, err := findFiles(dir)
	if err != nil {
		return nil, err
	}

	// Step 2: Parse each file with a shared parser
	parser := hclparse.NewParser()
	m := &Manifest{Dir: dir, Files: files}
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		src, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidManifest, err)
		}
		parsed, err := parse(parser, src, path)
		if err != nil {
			return nil, err
		}
		if err := m.merge(parsed); err != nil {
			return nil, err
		}
	}

	// Step 3: Order declarations for the UI
	sortDeclarations(m.Declarations)
	return m, nil
}

// Parse decodes a single manifest file held in memory. filename is used in
// diagnostics and to resolve relative build paths.
func Parse(src []byte, filename string) (*Manifest, error) {
	parsed, err := parse(hclparse.NewParser(), src, filename)
	if err != nil {
		return nil, err
	}
	m := &Manifest{Dir: filepath.Dir(filename), Files: []string{filename}}
	if err := m.merge(parsed); err != nil {
		return nil, err
	}
	sortDeclarations(m.Declarations)
	return m, nil
}

func (m *Manifest) merge(f *parsedFile) error {
	if f.build != nil {
		if m.Build != nil {
			return fmt.Errorf("%w: second block in %s", ErrDuplicateBuild, f.path)
		}
		m.Build = f.build
	}
	m.Declarations = append(m.Declarations, f.declarations...)
	return nil
}

func findFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), FileSuffix) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: walking %s: %w", ErrInvalidManifest, dir, err)
	}
	sort.Strings(files)
	return files, nil
}

func sortDeclarations(decls []Declaration) {
	sort.SliceStable(decls, func(i, j int) bool {
		if decls[i].File != decls[j].File {
			return decls[i].File < decls[j].File
		}
		return decls[i].Line < decls[j].Line
	})
}
