// Command layercheck enforces the package layering of the router.
//
// The decision core (contracts, ledger, compliance, routing and their
// collaborators) must not import the outer surfaces: HTTP API, client,
// report archive, config loading or commands. contracts is a leaf and
// imports no other package of this module.
//
// Usage:
//
//	go run ./tools/layercheck [-root <project-root>]
package main

import (
	"flag"
	"fmt"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const modulePath = "github.com/matbakh-app/matbakh-visibility-boost-sub012"

var outer = []string{
	modulePath + "/pkg/api",
	modulePath + "/pkg/client",
	modulePath + "/pkg/archive",
	modulePath + "/pkg/config",
	modulePath + "/cmd/",
}

// rules maps a package directory to the import prefixes it may not use.
var rules = map[string][]string{
	"pkg/contracts":     {modulePath + "/"},
	"pkg/ledger":        outer,
	"pkg/compliance":    outer,
	"pkg/routing":       outer,
	"pkg/health":        outer,
	"pkg/audit":         outer,
	"pkg/throttle":      outer,
	"pkg/observability": outer,
}

type violation struct {
	File   string
	Line   int
	Import string
	Rule   string
}

func (v violation) String() string {
	return fmt.Sprintf("%s:%d imports %q (forbidden: %q)", v.File, v.Line, v.Import, v.Rule)
}

func check(root string) ([]violation, error) {
	var out []violation
	fset := token.NewFileSet()
	for dir, forbidden := range rules {
		base := filepath.Join(root, filepath.FromSlash(dir))
		if _, err := os.Stat(base); os.IsNotExist(err) {
			continue
		}
		err := filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if d.Name() == "testdata" {
					return filepath.SkipDir
				}
				return nil
			}
			if !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
				return nil
			}
			f, err := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
			if err != nil {
				return fmt.Errorf("parse %s: %w", path, err)
			}
			for _, imp := range f.Imports {
				importPath := strings.Trim(imp.Path.Value, `"`)
				for _, rule := range forbidden {
					if strings.HasPrefix(importPath, rule) {
						pos := fset.Position(imp.Pos())
						rel, _ := filepath.Rel(root, pos.Filename)
						out = append(out, violation{File: filepath.ToSlash(rel), Line: pos.Line, Import: importPath, Rule: rule})
					}
				}
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func main() {
	root := flag.String("root", ".", "Project root directory")
	flag.Parse()

	violations, err := check(*root)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
	for _, v := range violations {
		fmt.Printf("LAYER VIOLATION: %s\n", v)
	}
	if len(violations) > 0 {
		fmt.Printf("\n%d layering violation(s) found\n", len(violations))
		os.Exit(1)
	}
	fmt.Println("layering check passed")
}
