package testlist

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ethereum-optimism/infra/op-testrun/types"
	"golang.org/x/mod/modfile"
)

// FindTestFunctions takes a package path and working directory, and returns a list of test function names
// in source order
func FindTestFunctions(pkgPath string, workingDir string) ([]string, error) {
	pkgDir, err := packageDir(pkgPath, workingDir)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(pkgDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read package directory: %w", err)
	}

	var testFunctions []string
	fset := token.NewFileSet()

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), "_test.go") {
			continue
		}

		filePath := filepath.Join(pkgDir, entry.Name())
		f, err := parser.ParseFile(fset, filePath, nil, parser.SkipObjectResolution)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", entry.Name(), err)
		}

		for _, decl := range f.Decls {
			funcDecl, ok := decl.(*ast.FuncDecl)
			if !ok || funcDecl.Recv != nil {
				continue
			}
			if isTestName(funcDecl.Name.Name) {
				testFunctions = append(testFunctions, funcDecl.Name.Name)
			}
		}
	}

	return testFunctions, nil
}

// isTestName follows the go tool: "Test" alone or followed by a non-lowercase rune, except TestMain
func isTestName(name string) bool {
	if name == "TestMain" || !strings.HasPrefix(name, "Test") {
		return false
	}
	if len(name) == len("Test") {
		return true
	}
	r, _ := utf8.DecodeRuneInString(name[len("Test"):])
	return !unicode.IsLower(r)
}

// packageDir resolves a relative ("./x") or module-qualified package path to a directory
func packageDir(pkgPath string, workingDir string) (string, error) {
	if pkgPath == "." || strings.HasPrefix(pkgPath, "./") {
		return filepath.Join(workingDir, strings.TrimPrefix(pkgPath, "./")), nil
	}

	goModPath := filepath.Join(workingDir, "go.mod")
	goModContent, err := os.ReadFile(goModPath)
	if err != nil {
		return "", fmt.Errorf("failed to read go.mod: %w", err)
	}

	modFile, err := modfile.Parse(goModPath, goModContent, nil)
	if err != nil {
		return "", fmt.Errorf("failed to parse go.mod: %w", err)
	}
	if modFile.Module == nil || modFile.Module.Mod.Path == "" {
		return "", fmt.Errorf("could not find module name in go.mod")
	}

	moduleName := modFile.Module.Mod.Path
	if pkgPath != moduleName && !strings.HasPrefix(pkgPath, moduleName+"/") {
		return "", fmt.Errorf("package %s is not in module %s", pkgPath, moduleName)
	}

	relPath := strings.TrimPrefix(strings.TrimPrefix(pkgPath, moduleName), "/")
	return filepath.Join(workingDir, relPath), nil
}

// DiscoverPackages returns every directory under root holding _test.go files,
// as sorted "./rel" package paths. Directories the go tool ignores are skipped.
func DiscoverPackages(root string) ([]string, error) {
	seen := make(map[string]struct{})
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			name := d.Name()
			if path != root && (name == "vendor" || name == "testdata" ||
				strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_")) {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(d.Name(), "_test.go") {
			return nil
		}
		rel, err := filepath.Rel(root, filepath.Dir(path))
		if err != nil {
			return err
		}
		if rel == "." {
			seen["."] = struct{}{}
		} else {
			seen["./"+filepath.ToSlash(rel)] = struct{}{}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to discover test packages in %s: %w", root, err)
	}

	packages := make([]string, 0, len(seen))
	for pkg := range seen {
		packages = append(packages, pkg)
	}
	sort.Strings(packages)
	return packages, nil
}

// Discover lists the test cases of the given packages, in package order and then
// source order. With no packages every test package under workDir is used.
func Discover(workDir string, pkgs []string) ([]types.TestCase, error) {
	if len(pkgs) == 0 {
		var err error
		if pkgs, err = DiscoverPackages(workDir); err != nil {
			return nil, err
		}
	}

	var cases []types.TestCase
	for _, pkg := range pkgs {
		names, err := FindTestFunctions(pkg, workDir)
		if err != nil {
			return nil, fmt.Errorf("failed to list tests of %s: %w", pkg, err)
		}
		for _, name := range names {
			cases = append(cases, types.NewTestCase(pkg, name))
		}
	}
	return cases, nil
}
