package testlist

import (
	"errors"
	"fmt"
	"os"

	"github.com/ethereum-optimism/infra/op-testrun/types"
	"gopkg.in/yaml.v3"
)

// CaseFile is the YAML list of cases to run:
//
//	cases:
//	  - package: ./calc
//	    tests: [TestAdd, TestSub]
//	  - package: ./strings
type CaseFile struct {
	Cases []PackageCases `yaml:"cases"`
}

// PackageCases selects tests of one package. No tests means all of them.
type PackageCases struct {
	Package string   `yaml:"package"`
	Tests   []string `yaml:"tests,omitempty"`
}

// LoadCaseFile reads and validates a case file
func LoadCaseFile(path string) (*CaseFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read case file: %w", err)
	}

	var cf CaseFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("failed to parse case file: %w", err)
	}
	if err := cf.Validate(); err != nil {
		return nil, fmt.Errorf("invalid case file %s: %w", path, err)
	}
	return &cf, nil
}

// Validate checks that every entry names a package and valid test names
func (cf *CaseFile) Validate() error {
	if len(cf.Cases) == 0 {
		return errors.New("no cases listed")
	}
	for i, pc := range cf.Cases {
		if pc.Package == "" {
			return fmt.Errorf("entry %d: package cannot be empty", i)
		}
		for _, name := range pc.Tests {
			if err := types.NewTestCase(pc.Package, name).Validate(); err != nil {
				return fmt.Errorf("entry %d: %w", i, err)
			}
		}
	}
	return nil
}

// Resolve expands the case file into test cases, listing the tests of
// packages without an explicit selection
func (cf *CaseFile) Resolve(workDir string) ([]types.TestCase, error) {
	var cases []types.TestCase
	for _, pc := range cf.Cases {
		names := pc.Tests
		if len(names) == 0 {
			var err error
			if names, err = FindTestFunctions(pc.Package, workDir); err != nil {
				return nil, fmt.Errorf("failed to list tests of %s: %w", pc.Package, err)
			}
		}
		for _, name := range names {
			cases = append(cases, types.NewTestCase(pc.Package, name))
		}
	}
	return cases, nil
}
