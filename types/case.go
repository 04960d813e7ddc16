package types

import (
	"fmt"
	"strings"
)

// TestCase identifies a single executable unit of test logic.
// It is a value type so it can be used as a map key.
type TestCase struct {
	Container string `json:"container" yaml:"container"`
	Name      string `json:"name" yaml:"name"`
}

// NewTestCase creates a TestCase from a container (package, suite, file) and a case name
func NewTestCase(container, name string) TestCase {
	return TestCase{Container: container, Name: name}
}

// QualifiedName returns "<Container>.<Name>", or just the name for containerless cases
func (tc TestCase) QualifiedName() string {
	if tc.Container == "" {
		return tc.Name
	}
	return tc.Container + "." + tc.Name
}

func (tc TestCase) String() string {
	return tc.QualifiedName()
}

// Validate checks that the case can be executed and reported
func (tc TestCase) Validate() error {
	if tc.Name == "" {
		return fmt.Errorf("test case name cannot be empty")
	}
	if strings.ContainsAny(tc.Name, " \t\n") {
		return fmt.Errorf("test case name %q cannot contain whitespace", tc.Name)
	}
	return nil
}

// ParseTestCase splits a qualified name on its last '.'.
// "github.com/foo/bar.TestX" yields container "github.com/foo/bar" and name "TestX".
func ParseTestCase(qualified string) (TestCase, error) {
	qualified = strings.TrimSpace(qualified)
	if qualified == "" {
		return TestCase{}, fmt.Errorf("qualified name cannot be empty")
	}
	idx := strings.LastIndex(qualified, ".")
	if idx < 0 {
		return TestCase{Name: qualified}, nil
	}
	// A leading "./" package has its dots before the last slash.
	if slash := strings.LastIndex(qualified, "/"); slash > idx {
		return TestCase{Name: qualified}, nil
	}
	tc := TestCase{Container: qualified[:idx], Name: qualified[idx+1:]}
	if err := tc.Validate(); err != nil {
		return TestCase{}, err
	}
	return tc, nil
}
