package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQualifiedName(t *testing.T) {
	tests := []struct {
		name     string
		tc       TestCase
		expected string
	}{
		{"container and name", NewTestCase("MathSuite", "TestAdd"), "MathSuite.TestAdd"},
		{"package path", NewTestCase("./collector", "TestStart"), "./collector.TestStart"},
		{"no container", NewTestCase("", "TestAlone"), "TestAlone"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.tc.QualifiedName())
			assert.Equal(t, tt.expected, tt.tc.String())
		})
	}
}

func TestParseTestCase(t *testing.T) {
	tests := []struct {
		input    string
		expected TestCase
		wantErr  bool
	}{
		{input: "MathSuite.TestAdd", expected: TestCase{Container: "MathSuite", Name: "TestAdd"}},
		{input: "github.com/foo/bar.TestX", expected: TestCase{Container: "github.com/foo/bar", Name: "TestX"}},
		{input: "./collector.TestStart", expected: TestCase{Container: "./collector", Name: "TestStart"}},
		{input: "TestAlone", expected: TestCase{Name: "TestAlone"}},
		{input: "  ", wantErr: true},
		{input: "Suite.", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			tc, err := ParseTestCase(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, tc)
		})
	}
}

func TestTestCaseIsComparable(t *testing.T) {
	seen := map[TestCase]int{}
	seen[NewTestCase("a", "TestOne")]++
	seen[NewTestCase("a", "TestOne")]++
	seen[NewTestCase("b", "TestOne")]++
	assert.Len(t, seen, 2)
	assert.Equal(t, 2, seen[NewTestCase("a", "TestOne")])
}
