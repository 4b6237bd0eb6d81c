package ruleparser

import (
	"errors"
	"strings"
	"testing"

	"github.com/coredevice/usbpolicyd/internal/herr"
)

func TestLoadFileSkipsBlankAndCommentLines(t *testing.T) {
	input := strings.Join([]string{
		"# comment",
		"",
		`allow id 1d6b:0002`,
		"   ",
		"block",
	}, "\n")
	rules, err := LoadFile(strings.NewReader(input))
	if err != nil {
		t.Fatalf("LoadFile() error: %v", err)
	}
	if len(rules) != 2 {
		t.Fatalf("len(rules) = %d, want 2", len(rules))
	}
}

func TestLoadFileAbortsOnFirstMalformedLine(t *testing.T) {
	input := strings.Join([]string{
		`allow id 1d6b:0002`,
		`allow name "a" name "b"`,
		`block`,
	}, "\n")
	_, err := LoadFile(strings.NewReader(input))
	var pe *herr.ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v, want *herr.ParseError", err)
	}
	if pe.Line != 2 {
		t.Errorf("Line = %d, want 2", pe.Line)
	}
}
