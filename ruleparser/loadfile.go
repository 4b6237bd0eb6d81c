package ruleparser

import (
	"bufio"
	"io"
	"strings"

	"github.com/coredevice/usbpolicyd/rule"
)

// LoadFile reads a rule file, one rule per line, skipping blank lines
// and lines whose first non-space character is '#'. Parsing stops at
// the first malformed line, returning the *herr.ParseError it produced;
// no partial rule set is returned on failure.
func LoadFile(r io.Reader) ([]*rule.Rule, error) {
	scanner := bufio.NewScanner(r)
	var rules []*rule.Rule
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		parsed, err := ParseRule(line, lineNo)
		if err != nil {
			return nil, err
		}
		rules = append(rules, parsed)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return rules, nil
}
