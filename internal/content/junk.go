// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package content

import (
	"regexp"
	"strings"
)

var (
	toolCallPrefixRe = regexp.MustCompile(`(?i)^\s*(tool_call|function_call|calling tool|invoking)[:\s]`)
	tracebackRe      = regexp.MustCompile(`(?i)(traceback \(most recent call last\)|^\s*at [\w.$]+\(.*\)\s*$)`)
	fetchErrorRe     = regexp.MustCompile(`(?i)(failed to fetch|fetch error|ERR_CONNECTION|404 not found|503 service unavailable)`)
	imagePlaceholderRe = regexp.MustCompile(`(?i)^\s*\[image[^\]]*\]\s*$`)
)

const minUsefulLength = 30

// IsJunk is the single authoritative "not worth embedding" policy, shared
// by the indexer and the block extractor: drop tool-role
// messages, anything shorter than minUsefulLength, tool-call prefixes,
// stack traces, fetch errors, and bare image placeholders.
func IsJunk(role, text string) bool {
	if role == "tool" {
		return true
	}
	trimmed := strings.TrimSpace(text)
	if len(trimmed) < minUsefulLength {
		return true
	}
	if toolCallPrefixRe.MatchString(trimmed) {
		return true
	}
	if tracebackRe.MatchString(trimmed) {
		return true
	}
	if fetchErrorRe.MatchString(trimmed) {
		return true
	}
	if imagePlaceholderRe.MatchString(trimmed) {
		return true
	}
	return false
}
