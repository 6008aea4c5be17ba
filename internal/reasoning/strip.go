// Copyright 2026 NGOClaw Authors. All rights reserved.

// Package reasoning strips reasoning/thinking markup from model output
// before it becomes a Thought entry or a final answer. It never runs before
// token/usage accounting — callers count the raw response first.
package reasoning

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// StripMode controls how an unclosed <think> tag is handled.
type StripMode int

const (
	// StripStrict truncates everything after an unclosed <think> (default).
	StripStrict StripMode = iota
	// StripPreserve keeps content after an unclosed <think> tag.
	StripPreserve
)

// TrimMode controls whitespace trimming of the result.
type TrimMode int

const (
	TrimBoth  TrimMode = iota // default
	TrimStart                 // leading whitespace only
	TrimNone                  // no trimming
)

// Option configures Strip.
type Option func(*config)

type config struct {
	mode StripMode
	trim TrimMode
}

func WithStripMode(m StripMode) Option { return func(c *config) { c.mode = m } }
func WithTrimMode(t TrimMode) Option   { return func(c *config) { c.trim = t } }

var (
	quickTagRe    = regexp.MustCompile(`(?i)<\s*/?\s*(?:think(?:ing)?|thought|antthinking|final)\b`)
	finalTagRe    = regexp.MustCompile(`(?i)<\s*/?\s*final\b[^<>]*>`)
	thinkingTagRe = regexp.MustCompile(`(?i)<\s*(/?)\s*(?:think(?:ing)?|thought|antthinking)\b[^<>]*>`)
	inlineCodeRe  = regexp.MustCompile("`+[^`]+`+")
)

type codeRegion struct{ start, end int }

// findCodeRegions locates fenced (``` / ~~~) and inline code spans so tags
// inside them survive stripping untouched.
func findCodeRegions(text string) []codeRegion {
	var regions []codeRegion
	regions = append(regions, findFencedBlocks(text, "```")...)
	regions = append(regions, findFencedBlocks(text, "~~~")...)

	for _, match := range inlineCodeRe.FindAllStringIndex(text, -1) {
		insideFenced := false
		for _, r := range regions {
			if match[0] >= r.start && match[1] <= r.end {
				insideFenced = true
				break
			}
		}
		if !insideFenced {
			regions = append(regions, codeRegion{match[0], match[1]})
		}
	}
	return regions
}

func findFencedBlocks(text, fence string) []codeRegion {
	var regions []codeRegion
	offset := 0
	for offset < len(text) {
		idx := strings.Index(text[offset:], fence)
		if idx < 0 {
			break
		}
		start := offset + idx
		if start > 0 && text[start-1] != '\n' {
			offset = start + len(fence)
			continue
		}
		lineEnd := strings.Index(text[start:], "\n")
		if lineEnd < 0 {
			break
		}
		searchFrom := start + lineEnd + 1
		closeIdx := -1
		pos := searchFrom
		for pos < len(text) {
			ci := strings.Index(text[pos:], fence)
			if ci < 0 {
				break
			}
			cand := pos + ci
			if cand == 0 || text[cand-1] == '\n' {
				closeIdx = cand
				break
			}
			pos = cand + len(fence)
		}
		if closeIdx >= 0 {
			end := closeIdx + len(fence)
			if nlAfter := strings.Index(text[end:], "\n"); nlAfter >= 0 {
				end += nlAfter + 1
			} else {
				end = len(text)
			}
			regions = append(regions, codeRegion{start, end})
			offset = end
		} else {
			regions = append(regions, codeRegion{start, len(text)})
			break
		}
	}
	return regions
}

func isInsideCode(pos int, regions []codeRegion) bool {
	for _, r := range regions {
		if pos >= r.start && pos < r.end {
			return true
		}
	}
	return false
}

// Strip removes reasoning/thinking markup from model output: <think>,
// <thinking>, <thought>, <antthinking>, and <final> tags, case-insensitive.
// Tags inside code blocks (fenced or inline) are left untouched. Default
// behavior is strict mode with both-side trimming.
func Strip(text string, opts ...Option) string {
	if text == "" {
		return text
	}
	if !quickTagRe.MatchString(text) {
		return text
	}

	cfg := &config{mode: StripStrict, trim: TrimBoth}
	for _, o := range opts {
		o(cfg)
	}

	cleaned := text
	if finalTagRe.MatchString(cleaned) {
		preCodeRegions := findCodeRegions(cleaned)
		matches := finalTagRe.FindAllStringIndex(cleaned, -1)
		for i := len(matches) - 1; i >= 0; i-- {
			m := matches[i]
			if !isInsideCode(m[0], preCodeRegions) {
				cleaned = cleaned[:m[0]] + cleaned[m[1]:]
			}
		}
	}

	codeRegions := findCodeRegions(cleaned)
	allMatches := thinkingTagRe.FindAllStringSubmatchIndex(cleaned, -1)

	var result strings.Builder
	result.Grow(len(cleaned))

	lastIndex := 0
	inThinking := false
	for _, match := range allMatches {
		idx, matchEnd := match[0], match[1]
		isClose := match[2] != match[3]

		if isInsideCode(idx, codeRegions) {
			continue
		}
		if !inThinking {
			result.WriteString(cleaned[lastIndex:idx])
			if !isClose {
				inThinking = true
			}
		} else if isClose {
			inThinking = false
		}
		lastIndex = matchEnd
	}

	if !inThinking || cfg.mode == StripPreserve {
		result.WriteString(cleaned[lastIndex:])
	}

	return applyTrim(result.String(), cfg.trim)
}

func applyTrim(s string, mode TrimMode) string {
	switch mode {
	case TrimNone:
		return s
	case TrimStart:
		return trimLeftUTF8(s)
	default:
		return strings.TrimSpace(s)
	}
}

func trimLeftUTF8(s string) string {
	i := 0
	for i < len(s) {
		r, size := utf8.DecodeRuneInString(s[i:])
		if r != ' ' && r != '\t' && r != '\n' && r != '\r' {
			break
		}
		i += size
	}
	return s[i:]
}
