// Copyright 2026 NGOClaw Authors. All rights reserved.

// Package tokencount estimates token counts for model messages without a
// model-specific tokenizer, using a blended CJK/English character heuristic
// backed by a process-wide cached weight table.
package tokencount

import (
	"encoding/json"
	"math"
	"sync"

	"github.com/agentrt/agentrt/internal/entity"
)

// weightTable holds the per-rune-class cost weights used by Count. It is
// built once per process via sync.Once — every caller shares the same table
// rather than recomputing constants on each call.
type weightTable struct {
	cjkCharsPerToken     float64
	latinCharsPerToken   float64
	perMessageOverhead   int
	perToolCallOverhead  int
	imageTokens          int
}

var (
	tableOnce sync.Once
	table     weightTable
)

func defaultTable() weightTable {
	return weightTable{
		cjkCharsPerToken:    2.0,
		latinCharsPerToken:  4.0,
		perMessageOverhead:  4,
		perToolCallOverhead: 50,
		imageTokens:         85,
	}
}

func loadTable() weightTable {
	tableOnce.Do(func() {
		table = defaultTable()
	})
	return table
}

// Count estimates the token cost of a single string. The empty string
// costs zero tokens; any non-empty string costs at least one.
func Count(text string) int {
	if text == "" {
		return 0
	}
	t := loadTable()
	cjk, other := 0, 0
	for _, r := range text {
		if isCJK(r) {
			cjk++
		} else {
			other++
		}
	}
	tokens := float64(cjk)/t.cjkCharsPerToken + float64(other)/t.latinCharsPerToken
	return int(math.Ceil(tokens))
}

// CountWithMargin adds marginPercent of safety headroom on top of Count,
// e.g. CountWithMargin(text, 10) reserves 10% more than the raw estimate.
func CountWithMargin(text string, marginPercent float64) int {
	base := Count(text)
	if marginPercent <= 0 {
		return base
	}
	return base + int(math.Ceil(float64(base)*marginPercent/100.0))
}

// FitsContext reports whether text, after CountWithMargin(marginPercent),
// fits within limit tokens.
func FitsContext(text string, marginPercent float64, limit int) bool {
	return CountWithMargin(text, marginPercent) <= limit
}

func isCJK(r rune) bool {
	return r >= 0x4E00 && r <= 0x9FFF
}

// CountMessage estimates the token cost of one message, including its tool
// calls and content parts.
func CountMessage(m entity.Message) int {
	t := loadTable()
	total := Count(m.Content) + t.perMessageOverhead

	for _, p := range m.Parts {
		if p.Type == "text" {
			total += Count(p.Text)
		} else {
			total += t.imageTokens
		}
	}

	for _, tc := range m.ToolCalls {
		total += Count(tc.Name) + t.perToolCallOverhead
		if len(tc.Arguments) > 0 {
			if b, err := json.Marshal(tc.Arguments); err == nil {
				total += Count(string(b))
			}
		}
	}

	return total
}

// trailingOverhead is the fixed closing overhead chat-completion
// accounting charges once per request rather than per message.
const trailingOverhead = 3

// CountMessages sums CountMessage across a history, filling in each
// message's cached Tokens field as it goes, plus a fixed trailing overhead
// for the whole request.
func CountMessages(msgs []entity.Message) int {
	if len(msgs) == 0 {
		return 0
	}
	total := trailingOverhead
	for i := range msgs {
		if msgs[i].Tokens == 0 {
			msgs[i].Tokens = CountMessage(msgs[i])
		}
		total += msgs[i].Tokens
	}
	return total
}
