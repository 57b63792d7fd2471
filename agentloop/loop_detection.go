package agentloop

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
)

// toolCallSignature computes a deterministic signature for a tool call
// (name + hash of arguments).
func toolCallSignature(name string, arguments json.RawMessage) string {
	h := sha256.Sum256(arguments)
	return fmt.Sprintf("%s:%x", name, h[:8])
}

// recentToolCallSignatures returns signatures of the last count tool calls
// across steps, oldest first.
func recentToolCallSignatures(steps []AgentStep, count int) []string {
	var sigs []string
	for i := len(steps) - 1; i >= 0 && len(sigs) < count; i-- {
		calls := steps[i].Response.ToolCalls
		for j := len(calls) - 1; j >= 0 && len(sigs) < count; j-- {
			sigs = append(sigs, toolCallSignature(calls[j].Name, calls[j].Arguments))
		}
	}
	for i, j := 0, len(sigs)-1; i < j; i, j = i+1, j-1 {
		sigs[i], sigs[j] = sigs[j], sigs[i]
	}
	return sigs
}

// detectLoop checks if the last windowSize tool calls follow a repeating
// pattern of length 1, 2, or 3.
func detectLoop(steps []AgentStep, windowSize int) bool {
	if windowSize < 2 {
		return false
	}
	sigs := recentToolCallSignatures(steps, windowSize)
	if len(sigs) < windowSize {
		return false
	}

	for patternLen := 1; patternLen <= 3; patternLen++ {
		if windowSize%patternLen != 0 || patternLen == windowSize {
			continue
		}
		pattern := sigs[:patternLen]
		allMatch := true
		for i := patternLen; i < windowSize && allMatch; i += patternLen {
			for j := 0; j < patternLen; j++ {
				if sigs[i+j] != pattern[j] {
					allMatch = false
					break
				}
			}
		}
		if allMatch {
			return true
		}
	}
	return false
}

// RepeatedToolCalls matches when the last window tool calls repeat a
// pattern of one, two, or three calls with identical arguments.
func RepeatedToolCalls(window int) StopCondition {
	return StopCondition{check: func(steps []AgentStep) (StopReason, bool) {
		return StopLoopDetected, detectLoop(steps, window)
	}}
}
