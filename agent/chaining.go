// Chaining policy - decide whether a turn needs another model/tool cycle
package agent

import (
	"fmt"
	"strings"
)

// ChainingPolicy decides, after a tool executed, whether the original request
// implies more work. Implementations must be pure functions of their inputs.
type ChainingPolicy interface {
	ShouldContinue(toolName, toolStatus, userText string) (bool, string)
}

// KeywordChainingPolicy is the default heuristic: continue only when a
// discovery tool just ran and the utterance carries mutation intent that no
// mutation tool has satisfied yet. The caller guards "not yet executed" by
// consulting the policy only with the most recent tool.
type KeywordChainingPolicy struct {
	// DiscoveryTools maps tool names that look things up
	DiscoveryTools map[string]bool
	// MutationKeywords are intent markers for write-style follow-ups
	MutationKeywords []string
}

// NewKeywordChainingPolicy returns the default policy
func NewKeywordChainingPolicy() *KeywordChainingPolicy {
	return &KeywordChainingPolicy{
		DiscoveryTools: map[string]bool{
			"search_pages":  true,
			"read_page":     true,
			"memory_search": true,
		},
		MutationKeywords: []string{
			"add", "create", "update", "append", "insert",
			"write", "save", "record", "put",
		},
	}
}

// ShouldContinue implements ChainingPolicy. A failed tool never chains: the
// run finalizes and surfaces the failure to the user.
func (p *KeywordChainingPolicy) ShouldContinue(toolName, toolStatus, userText string) (bool, string) {
	if toolStatus != "ok" {
		return false, ""
	}
	if !p.DiscoveryTools[toolName] {
		return false, ""
	}

	lower := strings.ToLower(userText)
	for _, kw := range p.MutationKeywords {
		if containsWord(lower, kw) {
			guidance := fmt.Sprintf(
				"The user's request (%q) asks for a change (%q) that has not been made yet. "+
					"Use the results of %s to perform it now with the appropriate tool.",
				strings.TrimSpace(userText), kw, toolName)
			return true, guidance
		}
	}
	return false, ""
}

// containsWord matches kw as a whole word so "add" does not fire on "address"
func containsWord(text, kw string) bool {
	idx := 0
	for {
		i := strings.Index(text[idx:], kw)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(kw)
		beforeOK := start == 0 || !isWordChar(text[start-1])
		afterOK := end == len(text) || !isWordChar(text[end])
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isWordChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_'
}
