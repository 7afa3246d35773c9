package block

import "fmt"

// Variant identifies the kind of a block.
type Variant int

const (
	Input Variant = iota
	Data
	Code
	LLM
	Map
	Reduce
	Search
	Curl
	Browser
)

var variantNames = [...]string{
	Input:   "input",
	Data:    "data",
	Code:    "code",
	LLM:     "llm",
	Map:     "map",
	Reduce:  "reduce",
	Search:  "search",
	Curl:    "curl",
	Browser: "browser",
}

func (v Variant) String() string {
	if v < 0 || int(v) >= len(variantNames) {
		return fmt.Sprintf("Variant(%d)", int(v))
	}
	return variantNames[v]
}

// ParseVariant maps the first label of a block declaration to its Variant.
func ParseVariant(s string) (Variant, error) {
	for i, name := range variantNames {
		if name == s {
			return Variant(i), nil
		}
	}
	return 0, fmt.Errorf("unknown block variant %q", s)
}

// Cacheable reports whether results of this variant are memoized. Input,
// Data, Map and Reduce only move values that are already at hand.
func (v Variant) Cacheable() bool {
	switch v {
	case Input, Data, Map, Reduce:
		return false
	}
	return true
}

// External reports whether the variant calls out of the process, which is
// where timeouts and retries apply.
func (v Variant) External() bool {
	switch v {
	case LLM, Search, Curl, Browser:
		return true
	}
	return false
}
