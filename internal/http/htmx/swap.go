package htmx

import (
	"fmt"
	"strings"
)

// Swap is how a fragment is placed relative to its target element.
type Swap int

const (
	InnerHTML Swap = iota
	OuterHTML
	BeforeBegin
	AfterBegin
	BeforeEnd
	AfterEnd
	Delete
	None
)

var swapNames = [...]string{
	InnerHTML:   "innerHTML",
	OuterHTML:   "outerHTML",
	BeforeBegin: "beforebegin",
	AfterBegin:  "afterbegin",
	BeforeEnd:   "beforeend",
	AfterEnd:    "afterend",
	Delete:      "delete",
	None:        "none",
}

// Swaps lists every strategy in declaration order.
var Swaps = []Swap{InnerHTML, OuterHTML, BeforeBegin, AfterBegin, BeforeEnd, AfterEnd, Delete, None}

// Valid reports whether s is one of the known strategies.
func (s Swap) Valid() bool {
	return s >= InnerHTML && s <= None
}

func (s Swap) String() string {
	if !s.Valid() {
		return fmt.Sprintf("Swap(%d)", int(s))
	}
	return swapNames[s]
}

// ParseSwap parses an hx-swap value such as "outerHTML swap:1s". Modifiers
// after the strategy are ignored. An empty value is the default, innerHTML.
func ParseSwap(v string) (Swap, error) {
	fields := strings.Fields(v)
	if len(fields) == 0 {
		return InnerHTML, nil
	}
	for i, name := range swapNames {
		if fields[0] == name {
			return Swap(i), nil
		}
	}
	return InnerHTML, fmt.Errorf("unknown swap strategy %q", fields[0])
}
