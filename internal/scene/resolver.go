package scene

import "strings"

// Target selects which elements an action operates on.
type Target string

const (
	TargetAll      Target = "all"
	TargetLast     Target = "last"
	TargetMatching Target = "matching"
)

// ResolveSet resolves a target selector against an element list for
// set-oriented actions (remove, modify, startGenerating).
//
//	all      -> every element
//	last     -> the highest-index element, or none if the list is empty
//	matching -> every element whose content contains match as a substring
//
// Matching is case-sensitive and exact. The model compensates for the
// strictness by supplying distinctive content strings.
func ResolveSet(elements []Element, target Target, match string) []string {
	switch target {
	case TargetAll:
		ids := make([]string, len(elements))
		for i, el := range elements {
			ids[i] = el.ID
		}
		return ids
	case TargetLast:
		if len(elements) == 0 {
			return nil
		}
		return []string{elements[len(elements)-1].ID}
	case TargetMatching:
		var ids []string
		for _, el := range elements {
			if strings.Contains(el.Content, match) {
				ids = append(ids, el.ID)
			}
		}
		return ids
	}
	return nil
}

// ResolveOne resolves a target selector to a single element for actions that
// operate on exactly one element (duplicate, attachCapability). For matching
// it returns the first element in list order containing the match substring.
func ResolveOne(elements []Element, target Target, match string) (string, bool) {
	switch target {
	case TargetLast, TargetAll:
		// Single-target actions treat "all" as "last"; there is no sensible
		// single element for "all" and the last one is what the model means.
		if len(elements) == 0 {
			return "", false
		}
		return elements[len(elements)-1].ID, true
	case TargetMatching:
		for _, el := range elements {
			if strings.Contains(el.Content, match) {
				return el.ID, true
			}
		}
		return "", false
	}
	return "", false
}
