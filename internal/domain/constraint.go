package domain

import "datatoken/pkg/canonical"

// ParamsSatisfied reports whether constraint provides exactly the argument
// slots a template declares. Values are not inspected.
func ParamsSatisfied(templateParams map[string]any, constraint Constraint) bool {
	if constraint == nil {
		return false
	}
	if len(templateParams) != len(constraint) {
		return false
	}
	for key := range templateParams {
		if _, ok := constraint[key]; !ok {
			return false
		}
	}
	return true
}

// Fulfills reports whether a parent's constraint satisfies what a child
// requires. An empty required value acts as a wildcard. When terminal is set
// the parent may not leave any slot null.
func Fulfills(required, fulfilled Constraint, terminal bool) bool {
	if !sameKeySet(required, fulfilled) {
		return false
	}
	for key, value := range fulfilled {
		want := required[key]
		if nested, ok := value.(map[string]any); ok {
			wantNested, ok := want.(map[string]any)
			if !ok {
				return false
			}
			if len(wantNested) > 0 && !sameKeySet(wantNested, nested) {
				return false
			}
			for subKey, subValue := range nested {
				if terminal && subValue == nil {
					return false
				}
				subWant := wantNested[subKey]
				if !canonical.IsEmpty(subWant) && !canonical.Equal(subValue, subWant) {
					return false
				}
			}
			continue
		}
		if terminal && value == nil {
			return false
		}
		if !canonical.IsEmpty(want) && !canonical.Equal(value, want) {
			return false
		}
	}
	return true
}

func sameKeySet[V any, W any](a map[string]V, b map[string]W) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}
