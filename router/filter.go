package router

import "fmt"

// allowedFilterOperators is the whitelist of Mongo-style operators the
// vector_store_search platform tool accepts in its `filter` argument (spec
// §4.4). Anything else — especially $where or other operators that could
// execute arbitrary code against a backing store — is rejected outright.
var allowedFilterOperators = map[string]bool{
	"$eq": true, "$ne": true, "$gt": true, "$gte": true, "$lt": true, "$lte": true,
	"$in": true, "$nin": true, "$and": true, "$or": true, "$not": true, "$exists": true,
}

// ValidateFilter recursively walks a parsed JSON filter tree and returns an
// error the first time it encounters a $-prefixed key outside
// allowedFilterOperators, grounded on the teacher's small recursive
// validators over interface{} trees (common/command_permission.go).
func ValidateFilter(filter interface{}) error {
	return validateFilterValue(filter, 0)
}

const maxFilterDepth = 16

func validateFilterValue(v interface{}, depth int) error {
	if depth > maxFilterDepth {
		return fmt.Errorf("filter exceeds max nesting depth of %d", maxFilterDepth)
	}
	switch val := v.(type) {
	case map[string]interface{}:
		for key, child := range val {
			if len(key) > 0 && key[0] == '$' && !allowedFilterOperators[key] {
				return fmt.Errorf("disallowed filter operator: %s", key)
			}
			if err := validateFilterValue(child, depth+1); err != nil {
				return err
			}
		}
	case []interface{}:
		for _, child := range val {
			if err := validateFilterValue(child, depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}
