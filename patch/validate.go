package patch

import (
	"fmt"
)

func ValidateOperations(ops []Operation, allowed []string) error {
	if len(ops) == 0 || len(allowed) == 0 {
		return nil
	}
	allowedSet := make(map[string]bool, len(allowed))
	for _, path := range allowed {
		allowedSet[path] = true
	}
	for i, op := range ops {
		switch op.Op {
		case OperationAdd, OperationReplace, OperationRemove:
		default:
			return fmt.Errorf("operation %d: unsupported op %q", i, op.Op)
		}
		if !allowedSet[op.Path] {
			return fmt.Errorf("operation %d: path %q is not in the allowed paths set", i, op.Path)
		}
	}
	return nil
}

// FilterOperations keeps the ops that would pass ValidateOperations and returns
// the rejected ones separately.
func FilterOperations(ops []Operation, allowed []string) (kept, rejected []Operation) {
	for _, op := range ops {
		if err := ValidateOperations([]Operation{op}, allowed); err != nil {
			rejected = append(rejected, op)
			continue
		}
		kept = append(kept, op)
	}
	return kept, rejected
}
