package patch

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/bytedance/sonic"
)

// Diff returns the ops that carry every non-zero value of next that differs
// from current. Zero values in next never produce a remove.
func Diff[T any](current, next T) ([]Operation, error) {
	currentJSON, err := sonic.Marshal(current)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal current state: %w", err)
	}
	nextJSON, err := sonic.Marshal(next)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal next state: %w", err)
	}

	var currentMap map[string]any
	if err := sonic.Unmarshal(currentJSON, &currentMap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal current state: %w", err)
	}
	var nextMap map[string]any
	if err := sonic.Unmarshal(nextJSON, &nextMap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal next state: %w", err)
	}

	ops := make([]Operation, 0)
	diffMaps("", currentMap, nextMap, &ops)
	sort.Slice(ops, func(i, j int) bool { return ops[i].Path < ops[j].Path })
	return ops, nil
}

func diffMaps(prefix string, current, next map[string]any, ops *[]Operation) {
	for key, nextValue := range next {
		if isZeroValue(nextValue) {
			continue
		}
		path := prefix + "/" + escapeJSONPointer(key)
		currentValue, exists := current[key]

		if nextMap, ok := nextValue.(map[string]any); ok {
			if currentMap, ok := currentValue.(map[string]any); ok {
				diffMaps(path, currentMap, nextMap, ops)
			} else {
				*ops = append(*ops, Operation{Op: OperationAdd, Path: path, Value: nextValue})
			}
			continue
		}

		if !exists {
			*ops = append(*ops, Operation{Op: OperationAdd, Path: path, Value: nextValue})
		} else if !reflect.DeepEqual(currentValue, nextValue) {
			*ops = append(*ops, Operation{Op: OperationReplace, Path: path, Value: nextValue})
		}
	}
}

func escapeJSONPointer(token string) string {
	token = strings.ReplaceAll(token, "~", "~0")
	return strings.ReplaceAll(token, "/", "~1")
}

func isZeroValue(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return val == ""
	case float64:
		return val == 0
	case bool:
		return !val
	case []any:
		return len(val) == 0
	case map[string]any:
		return len(val) == 0
	default:
		return false
	}
}
