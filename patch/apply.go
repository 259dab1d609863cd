package patch

import (
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
	jsonpatch "github.com/evanphx/json-patch/v5"
)

// Apply patches a facts document. Every pointer must be in allowed (an empty
// allowed set accepts any pointer), and the patched document must still decode
// into T, so a word written to a numeric slot fails. On error facts is
// returned unchanged.
func Apply[T any](facts T, ops []Operation, allowed []string) (T, error) {
	if len(ops) == 0 {
		return facts, nil
	}
	if err := ValidateOperations(ops, allowed); err != nil {
		return facts, err
	}
	doc, err := sonic.Marshal(facts)
	if err != nil {
		return facts, fmt.Errorf("encode facts: %w", err)
	}
	if ops = settle(doc, ops); len(ops) == 0 {
		return facts, nil
	}
	raw, err := sonic.Marshal(ops)
	if err != nil {
		return facts, fmt.Errorf("encode ops: %w", err)
	}
	p, err := jsonpatch.DecodePatch(raw)
	if err != nil {
		return facts, fmt.Errorf("decode ops: %w", err)
	}
	patched, err := p.Apply(doc)
	if err != nil {
		return facts, fmt.Errorf("patch facts: %w", err)
	}
	var out T
	if err := sonic.Unmarshal(patched, &out); err != nil {
		return facts, fmt.Errorf("patched facts do not fit: %w", err)
	}
	return out, nil
}

// settle fits ops to a sparse facts document where an unset slot is simply
// absent: replacing it becomes an add and removing it is dropped. Pointers
// below the top level pass through as given.
func settle(doc []byte, ops []Operation) []Operation {
	var slots map[string]any
	if err := sonic.Unmarshal(doc, &slots); err != nil {
		return ops
	}
	out := make([]Operation, 0, len(ops))
	for _, op := range ops {
		name, nested := slotName(op.Path)
		_, set := slots[name]
		switch {
		case nested:
		case op.Op == OperationReplace && !set:
			op.Op = OperationAdd
		case op.Op == OperationRemove && !set:
			continue
		}
		out = append(out, op)
	}
	return out
}

var pointerUnescaper = strings.NewReplacer("~1", "/", "~0", "~")

// slotName returns the member a top-level pointer such as /radius_miles names.
func slotName(pointer string) (name string, nested bool) {
	name, _, nested = strings.Cut(strings.TrimPrefix(pointer, "/"), "/")
	return pointerUnescaper.Replace(name), nested
}
