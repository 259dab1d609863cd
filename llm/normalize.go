package llm

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/tbxark/remi/extract"
	"github.com/tbxark/remi/patch"
	"github.com/tbxark/remi/types"
)

// NormalizeOps coerces model-proposed values into the facts document's types
// and drops what cannot be coerced. Removals are dropped too: facts are only
// cleared by a restart.
func NormalizeOps(ops []patch.Operation, now time.Time) (kept, dropped []patch.Operation) {
	for _, op := range ops {
		if op.Op == patch.OperationRemove {
			dropped = append(dropped, op)
			continue
		}
		value, ok := normalizeValue(op.Path, op.Value, now)
		if !ok {
			dropped = append(dropped, op)
			continue
		}
		op.Value = value
		kept = append(kept, op)
	}
	return kept, dropped
}

func normalizeValue(path string, value any, now time.Time) (any, bool) {
	raw := strings.TrimSpace(stringify(value))
	if raw == "" {
		return nil, false
	}
	switch path {
	case "/budget":
		return extract.Budget(raw)
	case "/radius_miles":
		miles, ok := extract.Radius(raw)
		if !ok {
			return nil, false
		}
		return math.Min(miles, types.MaxRadiusMiles), true
	case "/reservation_date":
		d, err := extract.ParseDate(raw, now)
		return d, err == nil
	case "/reservation_time":
		c, err := extract.ParseClock(raw)
		return c, err == nil
	case "/friend_id":
		h := extract.Handle(raw)
		if h == "" {
			h = extract.Handle("@" + raw)
		}
		return h, h != ""
	case "/cuisine", "/location":
		return raw, true
	default:
		return value, true
	}
}

func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	default:
		return fmt.Sprint(x)
	}
}
