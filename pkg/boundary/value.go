package boundary

import (
	"github.com/shopspring/decimal"

	"github.com/ledgerflow/workflowengine/pkg/types"
)

// valueFromJSON converts a decoded JSON value (the dynamic types
// encoding/json produces: nil, bool, float64, string, []interface{},
// map[string]interface{}) into a typed types.Value. Numbers become
// ValueDecimal via decimal.NewFromFloat, so they keep the precision of the
// float64 that encoding/json already decoded them into, and no more.
func valueFromJSON(v interface{}) types.Value {
	switch val := v.(type) {
	case nil:
		return types.Null()
	case bool:
		return types.Bool(val)
	case float64:
		return types.Decimal(decimal.NewFromFloat(val))
	case string:
		return types.String(val)
	case []interface{}:
		out := make([]types.Value, 0, len(val))
		for _, item := range val {
			out = append(out, valueFromJSON(item))
		}
		return types.List(out)
	case map[string]interface{}:
		out := make(map[string]types.Value, len(val))
		for k, item := range val {
			out[k] = valueFromJSON(item)
		}
		return types.Map(out)
	default:
		return types.Null()
	}
}

func deltaFromJSON(data map[string]interface{}) types.Delta {
	out := make(types.Delta, len(data))
	for k, v := range data {
		out[k] = valueFromJSON(v)
	}
	return out
}

// valueToJSON converts a types.Value back into a plain JSON-encodable Go
// value for wire responses.
func valueToJSON(v types.Value) interface{} {
	switch v.Kind {
	case types.ValueNull, "":
		return nil
	case types.ValueBool:
		return v.BoolVal
	case types.ValueInteger:
		return v.IntVal
	case types.ValueDecimal:
		f, _ := v.DecVal.Float64()
		return f
	case types.ValueString:
		return v.StrVal
	case types.ValueTimestamp:
		return v.TimeVal
	case types.ValueList:
		out := make([]interface{}, 0, len(v.ListVal))
		for _, item := range v.ListVal {
			out = append(out, valueToJSON(item))
		}
		return out
	case types.ValueMap:
		out := make(map[string]interface{}, len(v.MapVal))
		for k, item := range v.MapVal {
			out[k] = valueToJSON(item)
		}
		return out
	default:
		return nil
	}
}

func dataToJSON(data map[string]types.Value) map[string]interface{} {
	out := make(map[string]interface{}, len(data))
	for k, v := range data {
		out[k] = valueToJSON(v)
	}
	return out
}
