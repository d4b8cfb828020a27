package checkpoint

import (
	"context"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"go.uber.org/zap"
	"pgregory.net/rapid"

	"github.com/BaSui01/queryflow/types"
)

func drawJSONValue(rt *rapid.T, depth int) types.Value {
	maxKind := int(types.KindObject)
	if depth <= 0 {
		maxKind = int(types.KindString)
	}
	switch types.Kind(rapid.IntRange(0, maxKind).Draw(rt, "kind")) {
	case types.KindNull:
		return types.Null()
	case types.KindBool:
		return types.Bool(rapid.Bool().Draw(rt, "bool"))
	case types.KindNumber:
		if rapid.Bool().Draw(rt, "integral") {
			return types.Int(rapid.Int64().Draw(rt, "int"))
		}
		return types.Number(rapid.Float64Range(-1e9, 1e9).Draw(rt, "float"))
	case types.KindString:
		return types.String(rapid.StringMatching(`[a-zA-Z0-9 "\\/\t\n]{0,10}`).Draw(rt, "string"))
	case types.KindArray:
		items := make([]types.Value, rapid.IntRange(0, 3).Draw(rt, "len"))
		for i := range items {
			items[i] = drawJSONValue(rt, depth-1)
		}
		return types.Array(items...)
	default:
		obj := types.Map{}
		for i, n := 0, rapid.IntRange(0, 3).Draw(rt, "fields"); i < n; i++ {
			obj[rapid.StringMatching(`[a-z]{1,4}`).Draw(rt, "key")] = drawJSONValue(rt, depth-1)
		}
		return types.Object(obj)
	}
}

// Property: 经由持久层编码再解码后，执行现场与输入深度相等
func TestProperty_RoundTripThroughDurableTier(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		ctx := context.Background()
		durable := NewMemoryDurable()

		exec := drawExecution(rt)
		for i, n := 0, rapid.IntRange(0, 4).Draw(rt, "nested"); i < n; i++ {
			exec.Variables[rapid.StringMatching(`n[a-z]{1,4}`).Draw(rt, "nested_key")] = drawJSONValue(rt, 3)
		}

		writer := NewStore(WithDurable(durable), WithLogger(zap.NewNop()))
		cp, err := writer.Create(ctx, CreateRequest{QueryID: "q-prop", Execution: exec})
		if err != nil {
			rt.Fatalf("create: %v", err)
		}
		if err := writer.Close(ctx); err != nil {
			rt.Fatalf("close: %v", err)
		}

		reader := NewStore(WithDurable(durable), WithLogger(zap.NewNop()))
		defer reader.Close(ctx)

		got, err := reader.Retrieve(ctx, "q-prop", cp.Timestamp)
		if err != nil || got == nil {
			rt.Fatalf("retrieve: %v %v", got, err)
		}
		if !exec.Equal(got.Execution) {
			rt.Fatalf("execution snapshot changed through durable tier")
		}
	})
}

// Property: 任意次数的创建后，每个查询保留的数量不超过上限，且最新的一条总被保留
func TestProperty_PruningBound(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50

	properties := gopter.NewProperties(parameters)

	properties.Property("retention bound holds", prop.ForAll(
		func(creates int, limit int) bool {
			s := NewStore(WithMaxPerQuery(limit), WithLogger(zap.NewNop()))
			ctx := context.Background()

			var newest int64
			for i := 0; i < creates; i++ {
				cp, err := s.Create(ctx, CreateRequest{QueryID: "q"})
				if err != nil {
					return false
				}
				newest = cp.Timestamp
			}

			res := s.List(ctx, ListFilter{QueryID: "q"})
			want := creates
			if want > limit {
				want = limit
			}
			if res.Total != want || len(res.Items) != want {
				return false
			}
			return want == 0 || res.Items[0].Timestamp == newest
		},
		gen.IntRange(0, 40),
		gen.IntRange(1, 12),
	))

	properties.TestingRun(t)
}
