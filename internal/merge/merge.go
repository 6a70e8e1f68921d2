// Package merge はJSONデコード済みの値（map[string]any, []any, スカラー）に対する
// 純粋関数の深いマージと比較を提供する。
package merge

import "reflect"

// Merge はdstにsrcを再帰的にマージした新しい値を返す。
// 両方がオブジェクトの場合はキー単位でマージし、それ以外（配列・スカラー・null）はsrcで置き換える。
// dst/srcは変更しない。
func Merge(dst, src any) any {
	dstObj, dstIsObj := dst.(map[string]any)
	srcObj, srcIsObj := src.(map[string]any)
	if !dstIsObj || !srcIsObj {
		return Clone(src)
	}

	out := make(map[string]any, len(dstObj)+len(srcObj))
	for k, v := range dstObj {
		out[k] = Clone(v)
	}
	for k, v := range srcObj {
		if cur, ok := out[k]; ok {
			out[k] = Merge(cur, v)
			continue
		}
		out[k] = Clone(v)
	}
	return out
}

// Clone は値を深くコピーする。
func Clone(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = Clone(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = Clone(e)
		}
		return out
	default:
		return v
	}
}

// Equal は2つの値が構造的に等しいかを判定する。
// 数値は型に関わらずfloat64として比較する。
func Equal(a, b any) bool {
	switch at := a.(type) {
	case map[string]any:
		bt, ok := b.(map[string]any)
		if !ok || len(at) != len(bt) {
			return false
		}
		for k, av := range at {
			bv, ok := bt[k]
			if !ok || !Equal(av, bv) {
				return false
			}
		}
		return true
	case []any:
		bt, ok := b.([]any)
		if !ok || len(at) != len(bt) {
			return false
		}
		for i := range at {
			if !Equal(at[i], bt[i]) {
				return false
			}
		}
		return true
	}

	if af, ok := toFloat(a); ok {
		bf, ok := toFloat(b)
		return ok && af == bf
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	default:
		return 0, false
	}
}

// Truthy はJSON値が「値あり」とみなせるかを判定する。
// nil、false、0、空文字列は偽、空オブジェクトや空配列は真とする。
func Truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0
	default:
		return true
	}
}
