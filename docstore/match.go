package docstore

import (
	"cmp"
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/rushteam/recserve/core"
	"github.com/rushteam/recserve/pkg/conv"
)

// Match 判断文档是否满足过滤条件。支持等值、$ne、$in，与 MongoDB 语义一致：
// 字段缺失时等值不匹配、$ne 匹配。
func Match(doc core.Document, filter core.Filter) (bool, error) {
	for field, cond := range filter {
		val, present := doc[field]
		op, isOp := operators(cond)
		if !isOp {
			if !present || !equal(val, cond) {
				return false, nil
			}
			continue
		}
		for name, arg := range op {
			switch name {
			case "$eq":
				if !present || !equal(val, arg) {
					return false, nil
				}
			case "$ne":
				if present && equal(val, arg) {
					return false, nil
				}
			case "$in":
				list := reflect.ValueOf(arg)
				if list.Kind() != reflect.Slice {
					return false, fmt.Errorf("docstore: $in on %q needs a list, got %T", field, arg)
				}
				found := false
				for i := 0; present && i < list.Len(); i++ {
					if equal(val, list.Index(i).Interface()) {
						found = true
						break
					}
				}
				if !found {
					return false, nil
				}
			default:
				return false, fmt.Errorf("docstore: unsupported operator %q", name)
			}
		}
	}
	return true, nil
}

// operators 识别 {"$op": arg} 形式的条件。
func operators(cond any) (map[string]any, bool) {
	var m map[string]any
	switch v := cond.(type) {
	case map[string]any:
		m = v
	case core.Filter:
		m = v
	default:
		return nil, false
	}
	if len(m) == 0 {
		return nil, false
	}
	for k := range m {
		if !strings.HasPrefix(k, "$") {
			return nil, false
		}
	}
	return m, true
}

func equal(a, b any) bool {
	if fa, ok := number(a); ok {
		fb, ok := number(b)
		return ok && fa == fb
	}
	if sa, ok := a.(string); ok {
		if sb, ok := b.(string); ok {
			return sa == sb
		}
	}
	if ta, ok := conv.ToTime(a); ok {
		tb, ok := conv.ToTime(b)
		return ok && ta.Equal(tb)
	}
	return reflect.DeepEqual(a, b)
}

// number 与 conv.ToFloat64 相同，但不把 bool 当作数字。
func number(v any) (float64, bool) {
	if _, ok := v.(bool); ok {
		return 0, false
	}
	return conv.ToFloat64(v)
}

// compare 比较两个字段值：数字按数值，时间（含 RFC3339 字符串）按时间，其余按字符串。
// nil 小于任何值。
func compare(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	if fa, ok := number(a); ok {
		if fb, ok := number(b); ok {
			return cmp.Compare(fa, fb)
		}
	}
	if ta, ok := conv.ToTime(a); ok {
		if tb, ok := conv.ToTime(b); ok {
			return ta.Compare(tb)
		}
	}
	return cmp.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

// sortDocs 按 FindOptions.Sort 稳定排序。
func sortDocs(docs []core.Document, fields []core.SortField) {
	if len(fields) == 0 {
		return
	}
	slices.SortStableFunc(docs, func(x, y core.Document) int {
		for _, f := range fields {
			c := compare(x[f.Field], y[f.Field])
			if f.Desc {
				c = -c
			}
			if c != 0 {
				return c
			}
		}
		return 0
	})
}

// page 应用 skip/limit。
func page(docs []core.Document, skip, limit int64) []core.Document {
	if skip > 0 {
		if skip >= int64(len(docs)) {
			return nil
		}
		docs = docs[skip:]
	}
	if limit > 0 && limit < int64(len(docs)) {
		docs = docs[:limit]
	}
	return docs
}
