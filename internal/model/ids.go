package model

import "slices"

func IndexOf(ids []string, id string) int {
	return slices.Index(ids, id)
}

func Contains(ids []string, id string) bool {
	return slices.Contains(ids, id)
}

// Remove 删除 id 的所有出现，返回新切片
func Remove(ids []string, id string) []string {
	out := make([]string, 0, len(ids))
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

// AddToSet 仅在 id 不存在时追加
func AddToSet(ids []string, id string) []string {
	if Contains(ids, id) {
		return ids
	}
	return append(ids, id)
}

// Dedup 保序去重
func Dedup(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, v := range ids {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
