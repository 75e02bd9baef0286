package billing

import "github.com/seanyjeong/pacapro-sub001/internal/model"

// DiffPatterns 按（星期, 时段）求对称差
// 同一星期从下午改到晚上同时出现在 removed 与 added 中
func DiffPatterns(oldPattern, newPattern model.ClassDays) (added, removed model.ClassDays) {
	oldSet := make(map[model.ClassDay]bool, len(oldPattern))
	for _, cd := range oldPattern {
		oldSet[cd] = true
	}
	newSet := make(map[model.ClassDay]bool, len(newPattern))
	for _, cd := range newPattern {
		newSet[cd] = true
		if !oldSet[cd] {
			added = append(added, cd)
		}
	}
	for _, cd := range oldPattern {
		if !newSet[cd] {
			removed = append(removed, cd)
		}
	}
	return added.Normalize(""), removed.Normalize("")
}
