package billing

import (
	"fmt"
	"strconv"
	"strings"
)

// NextStudentNumber 学号 = 入学年份 + 3 位序号（2026001）
// last 为同一学院当年最大的学号，不属于当年或格式不符时从 001 开始
func NextStudentNumber(year int, last string) string {
	prefix := strconv.Itoa(year)
	if strings.HasPrefix(last, prefix) && len(last) > len(prefix) {
		if seq, err := strconv.Atoi(last[len(prefix):]); err == nil && seq >= 0 {
			return fmt.Sprintf("%s%03d", prefix, seq+1)
		}
	}
	return prefix + "001"
}
