// Package billing 学费计算：金额截断、按比例计费、缴费日推导等纯函数，不访问存储
package billing

import "github.com/shopspring/decimal"

// DefaultUnit 默认截断单位：1000 韩元
const DefaultUnit int64 = 1000

var hundred = decimal.NewFromInt(100)

// TruncateToUnit 向下截断到 unit 的整数倍：floor(amount/unit)*unit
func TruncateToUnit(amount decimal.Decimal, unit int64) int64 {
	if unit <= 0 {
		unit = DefaultUnit
	}
	u := decimal.NewFromInt(unit)
	return amount.Div(u).Floor().Mul(u).IntPart()
}

// ratio 计算 amount * part / whole，先乘后除保证精度
func ratio(amount int64, part, whole int) decimal.Decimal {
	return decimal.NewFromInt(amount).
		Mul(decimal.NewFromInt(int64(part))).
		Div(decimal.NewFromInt(int64(whole)))
}
