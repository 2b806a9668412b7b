package tron

import "github.com/shopspring/decimal"

// SunPerTRX is the number of sun (the indivisible unit) in one TRX.
const SunPerTRX = 1_000_000

const sunExponent = 6

// SunToTRX converts a sun amount into whole-TRX decimal form.
func SunToTRX(sun int64) decimal.Decimal {
	return decimal.New(sun, -sunExponent)
}

// TRXToSun converts a TRX amount into sun, truncating toward zero any
// precision finer than one sun.
func TRXToSun(trx decimal.Decimal) int64 {
	return trx.Shift(sunExponent).IntPart()
}
