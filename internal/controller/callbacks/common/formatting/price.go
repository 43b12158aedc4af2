package formatting

import "fmt"

// FormatPrice форматирует сумму из минимальных единиц (копеек)
func FormatPrice(amount int64) string {
	return fmt.Sprintf("%d.%02d ₽", amount/100, amount%100)
}

// FormatPriceShort форматирует сумму без копеек, если они равны 0
func FormatPriceShort(amount int64) string {
	if amount%100 == 0 {
		return fmt.Sprintf("%d ₽", amount/100)
	}
	return FormatPrice(amount)
}
