package util

// ClampIndex ограничивает индекс диапазоном [0, n-1]. Для пустого среза возвращает -1.
func ClampIndex(n, index int) int {
	if n <= 0 {
		return -1
	}
	if index < 0 {
		return 0
	}
	if index > n-1 {
		return n - 1
	}
	return index
}
