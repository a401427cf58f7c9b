package domain

import "strings"

// DefaultSize — sentinel-значение для товаров без размерной сетки.
const DefaultSize = "Unique"

// maxProductRefLen ограничивает длину идентификатора товара в корзине.
const maxProductRefLen = 64

// CartLine — одна позиция сырой корзины, присланной клиентом.
type CartLine struct {
	ProductID string
	Quantity  int32
	// Size — опциональный вариант товара; пустое значение заменяется на DefaultSize.
	Size string
}

// NormalizeCart валидирует и канонизирует корзину.
// Порядок позиций сохраняется, чтобы сообщения об ошибках были детерминированы.
func NormalizeCart(lines []CartLine) ([]CartLine, error) {
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}

	normalized := make([]CartLine, 0, len(lines))
	for _, line := range lines {
		ref := strings.TrimSpace(line.ProductID)
		if !validProductRef(ref) {
			return nil, ErrInvalidProductRef
		}
		if line.Quantity <= 0 {
			return nil, ErrInvalidQuantity
		}

		size := strings.TrimSpace(line.Size)
		if size == "" {
			size = DefaultSize
		}

		normalized = append(normalized, CartLine{
			ProductID: ref,
			Quantity:  line.Quantity,
			Size:      size,
		})
	}

	return normalized, nil
}

// validProductRef проверяет, что ссылка на товар well-formed:
// непустая, ограниченной длины и без пробельных символов внутри.
func validProductRef(ref string) bool {
	if ref == "" || len(ref) > maxProductRefLen {
		return false
	}
	return !strings.ContainsAny(ref, " \t\n\r")
}
