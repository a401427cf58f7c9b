package domain

import "time"

// Product — запись каталога. Цена и остаток здесь авторитетны:
// значения, присланные клиентом, никогда не участвуют в расчётах.
type Product struct {
	ID string
	// Name — отображаемое название товара.
	Name string
	// PriceMinor — цена за единицу в минимальных денежных единицах.
	PriceMinor int64
	// Stock — доступный остаток; меняется только условным декрементом.
	Stock int32
	// Image — ссылка на основное изображение.
	Image     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate проверяет базовые инварианты записи каталога.
func (p *Product) Validate() []error {
	var errs []error

	if p.ID == "" {
		errs = append(errs, ErrInvalidProductRef)
	}
	if p.PriceMinor <= 0 {
		errs = append(errs, ErrInvalidPrice)
	}
	if p.Stock < 0 {
		errs = append(errs, ErrInsufficientStock)
	}

	return errs
}
