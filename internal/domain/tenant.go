package domain

// DefaultBagWeightKg используется, если у хозяйства не задан вес мешка.
const DefaultBagWeightKg = 50.0

// Tenant — граница изоляции. Создается вне движка, для нас только чтение.
type Tenant struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	BagWeightKg float64 `json:"bag_weight_kg"` // Перевод количества мешков в массу
}

// UnitWeightKg возвращает вес мешка с учетом дефолта
func (t Tenant) UnitWeightKg() float64 {
	if t.BagWeightKg <= 0 {
		return DefaultBagWeightKg
	}
	return t.BagWeightKg
}
