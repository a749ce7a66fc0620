package infra

import "fmt"

const (
	// RedisNamespace Базовый префикс для изоляции данных проекта в Redis
	RedisNamespace = "integrity"
)

// Каналы Pub/Sub (события)
const (
	// RedisChanRunCompleted — итог каждого прогона (успех и отказ), dry-run не публикуется
	RedisChanRunCompleted = RedisNamespace + ":runs:completed"

	// RedisChanScanTrigger — плановый запуск от внешнего планировщика
	RedisChanScanTrigger = RedisNamespace + ":runs:trigger"
)

// GetRunLockKey — лок прогона по скоупу: id хозяйства или "all"
func GetRunLockKey(scope string) string {
	return fmt.Sprintf("%s:lock:run:%s", RedisNamespace, scope)
}

// GetTenantLockKey — лок хозяйства на время collect -> journal -> reconcile.
// Его берет любой прогон (и "all", и по одному хозяйству).
func GetTenantLockKey(tenantID string) string {
	return fmt.Sprintf("%s:lock:tenant:%s", RedisNamespace, tenantID)
}
