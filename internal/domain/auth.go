package domain

import "github.com/golang-jwt/jwt/v5"

// ScopeRunScan разрешает запуск прогона через админ-API
const ScopeRunScan = "integrity.run"

// CustomClaims выпускает внешний сервис авторизации, движок только проверяет подпись.
type CustomClaims struct {
	UserID string          `json:"user_id"`
	Scopes map[string]bool `json:"scopes"` // "integrity.run": true
	jwt.RegisteredClaims
}
