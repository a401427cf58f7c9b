package domain

import "context"

// Role — перечислимая роль пользователя. Проверяется единой authorization-прослойкой,
// а не разбросанными сравнениями строк.
type Role string

const (
	// RoleClient — обычный покупатель.
	RoleClient Role = "client"
	// RoleAdmin — административный доступ (статусы заказов, листинги).
	RoleAdmin Role = "admin"
)

// Valid проверяет, что роль входит в перечисление.
func (r Role) Valid() bool {
	switch r {
	case RoleClient, RoleAdmin:
		return true
	default:
		return false
	}
}

// User — аутентифицированный субъект запроса.
type User struct {
	ID    string
	Name  string
	Email string
	Role  Role
}

// Authenticator — порт внешнего сервиса идентификации.
// Выдача и проверка токенов — внешняя забота; ядру нужен только субъект запроса.
type Authenticator interface {
	// Authenticate разрешает bearer-токен в пользователя или возвращает ErrUnauthenticated.
	Authenticate(ctx context.Context, token string) (User, error)
}
