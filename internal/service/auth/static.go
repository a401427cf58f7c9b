package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// StaticAuthenticator сопоставляет bearer-токены пользователям по таблице,
// заданной при старте. Заменяет внешний сервис идентификации в разработке
// и тестах; продакшен-реализация подключается через тот же порт.
type StaticAuthenticator struct {
	users map[string]domain.User
}

// NewStaticAuthenticator создаёт аутентификатор с готовой таблицей токенов.
func NewStaticAuthenticator(users map[string]domain.User) *StaticAuthenticator {
	if users == nil {
		users = make(map[string]domain.User)
	}
	return &StaticAuthenticator{users: users}
}

// ParseTokenTable разбирает CSV вида "token:userID:role,token2:userID2:role2".
func ParseTokenTable(raw string) (map[string]domain.User, error) {
	users := make(map[string]domain.User)
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return users, nil
	}

	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("malformed auth token entry %q", entry)
		}

		token, userID := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
		role := domain.Role(strings.TrimSpace(parts[2]))
		if token == "" || userID == "" {
			return nil, fmt.Errorf("malformed auth token entry %q", entry)
		}
		if !role.Valid() {
			return nil, fmt.Errorf("unknown role %q in auth token entry", role)
		}

		users[token] = domain.User{ID: userID, Role: role}
	}

	return users, nil
}

// Authenticate возвращает пользователя по токену или ErrUnauthenticated.
func (a *StaticAuthenticator) Authenticate(_ context.Context, token string) (domain.User, error) {
	user, ok := a.users[token]
	if !ok {
		return domain.User{}, domain.ErrUnauthenticated
	}
	return user, nil
}

var _ domain.Authenticator = (*StaticAuthenticator)(nil)
