// Package access реализует централизованную проверку доступа к коллекциям документов.
//
// Правила владения задаются единой статической таблицей (коллекция → поле владельца),
// а не разбросанными условиями по обработчикам.
package access

import (
	"errors"

	"github.com/vndr/vndr-music/internal/model"
)

// ErrUnauthenticated возвращается при попытке доступа к защищённой коллекции без учётных данных.
var (
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrPermissionDenied возвращается, если вызывающий запрашивает чужую область владения.
	ErrPermissionDenied = errors.New("permission denied")
)

// FilterSet описывает итоговый набор фильтров одного подзапроса (поле → значение).
type FilterSet map[string]string

// Rule описывает правило владения для одной коллекции.
// Непустое DualOwnerField означает двойное владение: документ виден
// и по OwnerField, и по DualOwnerField.
// DenyForeignOwnerFilter меняет реакцию на чужое значение поля владельца:
// вместо молчаливой перезаписи запрос отклоняется.
type Rule struct {
	OwnerField             string
	DualOwnerField         string
	DenyForeignOwnerFilter bool
}

// defaultRules — таблица защищённых коллекций. Коллекции вне таблицы публичны на чтение.
var defaultRules = map[string]Rule{
	"works":            {OwnerField: "artist_id", DenyForeignOwnerFilter: true},
	"vsd_transactions": {OwnerField: "user_id"},
	"license_requests": {OwnerField: "artist_id", DualOwnerField: "requestor_id"},
}

// Guard принимает решение о фильтрации коллекции по владельцу.
type Guard struct {
	rules map[string]Rule
}

// NewGuard создаёт Guard со стандартной таблицей правил.
func NewGuard() *Guard {
	return &Guard{rules: defaultRules}
}

// Resolve возвращает финальные наборы фильтров для запроса коллекции.
// Несколько наборов означают объединение результатов подзапросов
// с дедупликацией по идентификатору документа.
//
// Админ получает запрошенные фильтры без изменений. Не-админ для защищённой
// коллекции получает принудительный фильтр по полю владельца; подменённое
// вызывающим значение этого поля молча перезаписывается. Для правил с
// DenyForeignOwnerFilter чужое значение вместо этого отклоняется с ErrPermissionDenied.
func (g *Guard) Resolve(collection string, identity model.Identity, requested map[string]string) ([]FilterSet, error) {
	rule, sensitive := g.rules[collection]
	if !sensitive || identity.IsAdmin {
		return []FilterSet{copyFilters(requested)}, nil
	}

	if identity.IsAnonymous() {
		return nil, ErrUnauthenticated
	}

	if rule.DenyForeignOwnerFilter {
		if v, ok := requested[rule.OwnerField]; ok && v != identity.UID {
			return nil, ErrPermissionDenied
		}
	}

	if rule.DualOwnerField == "" {
		fs := copyFilters(requested)
		fs[rule.OwnerField] = identity.UID
		return []FilterSet{fs}, nil
	}

	// Двойное владение: объединение "я — артист" и "я — запросивший".
	asOwner := copyFilters(requested)
	delete(asOwner, rule.DualOwnerField)
	asOwner[rule.OwnerField] = identity.UID

	asDual := copyFilters(requested)
	delete(asDual, rule.OwnerField)
	asDual[rule.DualOwnerField] = identity.UID

	return []FilterSet{asOwner, asDual}, nil
}

func copyFilters(src map[string]string) FilterSet {
	fs := make(FilterSet, len(src))
	for k, v := range src {
		fs[k] = v
	}
	return fs
}
