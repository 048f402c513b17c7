package models

// ListFilter параметры выборки подписчиков. nil означает "без фильтра".
type ListFilter struct {
	Active  *bool // только активные / только неактивные
	Expired *bool // только истёкшие / только неистёкшие относительно текущего времени
}

// Stats сводка по подписчикам
type Stats struct {
	Total    int `json:"total" db:"total"`
	Active   int `json:"active" db:"active"`     // активны и не истекли
	Inactive int `json:"inactive" db:"inactive"` // помечены неактивными
	Expired  int `json:"expired" db:"expired"`   // дата окончания прошла, независимо от флага
}
