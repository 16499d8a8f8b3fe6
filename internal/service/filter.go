package service

import (
	"strings"

	"golang.org/x/text/cases"

	"github.com/DukeRupert/mapaclientes/internal/domain"
)

// Estado filter values for records that can be switched on and off.
const (
	EstadoTodos     = ""
	EstadoActivo    = "activo"
	EstadoInactivo  = "inactivo"
	DefaultPageSize = 20
)

// Query is a client-side filter over a panel's cached records.
type Query struct {
	Text   string // case-insensitive substring of the display name
	Estado string // "", "activo" or "inactivo"; ignored for records without state
}

// Activatable is implemented by records with an active flag.
type Activatable interface {
	IsActive() bool
}

// Filter returns the records matching q, preserving order. It never touches
// the network.
func Filter[T domain.Record](items []T, q Query) []T {
	text := strings.TrimSpace(q.Text)
	// A Caser holds state and must not be shared between goroutines.
	fold := cases.Fold()
	needle := fold.String(text)

	out := make([]T, 0, len(items))
	for _, item := range items {
		if needle != "" && !strings.Contains(fold.String(item.DisplayName()), needle) {
			continue
		}
		if !matchEstado(item, q.Estado) {
			continue
		}
		out = append(out, item)
	}
	return out
}

func matchEstado(item any, estado string) bool {
	a, ok := item.(Activatable)
	if !ok {
		return true
	}
	switch estado {
	case EstadoActivo:
		return a.IsActive()
	case EstadoInactivo:
		return !a.IsActive()
	default:
		return true
	}
}

// Page is one page of a filtered list.
type Page[T any] struct {
	Items      []T
	Number     int // 1-based
	Size       int
	TotalItems int
	TotalPages int
}

// HasPrev reports whether a previous page exists.
func (p Page[T]) HasPrev() bool { return p.Number > 1 }

// HasNext reports whether a next page exists.
func (p Page[T]) HasNext() bool { return p.Number < p.TotalPages }

// Paginate slices items into the requested page, clamping out-of-range numbers.
func Paginate[T any](items []T, number, size int) Page[T] {
	if size < 1 {
		size = DefaultPageSize
	}
	total := len(items)
	pages := (total + size - 1) / size
	if pages == 0 {
		pages = 1
	}
	if number < 1 {
		number = 1
	}
	if number > pages {
		number = pages
	}

	start := (number - 1) * size
	end := start + size
	if end > total {
		end = total
	}

	return Page[T]{
		Items:      items[start:end],
		Number:     number,
		Size:       size,
		TotalItems: total,
		TotalPages: pages,
	}
}
