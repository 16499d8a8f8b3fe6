package handler

import (
	"encoding/json"
	"fmt"
	"html/template"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/DukeRupert/mapaclientes/internal/csrf"
	"github.com/DukeRupert/mapaclientes/internal/domain"
)

// TemplateFuncs returns a FuncMap with custom template functions
func TemplateFuncs() template.FuncMap {
	return template.FuncMap{
		// Math functions
		"add": func(a, b int) int {
			return a + b
		},
		"sub": func(a, b int) int {
			return a - b
		},
		"min": func(a, b int) int {
			if a < b {
				return a
			}
			return b
		},
		"percent": func(f float64) string {
			return fmt.Sprintf("%.1f%%", f)
		},
		"ms": func(d time.Duration) int64 {
			return d.Milliseconds()
		},

		// Date/Time functions
		"year": func() int {
			return time.Now().Year()
		},
		"formatDateTime": formatDateTime,
		"formatTime": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.Format("15:04:05")
		},
		"timeAgo": timeAgo,

		// String functions
		"lower": strings.ToLower,
		"upper": strings.ToUpper,
		"title": func(v any) string {
			return cases.Title(language.Spanish).String(fmt.Sprint(v))
		},
		"truncate": truncate,
		"json": func(v any) template.JS {
			b, err := json.Marshal(v)
			if err != nil {
				return template.JS(`""`)
			}
			return template.JS(b)
		},

		// Conditional/Logic functions
		"ternary": func(condition bool, trueVal, falseVal any) any {
			if condition {
				return trueVal
			}
			return falseVal
		},
		"siNo": func(b bool) string {
			if b {
				return "Sí"
			}
			return "No"
		},

		// Collection functions
		"dict": func(values ...any) map[string]any {
			if len(values)%2 != 0 {
				return nil
			}
			dict := make(map[string]any, len(values)/2)
			for i := 0; i < len(values); i += 2 {
				key, ok := values[i].(string)
				if !ok {
					return nil
				}
				dict[key] = values[i+1]
			}
			return dict
		},
		"pageRange": pageRange,

		// Form helpers
		"csrfField": func(token string) template.HTML {
			return template.HTML(fmt.Sprintf(`<input type="hidden" name="%s" value="%s">`,
				csrf.FormFieldName, template.HTMLEscapeString(token)))
		},
		"fieldError": func(errs map[string]string, field string) string {
			return errs[field]
		},

		// Status/badge helpers
		"statusClass": func(state domain.ConnectionState) string {
			switch state {
			case domain.StateConnected:
				return "badge-success"
			case domain.StateDisconnected:
				return "badge-danger"
			case domain.StateChecking:
				return "badge-warning"
			default:
				return "badge-muted"
			}
		},
		"latencyClass": func(d time.Duration) string {
			switch {
			case d < time.Second:
				return "badge-success"
			case d < 3*time.Second:
				return "badge-warning"
			default:
				return "badge-danger"
			}
		},
		"toastClass": func(kind any) string {
			return "toast-" + fmt.Sprint(kind)
		},
	}
}

// formatDateTime renders times the way the dashboard shows them in Chile.
func formatDateTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("02/01/2006 15:04:05")
}

func timeAgo(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	diff := time.Since(t)

	switch {
	case diff < time.Minute:
		return "hace un momento"
	case diff < time.Hour:
		mins := int(diff.Minutes())
		if mins == 1 {
			return "hace 1 minuto"
		}
		return fmt.Sprintf("hace %d minutos", mins)
	case diff < 24*time.Hour:
		hours := int(diff.Hours())
		if hours == 1 {
			return "hace 1 hora"
		}
		return fmt.Sprintf("hace %d horas", hours)
	default:
		return formatDateTime(t)
	}
}

// truncate shortens s to at most length runes, adding an ellipsis.
func truncate(s string, length int) string {
	if utf8.RuneCountInString(s) <= length {
		return s
	}
	runes := []rune(s)
	return string(runes[:length]) + "..."
}

// pageRange returns at most seven page numbers centred on currentPage.
func pageRange(currentPage, totalPages int) []int {
	const maxPages = 7
	start, end := 1, totalPages
	if totalPages > maxPages {
		start = currentPage - 3
		end = currentPage + 3
		if start < 1 {
			start, end = 1, maxPages
		}
		if end > totalPages {
			start, end = totalPages-maxPages+1, totalPages
		}
	}

	result := make([]int, 0, end-start+1)
	for i := start; i <= end; i++ {
		result = append(result, i)
	}
	return result
}
