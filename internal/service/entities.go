package service

import (
	"log/slog"
	"strconv"
	"strings"

	"github.com/DukeRupert/mapaclientes/internal/apiclient"
	"github.com/DukeRupert/mapaclientes/internal/domain"
)

// Form field names shared by the schemas and the templates.
const (
	FieldNombre            = "nombre"
	FieldRazon             = "razon"
	FieldCodigoAlternativo = "codigo_alternativo"
	FieldDireccion         = "direccion"
	FieldTelefono          = "telefono"
	FieldRut               = "rut"
	FieldActivo            = "activo"
	FieldX                 = "x"
	FieldY                 = "y"
	FieldDescripcion       = "descripcion"
)

// =============================================================================
// Clientes
// =============================================================================

type clientePayload struct {
	Nombre            string   `json:"nombre"`
	Razon             string   `json:"razon"`
	CodigoAlternativo string   `json:"codigo_alternativo"`
	Direccion         string   `json:"direccion"`
	Telefono          string   `json:"telefono"`
	Rut               string   `json:"rut"`
	Activo            bool     `json:"activo"`
	X                 *float64 `json:"x"`
	Y                 *float64 `json:"y"`
}

// ClienteSchema describes the /clientes resource.
func ClienteSchema() Schema[domain.Cliente] {
	return Schema[domain.Cliente]{
		Resource: "clientes",
		Labels:   Labels{Title: "Cliente", Noun: "cliente", Plural: "clientes"},
		Validate: validateCliente,
		Payload: func(d domain.Draft) any {
			return clientePayload{
				Nombre:            d.Trimmed(FieldNombre),
				Razon:             d.Trimmed(FieldRazon),
				CodigoAlternativo: d.Trimmed(FieldCodigoAlternativo),
				Direccion:         d.Trimmed(FieldDireccion),
				Telefono:          d.Trimmed(FieldTelefono),
				Rut:               d.Trimmed(FieldRut),
				Activo:            d.Checked(FieldActivo),
				X:                 optionalFloat(d.Trimmed(FieldX)),
				Y:                 optionalFloat(d.Trimmed(FieldY)),
			}
		},
		ToDraft: func(c domain.Cliente) domain.Draft {
			d := domain.EditDraft(c.ID, map[string]string{
				FieldNombre:            c.Nombre,
				FieldRazon:             c.Razon,
				FieldCodigoAlternativo: c.CodigoAlternativo,
				FieldDireccion:         c.Direccion,
				FieldTelefono:          c.Telefono,
				FieldRut:               c.Rut,
			})
			if c.IsActive() {
				d.Set(FieldActivo, "on")
			}
			if c.X != nil {
				d.Set(FieldX, strconv.FormatFloat(c.Lng(), 'f', -1, 64))
			}
			if c.Y != nil {
				d.Set(FieldY, strconv.FormatFloat(c.Lat(), 'f', -1, 64))
			}
			return d
		},
	}
}

func validateCliente(d domain.Draft) error {
	var err error
	if d.Trimmed(FieldNombre) == "" {
		err = domain.AddFieldError(err, FieldNombre, "El nombre es requerido")
	}
	if v := d.Trimmed(FieldX); v != "" && optionalFloat(v) == nil {
		err = domain.AddFieldError(err, FieldX, "La coordenada X debe ser numérica")
	}
	if v := d.Trimmed(FieldY); v != "" && optionalFloat(v) == nil {
		err = domain.AddFieldError(err, FieldY, "La coordenada Y debe ser numérica")
	}
	return err
}

// optionalFloat parses s, accepting a decimal comma. Empty or invalid input
// yields nil.
func optionalFloat(s string) *float64 {
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64)
	if err != nil {
		return nil
	}
	return &v
}

// =============================================================================
// Camiones and DiasEntrega
// =============================================================================

type descripcionPayload struct {
	Descripcion string `json:"descripcion"`
}

func validateDescripcion(d domain.Draft) error {
	if d.Trimmed(FieldDescripcion) == "" {
		return domain.NewValidationError("", FieldDescripcion, "La descripción es requerida")
	}
	return nil
}

func descripcionBody(d domain.Draft) any {
	return descripcionPayload{Descripcion: d.Trimmed(FieldDescripcion)}
}

// CamionSchema describes the /camiones resource.
func CamionSchema() Schema[domain.Camion] {
	return Schema[domain.Camion]{
		Resource: "camiones",
		Labels:   Labels{Title: "Camión", Noun: "camión", Plural: "camiones"},
		Validate: validateDescripcion,
		Payload:  descripcionBody,
		ToDraft: func(c domain.Camion) domain.Draft {
			return domain.EditDraft(c.ID, map[string]string{FieldDescripcion: c.Descripcion})
		},
	}
}

// DiaEntregaSchema describes the /dias-entrega resource. Its list endpoint
// has been seen wrapping the array under an arbitrary key, so the first array
// field is accepted as a last resort.
func DiaEntregaSchema() Schema[domain.DiaEntrega] {
	return Schema[domain.DiaEntrega]{
		Resource: "dias-entrega",
		Labels:   Labels{Title: "Día de entrega", Noun: "día de entrega", Plural: "días de entrega"},
		Validate: validateDescripcion,
		Payload:  descripcionBody,
		ToDraft: func(de domain.DiaEntrega) domain.Draft {
			return domain.EditDraft(de.ID, map[string]string{FieldDescripcion: de.Descripcion})
		},
		DecodeOptions: []apiclient.DecodeOption{apiclient.WithArrayFieldFallback()},
	}
}

// Panels groups the three entity panels the dashboard exposes.
type Panels struct {
	Clientes    *Panel[domain.Cliente]
	Camiones    *Panel[domain.Camion]
	DiasEntrega *Panel[domain.DiaEntrega]
}

// NewPanels creates the entity panels over one backend.
func NewPanels(backend Backend, logger *slog.Logger) *Panels {
	return &Panels{
		Clientes:    NewPanel(backend, ClienteSchema(), logger),
		Camiones:    NewPanel(backend, CamionSchema(), logger),
		DiasEntrega: NewPanel(backend, DiaEntregaSchema(), logger),
	}
}
