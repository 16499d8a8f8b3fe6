// Package domain contains core business types and interfaces.
//
// Records mirror what the REST backend returns for each resource. The
// dashboard never owns them; it keeps transient copies between fetches.
package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Record is implemented by every entity the dashboard manages.
type Record interface {
	RecordID() int64
	DisplayName() string
}

// =============================================================================
// Cliente
// =============================================================================

// Cliente is a customer with an optional geolocation.
type Cliente struct {
	ID                int64      `json:"id"`
	Nombre            string     `json:"nombre"`
	Razon             string     `json:"razon,omitempty"`
	CodigoAlternativo string     `json:"codigo_alternativo,omitempty"`
	Direccion         string     `json:"direccion,omitempty"`
	Telefono          string     `json:"telefono,omitempty"`
	Rut               string     `json:"rut,omitempty"`
	Activo            FlexBool   `json:"activo"`
	X                 *FlexFloat `json:"x,omitempty"` // longitude
	Y                 *FlexFloat `json:"y,omitempty"` // latitude
}

func (c Cliente) RecordID() int64     { return c.ID }
func (c Cliente) DisplayName() string { return c.Nombre }

// IsActive reports whether the client is marked active.
func (c Cliente) IsActive() bool { return bool(c.Activo) }

// HasCoords reports whether both coordinates are present and non-zero.
func (c Cliente) HasCoords() bool {
	return c.X != nil && c.Y != nil && *c.X != 0 && *c.Y != 0
}

// Lng returns the longitude, or 0 when unset.
func (c Cliente) Lng() float64 {
	if c.X == nil {
		return 0
	}
	return float64(*c.X)
}

// Lat returns the latitude, or 0 when unset.
func (c Cliente) Lat() float64 {
	if c.Y == nil {
		return 0
	}
	return float64(*c.Y)
}

// =============================================================================
// Camion
// =============================================================================

// Camion is a delivery truck.
type Camion struct {
	ID          int64  `json:"id"`
	Descripcion string `json:"descripcion"`
}

func (c Camion) RecordID() int64     { return c.ID }
func (c Camion) DisplayName() string { return c.Descripcion }

// =============================================================================
// DiaEntrega
// =============================================================================

// DiaEntrega is a delivery day.
type DiaEntrega struct {
	ID          int64  `json:"id"`
	Descripcion string `json:"descripcion"`
}

func (d DiaEntrega) RecordID() int64     { return d.ID }
func (d DiaEntrega) DisplayName() string { return d.Descripcion }

// =============================================================================
// Lenient JSON scalars
// =============================================================================

// FlexFloat decodes from a JSON number or a numeric string. Numeric database
// columns frequently arrive as strings.
type FlexFloat float64

func (f *FlexFloat) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("invalid coordinate %q: %w", s, err)
		}
		*f = FlexFloat(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*f = FlexFloat(v)
	return nil
}

// FlexBool decodes from true/false, 0/1 or their string forms.
type FlexBool bool

func (fb *FlexBool) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	switch strings.ToLower(s) {
	case "true", "1", "t", "si", "sí":
		*fb = true
	case "false", "0", "f", "no", "", "null":
		*fb = false
	default:
		return fmt.Errorf("invalid boolean %s", string(b))
	}
	return nil
}

func (fb FlexBool) MarshalJSON() ([]byte, error) {
	return json.Marshal(bool(fb))
}
