package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/DukeRupert/mapaclientes/internal/domain"
	"github.com/DukeRupert/mapaclientes/internal/service"
)

// mapSpan is half the side of the map window around a client, in degrees.
const mapSpan = 0.005

// ClienteHandler adds the map view on top of the generic entity routes.
type ClienteHandler struct {
	*EntityHandler[domain.Cliente]
}

// NewClienteHandler creates the /clientes handler.
func NewClienteHandler(shell *Shell, panel *service.Panel[domain.Cliente], logger *slog.Logger) *ClienteHandler {
	return &ClienteHandler{
		EntityHandler: NewEntityHandler(shell, panel, EntityConfig{
			BasePath:     "/clientes",
			Title:        "Clientes",
			ListTemplate: "clientes/list",
			FormTemplate: "clientes/form",
			EstadoFilter: true,
		}, logger),
	}
}

// MapView is the content of the client map page.
type MapView struct {
	Cliente  domain.Cliente
	EmbedURL string
	LinkURL  string
	Back     string
}

// newMapView builds OpenStreetMap URLs centred on the client.
func newMapView(c domain.Cliente, back string) MapView {
	lat, lng := c.Lat(), c.Lng()

	embed := url.Values{}
	embed.Set("bbox", fmt.Sprintf("%f,%f,%f,%f", lng-mapSpan, lat-mapSpan, lng+mapSpan, lat+mapSpan))
	embed.Set("layer", "mapnik")
	embed.Set("marker", fmt.Sprintf("%f,%f", lat, lng))

	return MapView{
		Cliente:  c,
		EmbedURL: "https://www.openstreetmap.org/export/embed.html?" + embed.Encode(),
		LinkURL:  fmt.Sprintf("https://www.openstreetmap.org/?mlat=%f&mlon=%f#map=17/%f/%f", lat, lng, lat, lng),
		Back:     back,
	}
}

// Map handles GET /clientes/{id}/mapa.
func (h *ClienteHandler) Map(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		NotFoundResponse(w, r, h.logger)
		return
	}

	_, _ = h.panel.Ensure(r.Context())
	c, found := h.panel.Get(id)
	if !found {
		NotFoundResponse(w, r, h.logger)
		return
	}
	if !c.HasCoords() {
		h.shell.Notify(r, service.NotifyWarning, "El cliente no tiene coordenadas")
		redirectBack(w, r, h.config.BasePath)
		return
	}

	h.shell.Render(w, r, "clientes/mapa", "Ubicación de "+c.Nombre, newMapView(c, backParam(r, h.config.BasePath)))
}

// RegisterRoutes registers the entity routes plus the map view.
func (h *ClienteHandler) RegisterRoutes(mux *http.ServeMux, wrap func(http.Handler) http.Handler) {
	h.EntityHandler.RegisterRoutes(mux, wrap)
	mux.Handle("GET /clientes/{id}/mapa", wrap(http.HandlerFunc(h.Map)))
}
