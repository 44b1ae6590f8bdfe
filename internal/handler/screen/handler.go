// Package screen renders the server-side pages: login, dashboard and the
// shells of the two form screens.
package screen

import (
	"embed"
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/frontdesk/internal/service/dashboard"
	"github.com/jwalitptl/frontdesk/internal/service/session"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// Templates parses the embedded page templates.
func Templates() *template.Template {
	return template.Must(template.New("").ParseFS(templateFS, "templates/*.tmpl"))
}

// Page is the data handed to screen.tmpl.
type Page struct {
	Title  string
	Screen string
	API    string
	Stats  *dashboard.Stats
}

type Handler struct {
	stats *dashboard.Service
}

func NewHandler(stats *dashboard.Service) *Handler {
	return &Handler{stats: stats}
}

// RegisterRoutes mounts the screens on r, which must carry the screen
// routing middleware.
func (h *Handler) RegisterRoutes(r gin.IRoutes) {
	r.GET(session.RouteLogin, h.Login)
	r.GET(session.RouteDashboard, h.Dashboard)
	r.GET(session.RouteOPHistory, h.OPHistory)
	r.GET(session.RoutePatientDetails, h.PatientDetails)
}

func (h *Handler) Login(c *gin.Context) {
	c.HTML(http.StatusOK, "login.tmpl", gin.H{
		"Failed": c.Query("error") != "",
	})
}

func (h *Handler) Dashboard(c *gin.Context) {
	stats, err := h.stats.Stats(c.Request.Context())
	if err != nil {
		log.Ctx(c.Request.Context()).Warn().Err(err).Msg("dashboard stats unavailable")
	}
	c.HTML(http.StatusOK, "screen.tmpl", Page{Title: "Dashboard", Screen: "dashboard", Stats: stats})
}

func (h *Handler) OPHistory(c *gin.Context) {
	c.HTML(http.StatusOK, "screen.tmpl", Page{Title: "OP History", Screen: "op-history", API: "/api/v1/op-history/form"})
}

func (h *Handler) PatientDetails(c *gin.Context) {
	c.HTML(http.StatusOK, "screen.tmpl", Page{Title: "Patient Details", Screen: "patient-details", API: "/api/v1/patients/form"})
}
