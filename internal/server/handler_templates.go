package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/me/wftemplates/pkg/model"
)

func (s *Server) handleServiceDescriptor(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, model.ServiceDescriptor{
		Name: s.config.App.Name,
		Links: []model.Link{
			{Rel: "self", Href: s.baseURL},
			{Rel: "doc", Href: s.config.App.Doc},
			{Rel: "templates", Href: s.baseURL + "templates"},
		},
	})
}

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	list := s.templates.List()
	listing := model.TemplateListing{Workflows: make([]model.TemplateSummary, 0, len(list))}
	for _, t := range list {
		listing.Workflows = append(listing.Workflows, model.TemplateSummary{
			ID:          t.ID,
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Parameters,
			Links:       []model.Link{{Rel: "self", Href: s.templateURL(t.ID)}},
		})
	}
	writeJSON(w, http.StatusOK, listing)
}

func (s *Server) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	t, ok := s.templates.Get(chi.URLParam(r, "id"))
	if !ok {
		handleNotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, model.TemplateDocument{
		ID:          t.ID,
		Name:        t.Name,
		Description: t.Description,
		Schema:      t.Schema,
		Parameters:  t.Parameters,
		Links: []model.Link{
			{Rel: "self", Href: s.templateURL(t.ID)},
			{Rel: "listing", Href: s.baseURL + "templates"},
		},
	})
}

func (s *Server) templateURL(id string) string {
	return s.baseURL + "templates/" + id
}
