package dto

import "github.com/spec-kit/support-workflow/internal/domain"

// StatusItem describes a ticket status.
type StatusItem struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	IsClosed  bool   `json:"is_closed"`
	IsDefault bool   `json:"is_default"`
	SortOrder int    `json:"sort_order"`
}

// CategoryItem describes a ticket category.
type CategoryItem struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

// PriorityItem describes a ticket priority.
type PriorityItem struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Rank int    `json:"rank"`
}

// CatalogResponse groups the lookup tables.
type CatalogResponse struct {
	Statuses   []StatusItem   `json:"statuses"`
	Categories []CategoryItem `json:"categories"`
	Priorities []PriorityItem `json:"priorities"`
}

// NewCatalogResponse maps the catalog.
func NewCatalogResponse(c domain.Catalog) CatalogResponse {
	resp := CatalogResponse{
		Statuses:   make([]StatusItem, 0, len(c.Statuses)),
		Categories: make([]CategoryItem, 0, len(c.Categories)),
		Priorities: make([]PriorityItem, 0, len(c.Priorities)),
	}
	for _, s := range c.Statuses {
		resp.Statuses = append(resp.Statuses, StatusItem(s))
	}
	for _, cat := range c.Categories {
		resp.Categories = append(resp.Categories, CategoryItem(cat))
	}
	for _, p := range c.Priorities {
		resp.Priorities = append(resp.Priorities, PriorityItem(p))
	}
	return resp
}
