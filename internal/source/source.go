// Package source defines the per-university adapter contract and the code → adapter registry.
package source

//go:generate mockgen -destination=mocks/mock_adapter.go -package=mocks academic-sync-service/internal/source Adapter

import (
	"context"
	"encoding/json"

	"academic-sync-service/internal/entity"
)

// PageRequest asks an adapter for one page of raw records.
type PageRequest struct {
	Page     int
	PageSize int
	Year     string
	Term     string
}

// Filters narrow normalized records to one academic year and/or term. Empty means any.
type Filters struct {
	Year string
	Term string
}

func (f Filters) Match(year, term string) bool {
	if f.Year != "" && f.Year != year {
		return false
	}
	if f.Term != "" && f.Term != term {
		return false
	}
	return true
}

type Metadata struct {
	TotalItems  int  `json:"total_items"`
	TotalPages  int  `json:"total_pages"`
	CurrentPage int  `json:"current_page"`
	PageSize    int  `json:"page_size"`
	HasNextPage bool `json:"has_next_page"`
}

// Page is one page of raw items. Each item is an Item envelope.
type Page struct {
	Items    []json.RawMessage
	Metadata Metadata
}

type Adapter interface {
	// Code is the upper-case institution code, e.g. "CHULA".
	Code() string
	FetchPage(ctx context.Context, req PageRequest) (*Page, error)
	Normalize(items []json.RawMessage, filters Filters) ([]entity.Syllabus, error)
}

// NewMetadata computes pagination for total items split into pages of pageSize.
func NewMetadata(totalItems, page, pageSize int) Metadata {
	if pageSize <= 0 {
		pageSize = 1
	}
	totalPages := (totalItems + pageSize - 1) / pageSize
	return Metadata{
		TotalItems:  totalItems,
		TotalPages:  totalPages,
		CurrentPage: page,
		PageSize:    pageSize,
		HasNextPage: page < totalPages,
	}
}
