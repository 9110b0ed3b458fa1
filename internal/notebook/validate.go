package notebook

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"ainotebook/internal/apperr"
)

const (
	DefaultPage   = 1
	DefaultLimit  = 20
	DefaultColor  = "#1890ff"
	DefaultStatus = "draft"
	DefaultTitle  = "Untitled"
)

// OptionalString distinguishes an absent field from an explicit null.
type OptionalString struct {
	Set   bool
	Value *string
}

func (o *OptionalString) UnmarshalJSON(data []byte) error {
	o.Set = true
	if isNull(data) {
		o.Value = nil
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	o.Value = &s
	return nil
}

// normalized returns nil for a missing or empty id.
func (o OptionalString) normalized() *string {
	if o.Value == nil || *o.Value == "" {
		return nil
	}
	v := *o.Value
	return &v
}

// CreateNoteInput is the body of POST /notes.
type CreateNoteInput struct {
	Title      string          `json:"title"`
	Content    json.RawMessage `json:"content"`
	NotebookID OptionalString  `json:"notebook_id"`
	Tags       []string        `json:"tags"`
	Status     string          `json:"status"`
}

func (in CreateNoteInput) Validate() error {
	if in.Title == "" && !truthy(in.Content) {
		return apperr.Validation("title or content is required")
	}
	return nil
}

// UpdateNoteInput is the body of PUT /notes/:id. Absent fields are left
// unchanged; content is re-derived only when present.
type UpdateNoteInput struct {
	Title      *string         `json:"title"`
	Content    json.RawMessage `json:"content"`
	NotebookID OptionalString  `json:"notebook_id"`
	Tags       *[]string       `json:"tags"`
	Status     *string         `json:"status"`
}

func (in UpdateNoteInput) Validate() error {
	if in.Status != nil && strings.TrimSpace(*in.Status) == "" {
		return apperr.Validation("status cannot be empty")
	}
	return nil
}

// NoteFilter narrows a note listing. Nil booleans do not filter.
type NoteFilter struct {
	NotebookID string
	Favorite   *bool
	Archived   *bool
}

// Page selects a 1-based page of results.
type Page struct {
	Page  int
	Limit int
}

// ParsePage reads page and limit query values, applying defaults for
// empty strings.
func ParsePage(page, limit string) (Page, error) {
	p := Page{Page: DefaultPage, Limit: DefaultLimit}
	if page != "" {
		n, err := strconv.Atoi(page)
		if err != nil || n < 1 {
			return Page{}, apperr.Validation("page must be a positive integer")
		}
		p.Page = n
	}
	if limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 1 {
			return Page{}, apperr.Validation("limit must be a positive integer")
		}
		p.Limit = n
	}
	return p, nil
}

// ParseFlag reads a boolean filter query value: empty means no filter and
// anything other than "true" means false.
func ParseFlag(v string) *bool {
	if v == "" {
		return nil
	}
	b := v == "true"
	return &b
}

// Pagination describes a page of a listing.
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

func paginate[T any](items []T, p Page) ([]T, Pagination) {
	total := len(items)
	pg := Pagination{
		Page:       p.Page,
		Limit:      p.Limit,
		Total:      total,
		TotalPages: int(math.Ceil(float64(total) / float64(p.Limit))),
	}
	start := (p.Page - 1) * p.Limit
	if start >= total {
		return []T{}, pg
	}
	end := start + p.Limit
	if end > total {
		end = total
	}
	return items[start:end], pg
}

// CreateNotebookInput is the body of POST /notebooks.
type CreateNotebookInput struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Color       string `json:"color"`
}

func (in CreateNotebookInput) Validate() error {
	if strings.TrimSpace(in.Title) == "" {
		return apperr.Validation("notebook title is required")
	}
	return nil
}

// UpdateNotebookInput is the body of PUT /notebooks/:id.
type UpdateNotebookInput struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Color       *string `json:"color"`
}

func (in UpdateNotebookInput) Validate() error {
	if in.Title != nil && strings.TrimSpace(*in.Title) == "" {
		return apperr.Validation("notebook title is required")
	}
	return nil
}

// TagInput is the body of POST /tags and PUT /tags/:id.
type TagInput struct {
	Name string `json:"name"`
}

func (in TagInput) Validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return apperr.Validation("tag name is required")
	}
	return nil
}
