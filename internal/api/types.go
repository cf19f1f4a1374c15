// Request/response types for the save and read endpoints. Validation
// follows the teacher's datatypes package idiom: struct tags plus a
// package-level *validator.Validate instance, rather than gin's
// binding-tag auto-validation (spec.md §4.7 admission rules).
package api

import "github.com/go-playground/validator/v10"

var requestValidate = validator.New()

// SaveRequest is the POST /save body (spec.md §4.7).
type SaveRequest struct {
	Author  string   `json:"author" validate:"required"`
	PostID  string   `json:"postId" validate:"required"`
	Images  []string `json:"images" validate:"required,min=1,dive,url"`
	Source  string   `json:"source"`
	Caption string   `json:"caption"`
}

// SaveResponse is the /save success/partial-success body (spec.md §4.7).
type SaveResponse struct {
	OK         bool        `json:"ok"`
	Saved      []string    `json:"saved"`
	Duplicates []string    `json:"duplicates"`
	Failed     []FailedURL `json:"failed,omitempty"`
}

// FailedURL reports one URL that could not be saved.
type FailedURL struct {
	URL    string `json:"url"`
	Reason string `json:"reason"`
}

// ItemsResponse is the GET /api/items body (spec.md §4.8).
type ItemsResponse struct {
	Page     int        `json:"page"`
	PageSize int        `json:"page_size"`
	Total    int        `json:"total"`
	Items    []ItemView `json:"items"`
}

// ItemView is one row of GET /api/items.
type ItemView struct {
	Path   string `json:"path"`
	Folder string `json:"folder"`
	Mtime  int64  `json:"mtime"`
	PostID string `json:"post_id,omitempty"`
	Source string `json:"source,omitempty"`
}
