package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
)

// --- Pagination ---

const (
	defaultPageLimit = 50
	maxPageLimit     = 100000
)

// Pagination holds parsed limit/offset values.
type Pagination struct {
	Limit  int
	Offset int
}

type requestBodyTooLargeError struct {
	Limit int64
}

func (e *requestBodyTooLargeError) Error() string {
	return fmt.Sprintf("request body too large (max %d bytes)", e.Limit)
}

// ParsePagination reads limit and offset from query parameters.
func ParsePagination(r *http.Request) (Pagination, error) {
	p := Pagination{Limit: defaultPageLimit, Offset: 0}

	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return p, fmt.Errorf("limit: must be a non-negative integer")
		}
		if n > maxPageLimit {
			return p, fmt.Errorf("limit: must be <= %d", maxPageLimit)
		}
		if n > 0 {
			p.Limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return p, fmt.Errorf("offset: must be a non-negative integer")
		}
		p.Offset = n
	}
	return p, nil
}

func parsePaginationOrWriteInvalid(w http.ResponseWriter, r *http.Request) (Pagination, bool) {
	p, err := ParsePagination(r)
	if err != nil {
		writeInvalidArgument(w, err.Error())
		return p, false
	}
	return p, true
}

// --- Body Decoding ---

// DecodeBody decodes the JSON request body into v, rejecting unknown fields.
func DecodeBody(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return fmt.Errorf("request body is required")
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return &requestBodyTooLargeError{Limit: maxErr.Limit}
		}
		return fmt.Errorf("invalid request body: %w", err)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return &requestBodyTooLargeError{Limit: maxErr.Limit}
		}
		return fmt.Errorf("invalid request body: must contain a single JSON value")
	}
	return nil
}

// --- Path Parameters ---

// PathParam extracts a named path parameter from the request URL.
// Works with Go 1.22+ ServeMux pattern matching (e.g. /streamers/{name}).
func PathParam(r *http.Request, name string) string {
	return r.PathValue(name)
}

// PaginateSlice applies limit/offset to a slice and returns the page.
func PaginateSlice[T any](items []T, p Pagination) []T {
	if p.Offset >= len(items) {
		return []T{}
	}
	end := p.Offset + p.Limit
	if end > len(items) {
		end = len(items)
	}
	return items[p.Offset:end]
}
