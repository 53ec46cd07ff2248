package onshape

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
)

// CreateDocument creates a new document and returns it, including the
// default workspace id that subsequent element calls target.
func (c *Client) CreateDocument(ctx context.Context, name, description string) (*Document, error) {
	body := map[string]interface{}{
		"name":        name,
		"description": description,
	}
	var doc Document
	if err := c.request(ctx, http.MethodPost, "/api/v10/documents", nil, body, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// ListDocuments returns the caller's most recently created documents.
func (c *Client) ListDocuments(ctx context.Context, limit int) ([]Document, error) {
	if limit <= 0 {
		limit = 20
	}
	query := url.Values{}
	query.Set("ownerType", "0")
	query.Set("sortColumn", "createdAt")
	query.Set("sortOrder", "desc")
	query.Set("limit", strconv.Itoa(limit))
	var list DocumentList
	if err := c.request(ctx, http.MethodGet, "/api/v10/documents", query, nil, &list); err != nil {
		return nil, err
	}
	return list.Items, nil
}

// SearchDocuments filters the document listing by name.
func (c *Client) SearchDocuments(ctx context.Context, name string) ([]Document, error) {
	query := url.Values{}
	query.Set("q", name)
	var list DocumentList
	if err := c.request(ctx, http.MethodGet, "/api/v10/documents", query, nil, &list); err != nil {
		return nil, err
	}
	return list.Items, nil
}

// GetDocument fetches one document's metadata.
func (c *Client) GetDocument(ctx context.Context, documentID string) (*Document, error) {
	var doc Document
	if err := c.request(ctx, http.MethodGet, "/api/v10/documents/"+documentID, nil, nil, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}
