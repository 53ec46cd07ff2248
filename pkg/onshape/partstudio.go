package onshape

import (
	"context"
	"fmt"
	"net/http"
)

// CreatePartStudio adds a part studio element to the document workspace
// and returns the new element.
func (c *Client) CreatePartStudio(ctx context.Context, documentID, workspaceID, name string) (*Element, error) {
	path := fmt.Sprintf("/api/v9/partstudios/d/%s/w/%s", documentID, workspaceID)
	var elem Element
	if err := c.request(ctx, http.MethodPost, path, nil, map[string]interface{}{"name": name}, &elem); err != nil {
		return nil, err
	}
	return &elem, nil
}

// AddFeature posts one feature definition to the part studio feature tree.
// The body is one of the builders in features.go.
func (c *Client) AddFeature(ctx context.Context, documentID, workspaceID, elementID string, feature map[string]interface{}) (*FeatureResponse, error) {
	path := fmt.Sprintf("/api/v9/partstudios/d/%s/w/%s/e/%s/features", documentID, workspaceID, elementID)
	var resp FeatureResponse
	if err := c.request(ctx, http.MethodPost, path, nil, feature, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListFeatures returns the part studio feature tree.
func (c *Client) ListFeatures(ctx context.Context, documentID, workspaceID, elementID string) ([]Feature, error) {
	path := fmt.Sprintf("/api/v9/partstudios/d/%s/w/%s/e/%s/features", documentID, workspaceID, elementID)
	var list FeatureList
	if err := c.request(ctx, http.MethodGet, path, nil, nil, &list); err != nil {
		return nil, err
	}
	return list.Features, nil
}

// DeleteFeature removes one feature by id.
func (c *Client) DeleteFeature(ctx context.Context, documentID, workspaceID, elementID, featureID string) error {
	path := fmt.Sprintf("/api/v9/partstudios/d/%s/w/%s/e/%s/features/featureid/%s", documentID, workspaceID, elementID, featureID)
	return c.request(ctx, http.MethodDelete, path, nil, nil, nil)
}

// MassProperties reports mass, volume and centroid for the part studio
// bodies.
func (c *Client) MassProperties(ctx context.Context, documentID, workspaceID, elementID string) (*MassProperties, error) {
	path := fmt.Sprintf("/api/v9/partstudios/d/%s/w/%s/e/%s/massproperties", documentID, workspaceID, elementID)
	var props MassProperties
	if err := c.request(ctx, http.MethodGet, path, nil, nil, &props); err != nil {
		return nil, err
	}
	return &props, nil
}
