package onshape

import "time"

// Document is the platform document resource as returned by creation,
// info and listing calls.
type Document struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	CreatedAt        time.Time `json:"createdAt"`
	DefaultWorkspace Workspace `json:"defaultWorkspace"`
}

// Workspace is a document's editable branch; creation calls target the
// default workspace.
type Workspace struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// DocumentList is the paginated documents listing.
type DocumentList struct {
	Items []Document `json:"items"`
}

// Element is a tab inside a document; here always a part studio.
type Element struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ElementType string `json:"elementType"`
}

// Feature is one node of a part studio feature tree.
type Feature struct {
	FeatureID   string `json:"featureId"`
	Name        string `json:"name"`
	FeatureType string `json:"featureType"`
}

// FeatureState reports how the platform regenerated a feature.
type FeatureState struct {
	FeatureStatus string `json:"featureStatus"`
}

// FeatureResponse is returned by feature creation calls.
type FeatureResponse struct {
	Feature      Feature      `json:"feature"`
	FeatureState FeatureState `json:"featureState"`
}

// FeatureList is the part studio feature tree listing.
type FeatureList struct {
	Features []Feature `json:"features"`
}

// MassProperties reports aggregate body properties. Numeric fields are
// [value, min, max] triples in SI units.
type MassProperties struct {
	Bodies map[string]MassPropertyBody `json:"bodies"`
}

// MassPropertyBody is one body's measurements.
type MassPropertyBody struct {
	Mass     []float64 `json:"mass"`
	Volume   []float64 `json:"volume"`
	Centroid []float64 `json:"centroid"`
}
