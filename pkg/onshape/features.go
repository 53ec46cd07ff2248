package onshape

import "fmt"

// SketchPlanes are the standard planes available in every part studio.
var SketchPlanes = []string{"Front", "Top", "Right"}

// Extrude operation types accepted by the platform.
const (
	OperationNew       = "NEW"
	OperationAdd       = "ADD"
	OperationRemove    = "REMOVE"
	OperationIntersect = "INTERSECT"
)

// SketchEntity is one 2D entity inside a sketch feature. Coordinates and
// dimensions are millimeters.
type SketchEntity map[string]interface{}

// RectangleEntities returns the four line entities of an axis-aligned
// rectangle with one corner at (x, y).
func RectangleEntities(x, y, width, height float64) []SketchEntity {
	segments := [][4]float64{
		{x, y, x + width, y},
		{x + width, y, x + width, y + height},
		{x + width, y + height, x, y + height},
		{x, y + height, x, y},
	}
	entities := make([]SketchEntity, 0, len(segments))
	for _, seg := range segments {
		entities = append(entities, SketchEntity{
			"entityType":     "BTMSketchLine",
			"isConstruction": false,
			"parameters": map[string]interface{}{
				"startPoint": map[string]interface{}{"x": seg[0], "y": seg[1]},
				"endPoint":   map[string]interface{}{"x": seg[2], "y": seg[3]},
			},
		})
	}
	return entities
}

// CircleEntity returns a circle entity centered at (x, y).
func CircleEntity(x, y, radius float64) SketchEntity {
	return SketchEntity{
		"entityType":     "BTMSketchCircle",
		"isConstruction": false,
		"parameters": map[string]interface{}{
			"radius":  map[string]interface{}{"value": radius, "units": "mm"},
			"xCenter": x,
			"yCenter": y,
		},
	}
}

// SketchFeature builds a newSketch feature on one of the standard planes.
func SketchFeature(name, plane string, entities []SketchEntity) map[string]interface{} {
	return map[string]interface{}{
		"feature": map[string]interface{}{
			"featureType": "newSketch",
			"name":        name,
			"parameters": []interface{}{
				map[string]interface{}{
					"parameterId":   "sketchPlane",
					"parameterType": "BTMParameterQueryList",
					"value": map[string]interface{}{
						"queries": []interface{}{
							map[string]interface{}{
								"type":        "BTMIndividualQuery",
								"queryString": fmt.Sprintf("mateConnector(%q)", plane),
							},
						},
					},
				},
			},
			"entities": entities,
		},
	}
}

// ExtrudeFeature builds a blind extrude of the given sketch region. Depth
// is millimeters; operation is one of the Operation constants.
func ExtrudeFeature(sketchID, operation string, depth float64) map[string]interface{} {
	return map[string]interface{}{
		"btType": "BTFeatureDefinitionCall-1406",
		"feature": map[string]interface{}{
			"btType":      "BTMFeature-134",
			"featureType": "extrude",
			"name":        fmt.Sprintf("Extrude %g mm", depth),
			"parameters": []interface{}{
				map[string]interface{}{
					"btType":      "BTMParameterQueryList-118",
					"parameterId": "entities",
					"queries": []interface{}{
						map[string]interface{}{
							"btType":    "BTMIndividualQuery-138",
							"query":     sketchID,
							"queryType": "FACE",
						},
					},
				},
				map[string]interface{}{
					"btType":      "BTMParameterString-149",
					"parameterId": "operationType",
					"value":       operation,
				},
				map[string]interface{}{
					"btType":      "BTMParameterQuantity-147",
					"parameterId": "depth",
					"expression":  fmt.Sprintf("%g mm", depth),
					"isInteger":   false,
				},
			},
			"suppressed":             false,
			"returnAfterSubfeatures": false,
		},
	}
}

// FilletFeature rounds the given edges. Radius is millimeters.
func FilletFeature(edgeQueries []string, radius float64) map[string]interface{} {
	return edgeFeature("fillet", fmt.Sprintf("Fillet %g mm", radius), edgeQueries, "radius", radius)
}

// ChamferFeature bevels the given edges. Width is millimeters.
func ChamferFeature(edgeQueries []string, width float64) map[string]interface{} {
	return edgeFeature("chamfer", fmt.Sprintf("Chamfer %g mm", width), edgeQueries, "distance", width)
}

func edgeFeature(featureType, name string, edgeQueries []string, quantityID string, value float64) map[string]interface{} {
	queries := make([]interface{}, 0, len(edgeQueries))
	for _, q := range edgeQueries {
		queries = append(queries, map[string]interface{}{
			"btType":    "BTMIndividualQuery-138",
			"query":     q,
			"queryType": "EDGE",
		})
	}
	return map[string]interface{}{
		"btType": "BTFeatureDefinitionCall-1406",
		"feature": map[string]interface{}{
			"btType":      "BTMFeature-134",
			"featureType": featureType,
			"name":        name,
			"parameters": []interface{}{
				map[string]interface{}{
					"btType":      "BTMParameterQueryList-118",
					"parameterId": "entities",
					"queries":     queries,
				},
				map[string]interface{}{
					"btType":      "BTMParameterQuantity-147",
					"parameterId": quantityID,
					"expression":  fmt.Sprintf("%g mm", value),
					"isInteger":   false,
				},
			},
			"suppressed":             false,
			"returnAfterSubfeatures": false,
		},
	}
}
