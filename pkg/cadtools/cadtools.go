package cadtools

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/partforge/partforge/pkg/agent"
	"github.com/partforge/partforge/pkg/apperr"
	"github.com/partforge/partforge/pkg/onshape"
)

// DefaultSystemPrompt steers the model through the document, part studio
// and feature workflow the tools expect.
const DefaultSystemPrompt = `You are a CAD design assistant that builds parts on the Onshape platform.

Workflow:
1. Create a document with create_document (or pick an existing one with select_document) before anything else.
2. Create a part studio with create_part_studio before adding features.
3. For boxes and cylinders call create_box or create_cylinder directly.
4. For other shapes, sketch a profile with sketch_rectangle or sketch_circle, then extrude it with the sketch id the tool returned.

Rules:
- All dimensions are millimeters. Convert other units before calling tools.
- Dimensions must be positive numbers.
- When a tool fails, read the error, fix the call and try again instead of giving up.
- When the part is complete, reply with a short summary of what was built.`

// positiveOnly marks a dimension schema as strictly greater than zero.
var positiveOnly = new(float64)

// RegisterCADTools registers the full platform tool catalog on the
// registry and seals it.
func RegisterCADTools(registry *agent.Registry, client *onshape.Client) error {
	if registry == nil {
		return errors.New("tool registry is required")
	}
	if client == nil {
		return errors.New("platform client is required")
	}

	tools := []agent.ToolDefinition{
		createDocumentTool(client),
		listDocumentsTool(client),
		selectDocumentTool(client),
		createPartStudioTool(client),
		createBoxTool(client),
		createCylinderTool(client),
		sketchRectangleTool(client),
		sketchCircleTool(client),
		extrudeTool(client),
		createFilletTool(client),
		createChamferTool(client),
		listFeaturesTool(client),
		deleteFeatureTool(client),
		massPropertiesTool(client),
	}

	for _, tool := range tools {
		if err := registry.Register(tool); err != nil {
			return fmt.Errorf("failed to register tool %s: %w", tool.Name, err)
		}
	}
	registry.Seal()
	return nil
}

func createDocumentTool(client *onshape.Client) agent.ToolDefinition {
	return agent.ToolDefinition{
		Name:        "create_document",
		Description: "Create a new document and make it the active one. Must be called before creating part studios or features.",
		Parameters: []agent.ToolParameter{
			{Name: "name", Type: "string", Description: "Document name", Required: true},
			{Name: "description", Type: "string", Description: "Optional document description"},
		},
		Handler: func(ctx context.Context, params map[string]interface{}, session *agent.Session) (interface{}, error) {
			name, _ := params["name"].(string)
			description, _ := params["description"].(string)

			doc, err := client.CreateDocument(ctx, name, description)
			if err != nil {
				return nil, err
			}
			session.SetDocument(doc.ID, doc.DefaultWorkspace.ID)
			return fmt.Sprintf("Created document %q (document %s, workspace %s).", doc.Name, doc.ID, doc.DefaultWorkspace.ID), nil
		},
	}
}

func listDocumentsTool(client *onshape.Client) agent.ToolDefinition {
	return agent.ToolDefinition{
		Name:        "list_documents",
		Description: "List the most recently created documents.",
		Parameters: []agent.ToolParameter{
			{Name: "limit", Type: "integer", Description: "Maximum number of documents to return", Default: 10},
		},
		Handler: func(ctx context.Context, params map[string]interface{}, session *agent.Session) (interface{}, error) {
			docs, err := client.ListDocuments(ctx, toInt(params["limit"], 10))
			if err != nil {
				return nil, err
			}
			if len(docs) == 0 {
				return "No documents found.", nil
			}
			lines := make([]string, 0, len(docs))
			for _, doc := range docs {
				lines = append(lines, fmt.Sprintf("%s (id %s)", doc.Name, doc.ID))
			}
			return strings.Join(lines, "\n"), nil
		},
	}
}

func selectDocumentTool(client *onshape.Client) agent.ToolDefinition {
	return agent.ToolDefinition{
		Name:        "select_document",
		Description: "Find an existing document by name and make it the active one.",
		Parameters: []agent.ToolParameter{
			{Name: "name", Type: "string", Description: "Document name to search for", Required: true},
		},
		Handler: func(ctx context.Context, params map[string]interface{}, session *agent.Session) (interface{}, error) {
			name, _ := params["name"].(string)

			docs, err := client.SearchDocuments(ctx, name)
			if err != nil {
				return nil, err
			}
			if len(docs) == 0 {
				return nil, apperr.New(apperr.KindValidation, "no document matches %q", name)
			}
			doc := docs[0]
			if doc.DefaultWorkspace.ID == "" {
				// Listings omit the workspace; fetch the full record.
				full, err := client.GetDocument(ctx, doc.ID)
				if err != nil {
					return nil, err
				}
				doc = *full
			}
			session.SetDocument(doc.ID, doc.DefaultWorkspace.ID)
			return fmt.Sprintf("Selected document %q (document %s, workspace %s).", doc.Name, doc.ID, doc.DefaultWorkspace.ID), nil
		},
	}
}

func createPartStudioTool(client *onshape.Client) agent.ToolDefinition {
	return agent.ToolDefinition{
		Name:        "create_part_studio",
		Description: "Create a part studio in the active document and make it the target for features.",
		Parameters: []agent.ToolParameter{
			{Name: "name", Type: "string", Description: "Part studio name", Required: true},
		},
		Handler: func(ctx context.Context, params map[string]interface{}, session *agent.Session) (interface{}, error) {
			docID, wsID, err := session.DocumentRef()
			if err != nil {
				return nil, err
			}
			name, _ := params["name"].(string)

			elem, err := client.CreatePartStudio(ctx, docID, wsID, name)
			if err != nil {
				return nil, err
			}
			session.SetElement(elem.ID)
			return fmt.Sprintf("Created part studio %q (element %s).", elem.Name, elem.ID), nil
		},
	}
}

func createBoxTool(client *onshape.Client) agent.ToolDefinition {
	return agent.ToolDefinition{
		Name:        "create_box",
		Description: "Create a rectangular box in the active part studio: a rectangle sketched on the Top plane and extruded upwards.",
		Parameters: []agent.ToolParameter{
			{Name: "width", Type: "number", Description: "Width in mm (X)", Required: true, Minimum: positiveOnly},
			{Name: "depth", Type: "number", Description: "Depth in mm (Y)", Required: true, Minimum: positiveOnly},
			{Name: "height", Type: "number", Description: "Height in mm (Z, extrude depth)", Required: true, Minimum: positiveOnly},
		},
		Handler: func(ctx context.Context, params map[string]interface{}, session *agent.Session) (interface{}, error) {
			docID, wsID, elemID, err := session.ElementRef()
			if err != nil {
				return nil, err
			}
			width := toFloat(params["width"])
			depth := toFloat(params["depth"])
			height := toFloat(params["height"])

			sketchName := fmt.Sprintf("Box base %gx%g mm", width, depth)
			sketch, err := client.AddFeature(ctx, docID, wsID, elemID,
				onshape.SketchFeature(sketchName, "Top", onshape.RectangleEntities(0, 0, width, depth)))
			if err != nil {
				return nil, err
			}

			extrude, err := client.AddFeature(ctx, docID, wsID, elemID,
				onshape.ExtrudeFeature(sketch.Feature.FeatureID, onshape.OperationNew, height))
			if err != nil {
				return nil, err
			}
			return fmt.Sprintf("Created a %gmm x %gmm x %gmm box (sketch %s, extrude %s).",
				width, depth, height, sketch.Feature.FeatureID, extrude.Feature.FeatureID), nil
		},
	}
}

func createCylinderTool(client *onshape.Client) agent.ToolDefinition {
	return agent.ToolDefinition{
		Name:        "create_cylinder",
		Description: "Create a cylinder in the active part studio: a circle sketched on the Top plane and extruded upwards.",
		Parameters: []agent.ToolParameter{
			{Name: "radius", Type: "number", Description: "Radius in mm", Required: true, Minimum: positiveOnly},
			{Name: "height", Type: "number", Description: "Height in mm (extrude depth)", Required: true, Minimum: positiveOnly},
		},
		Handler: func(ctx context.Context, params map[string]interface{}, session *agent.Session) (interface{}, error) {
			docID, wsID, elemID, err := session.ElementRef()
			if err != nil {
				return nil, err
			}
			radius := toFloat(params["radius"])
			height := toFloat(params["height"])

			sketchName := fmt.Sprintf("Cylinder base r%g mm", radius)
			sketch, err := client.AddFeature(ctx, docID, wsID, elemID,
				onshape.SketchFeature(sketchName, "Top", []onshape.SketchEntity{onshape.CircleEntity(0, 0, radius)}))
			if err != nil {
				return nil, err
			}

			extrude, err := client.AddFeature(ctx, docID, wsID, elemID,
				onshape.ExtrudeFeature(sketch.Feature.FeatureID, onshape.OperationNew, height))
			if err != nil {
				return nil, err
			}
			return fmt.Sprintf("Created a cylinder with radius %gmm and height %gmm (sketch %s, extrude %s).",
				radius, height, sketch.Feature.FeatureID, extrude.Feature.FeatureID), nil
		},
	}
}

func sketchRectangleTool(client *onshape.Client) agent.ToolDefinition {
	return agent.ToolDefinition{
		Name:        "sketch_rectangle",
		Description: "Sketch a rectangle on a standard plane. Returns the sketch id to pass to extrude.",
		Parameters: []agent.ToolParameter{
			{Name: "width", Type: "number", Description: "Width in mm", Required: true, Minimum: positiveOnly},
			{Name: "height", Type: "number", Description: "Height in mm", Required: true, Minimum: positiveOnly},
			{Name: "plane", Type: "string", Description: "Sketch plane", Default: "Top", Enum: onshape.SketchPlanes},
			{Name: "x", Type: "number", Description: "Corner X offset in mm", Default: 0},
			{Name: "y", Type: "number", Description: "Corner Y offset in mm", Default: 0},
		},
		Handler: func(ctx context.Context, params map[string]interface{}, session *agent.Session) (interface{}, error) {
			docID, wsID, elemID, err := session.ElementRef()
			if err != nil {
				return nil, err
			}
			width := toFloat(params["width"])
			height := toFloat(params["height"])
			plane := toString(params["plane"], "Top")

			name := fmt.Sprintf("Rectangle %gx%g mm", width, height)
			entities := onshape.RectangleEntities(toFloat(params["x"]), toFloat(params["y"]), width, height)
			resp, err := client.AddFeature(ctx, docID, wsID, elemID, onshape.SketchFeature(name, plane, entities))
			if err != nil {
				return nil, err
			}
			return fmt.Sprintf("Sketched a %gmm x %gmm rectangle on the %s plane (sketch id %s).",
				width, height, plane, resp.Feature.FeatureID), nil
		},
	}
}

func sketchCircleTool(client *onshape.Client) agent.ToolDefinition {
	return agent.ToolDefinition{
		Name:        "sketch_circle",
		Description: "Sketch a circle on a standard plane. Returns the sketch id to pass to extrude.",
		Parameters: []agent.ToolParameter{
			{Name: "radius", Type: "number", Description: "Radius in mm", Required: true, Minimum: positiveOnly},
			{Name: "plane", Type: "string", Description: "Sketch plane", Default: "Top", Enum: onshape.SketchPlanes},
			{Name: "x", Type: "number", Description: "Center X offset in mm", Default: 0},
			{Name: "y", Type: "number", Description: "Center Y offset in mm", Default: 0},
		},
		Handler: func(ctx context.Context, params map[string]interface{}, session *agent.Session) (interface{}, error) {
			docID, wsID, elemID, err := session.ElementRef()
			if err != nil {
				return nil, err
			}
			radius := toFloat(params["radius"])
			plane := toString(params["plane"], "Top")

			name := fmt.Sprintf("Circle r%g mm", radius)
			entities := []onshape.SketchEntity{onshape.CircleEntity(toFloat(params["x"]), toFloat(params["y"]), radius)}
			resp, err := client.AddFeature(ctx, docID, wsID, elemID, onshape.SketchFeature(name, plane, entities))
			if err != nil {
				return nil, err
			}
			return fmt.Sprintf("Sketched a circle with radius %gmm on the %s plane (sketch id %s).",
				radius, plane, resp.Feature.FeatureID), nil
		},
	}
}

func extrudeTool(client *onshape.Client) agent.ToolDefinition {
	return agent.ToolDefinition{
		Name:        "extrude",
		Description: "Extrude a previously sketched profile into a solid.",
		Parameters: []agent.ToolParameter{
			{Name: "sketch_id", Type: "string", Description: "Sketch id returned by sketch_rectangle or sketch_circle", Required: true},
			{Name: "depth", Type: "number", Description: "Extrude depth in mm", Required: true, Minimum: positiveOnly},
			{Name: "operation", Type: "string", Description: "Boolean operation against existing bodies", Default: onshape.OperationNew,
				Enum: []string{onshape.OperationNew, onshape.OperationAdd, onshape.OperationRemove, onshape.OperationIntersect}},
		},
		Handler: func(ctx context.Context, params map[string]interface{}, session *agent.Session) (interface{}, error) {
			docID, wsID, elemID, err := session.ElementRef()
			if err != nil {
				return nil, err
			}
			sketchID, _ := params["sketch_id"].(string)
			depth := toFloat(params["depth"])
			operation := toString(params["operation"], onshape.OperationNew)

			resp, err := client.AddFeature(ctx, docID, wsID, elemID, onshape.ExtrudeFeature(sketchID, operation, depth))
			if err != nil {
				return nil, err
			}
			return fmt.Sprintf("Extruded sketch %s by %gmm (feature %s).", sketchID, depth, resp.Feature.FeatureID), nil
		},
	}
}

func createFilletTool(client *onshape.Client) agent.ToolDefinition {
	return agent.ToolDefinition{
		Name:        "create_fillet",
		Description: "Round edges of the part with a fillet.",
		Parameters: []agent.ToolParameter{
			{Name: "edge_query", Type: "string", Description: "Deterministic edge id or edge query string", Required: true},
			{Name: "radius", Type: "number", Description: "Fillet radius in mm", Required: true, Minimum: positiveOnly},
		},
		Handler: func(ctx context.Context, params map[string]interface{}, session *agent.Session) (interface{}, error) {
			docID, wsID, elemID, err := session.ElementRef()
			if err != nil {
				return nil, err
			}
			edgeQuery, _ := params["edge_query"].(string)
			radius := toFloat(params["radius"])

			resp, err := client.AddFeature(ctx, docID, wsID, elemID, onshape.FilletFeature([]string{edgeQuery}, radius))
			if err != nil {
				return nil, err
			}
			return fmt.Sprintf("Filleted edges with radius %gmm (feature %s).", radius, resp.Feature.FeatureID), nil
		},
	}
}

func createChamferTool(client *onshape.Client) agent.ToolDefinition {
	return agent.ToolDefinition{
		Name:        "create_chamfer",
		Description: "Bevel edges of the part with a chamfer.",
		Parameters: []agent.ToolParameter{
			{Name: "edge_query", Type: "string", Description: "Deterministic edge id or edge query string", Required: true},
			{Name: "width", Type: "number", Description: "Chamfer width in mm", Required: true, Minimum: positiveOnly},
		},
		Handler: func(ctx context.Context, params map[string]interface{}, session *agent.Session) (interface{}, error) {
			docID, wsID, elemID, err := session.ElementRef()
			if err != nil {
				return nil, err
			}
			edgeQuery, _ := params["edge_query"].(string)
			width := toFloat(params["width"])

			resp, err := client.AddFeature(ctx, docID, wsID, elemID, onshape.ChamferFeature([]string{edgeQuery}, width))
			if err != nil {
				return nil, err
			}
			return fmt.Sprintf("Chamfered edges with width %gmm (feature %s).", width, resp.Feature.FeatureID), nil
		},
	}
}

func listFeaturesTool(client *onshape.Client) agent.ToolDefinition {
	return agent.ToolDefinition{
		Name:        "list_features",
		Description: "List the feature tree of the active part studio.",
		Handler: func(ctx context.Context, params map[string]interface{}, session *agent.Session) (interface{}, error) {
			docID, wsID, elemID, err := session.ElementRef()
			if err != nil {
				return nil, err
			}
			features, err := client.ListFeatures(ctx, docID, wsID, elemID)
			if err != nil {
				return nil, err
			}
			if len(features) == 0 {
				return "The part studio has no features yet.", nil
			}
			lines := make([]string, 0, len(features))
			for _, f := range features {
				lines = append(lines, fmt.Sprintf("%s (%s, id %s)", f.Name, f.FeatureType, f.FeatureID))
			}
			return strings.Join(lines, "\n"), nil
		},
	}
}

func deleteFeatureTool(client *onshape.Client) agent.ToolDefinition {
	return agent.ToolDefinition{
		Name:        "delete_feature",
		Description: "Delete one feature from the active part studio.",
		Parameters: []agent.ToolParameter{
			{Name: "feature_id", Type: "string", Description: "Feature id from list_features or a creation tool", Required: true},
		},
		Handler: func(ctx context.Context, params map[string]interface{}, session *agent.Session) (interface{}, error) {
			docID, wsID, elemID, err := session.ElementRef()
			if err != nil {
				return nil, err
			}
			featureID, _ := params["feature_id"].(string)

			if err := client.DeleteFeature(ctx, docID, wsID, elemID, featureID); err != nil {
				return nil, err
			}
			return fmt.Sprintf("Deleted feature %s.", featureID), nil
		},
	}
}

func massPropertiesTool(client *onshape.Client) agent.ToolDefinition {
	return agent.ToolDefinition{
		Name:        "get_mass_properties",
		Description: "Report mass, volume and centroid of the bodies in the active part studio.",
		Handler: func(ctx context.Context, params map[string]interface{}, session *agent.Session) (interface{}, error) {
			docID, wsID, elemID, err := session.ElementRef()
			if err != nil {
				return nil, err
			}
			props, err := client.MassProperties(ctx, docID, wsID, elemID)
			if err != nil {
				return nil, err
			}
			if len(props.Bodies) == 0 {
				return "The part studio has no solid bodies yet.", nil
			}
			lines := make([]string, 0, len(props.Bodies))
			for id, body := range props.Bodies {
				line := fmt.Sprintf("body %s:", id)
				if len(body.Mass) > 0 {
					line += fmt.Sprintf(" mass %.4g kg", body.Mass[0])
				}
				if len(body.Volume) > 0 {
					line += fmt.Sprintf(", volume %.4g mm^3", body.Volume[0]*1e9)
				}
				if len(body.Centroid) >= 3 {
					line += fmt.Sprintf(", centroid (%.2f, %.2f, %.2f) mm",
						body.Centroid[0]*1000, body.Centroid[1]*1000, body.Centroid[2]*1000)
				}
				lines = append(lines, line)
			}
			sort.Strings(lines)
			return strings.Join(lines, "\n"), nil
		},
	}
}

func toFloat(value interface{}) float64 {
	switch v := value.(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return 0
	}
}

func toInt(value interface{}, fallback int) int {
	switch v := value.(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	default:
		return fallback
	}
}

func toString(value interface{}, fallback string) string {
	if s, ok := value.(string); ok && s != "" {
		return s
	}
	return fallback
}
