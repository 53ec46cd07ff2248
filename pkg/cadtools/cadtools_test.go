package cadtools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/partforge/partforge/pkg/agent"
	"github.com/partforge/partforge/pkg/apperr"
	"github.com/partforge/partforge/pkg/onshape"
)

type fixture struct {
	registry *agent.Registry
	session  *agent.Session
	requests *atomic.Int32
}

// newFixture wires the tool catalog to a fake platform and counts every
// request that reaches it.
func newFixture(t *testing.T, handler http.HandlerFunc) *fixture {
	t.Helper()

	requests := &atomic.Int32{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		if handler == nil {
			http.Error(w, "unexpected request", http.StatusInternalServerError)
			return
		}
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	client, err := onshape.NewClient(onshape.Config{
		BaseURL:     server.URL,
		Credentials: onshape.Credentials{AccessKey: "test-access", SecretKey: "test-secret"},
		RetryDelay:  time.Millisecond,
		Logger:      zerolog.Nop(),
	})
	require.NoError(t, err)

	registry := agent.NewRegistry(time.Second, zerolog.Nop())
	require.NoError(t, RegisterCADTools(registry, client))

	return &fixture{
		registry: registry,
		session:  agent.NewSession(),
		requests: requests,
	}
}

func (f *fixture) execute(t *testing.T, tool string, params map[string]interface{}) (string, error) {
	t.Helper()
	return f.registry.Execute(context.Background(), tool, params, f.session)
}

func writeJSON(t *testing.T, w http.ResponseWriter, v interface{}) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func TestRegisterCADTools(t *testing.T) {
	f := newFixture(t, nil)

	assert.Equal(t, 14, f.registry.Len())

	summaries := f.registry.Summaries()
	assert.Equal(t, "create_document", summaries[0].Name)
	assert.Equal(t, "get_mass_properties", summaries[len(summaries)-1].Name)

	// The catalog is sealed after registration.
	err := f.registry.Register(agent.ToolDefinition{
		Name:        "late_tool",
		Description: "Should not register",
		Handler: func(ctx context.Context, params map[string]interface{}, session *agent.Session) (interface{}, error) {
			return nil, nil
		},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sealed")
}

func TestCreateDocument_UpdatesSession(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v10/documents", r.URL.Path)
		writeJSON(t, w, map[string]interface{}{
			"id":   "doc-1",
			"name": "Bracket",
			"defaultWorkspace": map[string]interface{}{
				"id": "ws-1",
			},
		})
	})

	output, err := f.execute(t, "create_document", map[string]interface{}{"name": "Bracket"})

	require.NoError(t, err)
	assert.Contains(t, output, "doc-1")
	assert.Contains(t, output, "ws-1")

	snapshot := f.session.Snapshot()
	assert.Equal(t, "doc-1", snapshot.DocumentID)
	assert.Equal(t, "ws-1", snapshot.WorkspaceID)
	assert.Empty(t, snapshot.ElementID)
}

func TestCreatePartStudio_RequiresDocument(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.execute(t, "create_part_studio", map[string]interface{}{"name": "Main"})

	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	assert.Equal(t, int32(0), f.requests.Load(), "the precondition check is local")
}

func TestCreateBox_RequiresPartStudio(t *testing.T) {
	f := newFixture(t, nil)
	f.session.SetDocument("doc-1", "ws-1")

	_, err := f.execute(t, "create_box", map[string]interface{}{
		"width": 10.0, "depth": 20.0, "height": 15.0,
	})

	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	assert.Contains(t, err.Error(), "no active part studio")
	assert.Equal(t, int32(0), f.requests.Load(), "the precondition check is local")
}

func TestCreateBox_NegativeDimensionRejected(t *testing.T) {
	f := newFixture(t, nil)
	f.session.SetDocument("doc-1", "ws-1")
	f.session.SetElement("elem-1")

	_, err := f.execute(t, "create_box", map[string]interface{}{
		"width": -10.0, "depth": 20.0, "height": 15.0,
	})

	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	assert.Contains(t, err.Error(), "width")
	assert.Equal(t, int32(0), f.requests.Load(), "schema validation happens before any platform call")
}

func TestCreateBox_SketchThenExtrude(t *testing.T) {
	var featureBodies []map[string]interface{}
	featureCount := 0
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v9/partstudios/d/doc-1/w/ws-1/e/elem-1/features", r.URL.Path)

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		featureBodies = append(featureBodies, body)

		featureCount++
		writeJSON(t, w, map[string]interface{}{
			"feature": map[string]interface{}{
				"featureId":   fmt.Sprintf("feat-%d", featureCount),
				"name":        "Feature",
				"featureType": "generated",
			},
			"featureState": map[string]interface{}{"featureStatus": "OK"},
		})
	})
	f.session.SetDocument("doc-1", "ws-1")
	f.session.SetElement("elem-1")

	output, err := f.execute(t, "create_box", map[string]interface{}{
		"width": 10.0, "depth": 20.0, "height": 15.0,
	})

	require.NoError(t, err)
	assert.Equal(t, int32(2), f.requests.Load(), "a box is one sketch plus one extrude")
	assert.Contains(t, output, "10mm x 20mm x 15mm")
	assert.Contains(t, output, "feat-1")
	assert.Contains(t, output, "feat-2")

	require.Len(t, featureBodies, 2)
	sketch := featureBodies[0]["feature"].(map[string]interface{})
	assert.Equal(t, "newSketch", sketch["featureType"])
	assert.Len(t, sketch["entities"], 4)

	extrude := featureBodies[1]["feature"].(map[string]interface{})
	assert.Equal(t, "extrude", extrude["featureType"])
	params := extrude["parameters"].([]interface{})
	depth := params[2].(map[string]interface{})
	assert.Equal(t, "15 mm", depth["expression"])
	entities := params[0].(map[string]interface{})
	query := entities["queries"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "feat-1", query["query"], "the extrude targets the sketch it just created")
}

func TestCreateCylinder_SketchThenExtrude(t *testing.T) {
	featureCount := 0
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		featureCount++
		writeJSON(t, w, map[string]interface{}{
			"feature": map[string]interface{}{"featureId": fmt.Sprintf("feat-%d", featureCount)},
		})
	})
	f.session.SetDocument("doc-1", "ws-1")
	f.session.SetElement("elem-1")

	output, err := f.execute(t, "create_cylinder", map[string]interface{}{
		"radius": 5.0, "height": 30.0,
	})

	require.NoError(t, err)
	assert.Equal(t, int32(2), f.requests.Load())
	assert.Contains(t, output, "radius 5mm")
	assert.Contains(t, output, "height 30mm")
}

func TestSelectDocument_NoMatch(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]interface{}{"items": []interface{}{}})
	})

	_, err := f.execute(t, "select_document", map[string]interface{}{"name": "missing"})

	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	assert.Contains(t, err.Error(), "missing")
	assert.Empty(t, f.session.Snapshot().DocumentID)
}

func TestSelectDocument_FetchesWorkspaceWhenListingOmitsIt(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/api/v10/documents" && r.URL.Query().Get("q") == "Bracket":
			writeJSON(t, w, map[string]interface{}{
				"items": []interface{}{map[string]interface{}{"id": "doc-9", "name": "Bracket"}},
			})
		case r.URL.Path == "/api/v10/documents/doc-9":
			writeJSON(t, w, map[string]interface{}{
				"id": "doc-9", "name": "Bracket",
				"defaultWorkspace": map[string]interface{}{"id": "ws-9"},
			})
		default:
			http.Error(w, "unexpected request", http.StatusInternalServerError)
		}
	})

	output, err := f.execute(t, "select_document", map[string]interface{}{"name": "Bracket"})

	require.NoError(t, err)
	assert.Contains(t, output, "doc-9")

	snapshot := f.session.Snapshot()
	assert.Equal(t, "doc-9", snapshot.DocumentID)
	assert.Equal(t, "ws-9", snapshot.WorkspaceID)
}

func TestExtrude_UnknownOperationRejected(t *testing.T) {
	f := newFixture(t, nil)
	f.session.SetDocument("doc-1", "ws-1")
	f.session.SetElement("elem-1")

	_, err := f.execute(t, "extrude", map[string]interface{}{
		"sketch_id": "feat-1", "depth": 10.0, "operation": "MELT",
	})

	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	assert.Equal(t, int32(0), f.requests.Load())
}

func TestListFeatures(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		writeJSON(t, w, map[string]interface{}{
			"features": []interface{}{
				map[string]interface{}{"featureId": "feat-1", "name": "Box base", "featureType": "newSketch"},
				map[string]interface{}{"featureId": "feat-2", "name": "Extrude 15 mm", "featureType": "extrude"},
			},
		})
	})
	f.session.SetDocument("doc-1", "ws-1")
	f.session.SetElement("elem-1")

	output, err := f.execute(t, "list_features", nil)

	require.NoError(t, err)
	assert.Contains(t, output, "Box base (newSketch, id feat-1)")
	assert.Contains(t, output, "Extrude 15 mm (extrude, id feat-2)")
}

func TestDeleteFeature(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/api/v9/partstudios/d/doc-1/w/ws-1/e/elem-1/features/featureid/feat-1", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	})
	f.session.SetDocument("doc-1", "ws-1")
	f.session.SetElement("elem-1")

	output, err := f.execute(t, "delete_feature", map[string]interface{}{"feature_id": "feat-1"})

	require.NoError(t, err)
	assert.Contains(t, output, "feat-1")
}

func TestGetMassProperties(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]interface{}{
			"bodies": map[string]interface{}{
				"-all-": map[string]interface{}{
					"mass":     []float64{0.0236, 0.0235, 0.0237},
					"volume":   []float64{3e-6, 3e-6, 3e-6},
					"centroid": []float64{0.005, 0.01, 0.0075},
				},
			},
		})
	})
	f.session.SetDocument("doc-1", "ws-1")
	f.session.SetElement("elem-1")

	output, err := f.execute(t, "get_mass_properties", nil)

	require.NoError(t, err)
	assert.Contains(t, output, "body -all-")
	assert.Contains(t, output, "kg")
	assert.Contains(t, output, "mm^3")
	assert.Contains(t, output, "(5.00, 10.00, 7.50) mm")
}
