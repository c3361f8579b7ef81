package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/conduit-lang/trident/internal/models"
	"github.com/conduit-lang/trident/internal/orm/resolver"
	"github.com/conduit-lang/trident/internal/orm/schema"
	"github.com/conduit-lang/trident/internal/payload"
	"github.com/conduit-lang/trident/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const fixtures = `
User:
  - {id: 1, login: ada, name: Ada, password_digest: secret}
Plan:
  - {id: 1, name: cloning, status: running, user_id: 1}
Operation:
  - {id: 5, status: pending, user_id: 1}
  - {id: 6, status: done, user_id: 1}
PlanAssociation:
  - {id: 1, plan_id: 1, operation_id: 5}
  - {id: 2, plan_id: 1, operation_id: 6}
`

func setupTestAPI(t *testing.T) (*httptest.Server, *schema.Registry) {
	t.Helper()

	store := session.NewMemoryStore(nil)
	_, err := session.LoadFixtures(context.Background(), store, payload.YAML, []byte(fixtures))
	require.NoError(t, err)

	reg, err := models.NewRegistry()
	require.NoError(t, err)

	srv := httptest.NewServer(NewAPI(reg, store, nil).Routes())
	t.Cleanup(srv.Close)
	return srv, reg
}

func call(t *testing.T, srv *httptest.Server, body string) (int, interface{}) {
	t.Helper()
	resp, err := http.Post(srv.URL+"/json", "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	decoded, err := payload.DecodeJSON(data)
	require.NoError(t, err)
	return resp.StatusCode, decoded
}

func get(t *testing.T, srv *httptest.Server, path string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func TestCallFind(t *testing.T) {
	srv, _ := setupTestAPI(t)

	status, body := call(t, srv, `{"model":"Plan","method":"find","id":1}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, map[string]interface{}{
		"id": int64(1), "name": "cloning", "status": "running", "user_id": int64(1),
	}, body)

	status, body = call(t, srv, `{"model":"Plan","method":"find","id":1,"include":{"user":{}}}`)
	require.Equal(t, http.StatusOK, status)
	plan := body.(map[string]interface{})
	assert.Equal(t, int64(1), plan["user_id"], "raw attributes are kept")
	assert.Equal(t, map[string]interface{}{"id": int64(1), "login": "ada", "name": "Ada"}, plan["user"])

	status, body = call(t, srv, `{"model":"Plan","method":"find","id":42}`)
	assert.Equal(t, http.StatusOK, status)
	assert.Nil(t, body)
}

func TestCallWhereAndCreate(t *testing.T) {
	srv, _ := setupTestAPI(t)

	status, body := call(t, srv, `{"model":"Operation","method":"where","query":{"status":"pending"}}`)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, body, 1)
	assert.Equal(t, int64(5), body.([]interface{})[0].(map[string]interface{})["id"])

	status, body = call(t, srv, `{"model":"Operation","method":"where"}`)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body, 2)

	status, body = call(t, srv, `{"model":"Operation","method":"where","query":{"id":[5,6]},"include":["plans"]}`)
	require.Equal(t, http.StatusOK, status)
	for _, item := range body.([]interface{}) {
		plans := item.(map[string]interface{})["plans"].([]interface{})
		require.Len(t, plans, 1)
		assert.Equal(t, "cloning", plans[0].(map[string]interface{})["name"])
	}

	status, body = call(t, srv, `{"model":"Operation","method":"create","data":{"status":"planning"}}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, map[string]interface{}{"id": int64(7)}, body)

	status, body = call(t, srv, `{"model":"Operation","method":"find","id":7}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "planning", body.(map[string]interface{})["status"])
}

func TestCallErrors(t *testing.T) {
	srv, _ := setupTestAPI(t)

	tests := []struct {
		name   string
		body   string
		status int
		msg    string
	}{
		{"invalid json", `{"model":`, http.StatusBadRequest, "failed to decode payload"},
		{"not an object", `[1,2]`, http.StatusBadRequest, "body must be an object"},
		{"missing method", `{"model":"Plan"}`, http.StatusBadRequest, "model and method are required"},
		{"unknown model", `{"model":"Plasmid","method":"find","id":1}`, http.StatusNotFound, "model type Plasmid not found"},
		{"unknown method", `{"model":"Plan","method":"destroy"}`, http.StatusBadRequest, "unknown method destroy"},
		{"create without data", `{"model":"Plan","method":"create"}`, http.StatusBadRequest, "create needs data"},
		{"bad query", `{"model":"Plan","method":"where","query":[1]}`, http.StatusBadRequest, "query must be an object"},
		{"bad include", `{"model":"Plan","method":"find","id":1,"include":7}`, http.StatusBadRequest, "invalid include tree"},
		{"unknown relationship", `{"model":"Plan","method":"find","id":1,"include":"colour"}`, http.StatusBadRequest, "Plan has no attribute colour"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := call(t, srv, tt.body)
			assert.Equal(t, tt.status, status)
			require.IsType(t, map[string]interface{}{}, body)
			assert.Contains(t, body.(map[string]interface{})["error"], tt.msg)
		})
	}
}

func TestBrowseRoutes(t *testing.T) {
	srv, _ := setupTestAPI(t)

	t.Run("find with include", func(t *testing.T) {
		resp, data := get(t, srv, "/api/Plan/1?include=operations,user")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "application/json; charset=utf-8", resp.Header.Get("Content-Type"))

		body, err := payload.DecodeJSON(data)
		require.NoError(t, err)
		plan := body.(map[string]interface{})
		assert.Len(t, plan["operations"], 2)
		assert.Equal(t, "Ada", plan["user"].(map[string]interface{})["name"])
	})

	t.Run("find missing", func(t *testing.T) {
		resp, _ := get(t, srv, "/api/Plan/99")
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)

		resp, _ = get(t, srv, "/api/Plasmid/1")
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("where", func(t *testing.T) {
		resp, data := get(t, srv, "/api/Operation?status=done")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		body, err := payload.DecodeJSON(data)
		require.NoError(t, err)
		require.Len(t, body, 1)
		assert.Equal(t, int64(6), body.([]interface{})[0].(map[string]interface{})["id"])

		resp, data = get(t, srv, "/api/Operation?id=5&id=6")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		body, err = payload.DecodeJSON(data)
		require.NoError(t, err)
		assert.Len(t, body, 2)
	})

	t.Run("yaml", func(t *testing.T) {
		resp, data := get(t, srv, "/api/User/1?format=yaml")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "application/yaml", resp.Header.Get("Content-Type"))

		body, err := payload.Unmarshal(payload.YAML, data)
		require.NoError(t, err)
		assert.Equal(t, "ada", body.(map[string]interface{})["login"])
	})

	t.Run("bad format and include", func(t *testing.T) {
		resp, _ := get(t, srv, "/api/User/1?format=xml")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

		resp, _ = get(t, srv, "/api/User/1?include=groups..users")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestModelsRoute(t *testing.T) {
	srv, reg := setupTestAPI(t)

	resp, data := get(t, srv, "/models")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var infos []ModelInfo
	require.NoError(t, json.Unmarshal(data, &infos))
	assert.Len(t, infos, reg.Count())

	var plan *ModelInfo
	for i := range infos {
		if infos[i].Name == models.Plan {
			plan = &infos[i]
		}
	}
	require.NotNil(t, plan)
	assert.Contains(t, plan.Fields, "status")
	assert.Contains(t, plan.Relationships, RelationshipInfo{
		Name: "operations", Target: models.Operation, Cardinality: "many", Kind: "has_many_through",
	})
}

func TestHTTPSessionAgainstAPI(t *testing.T) {
	srv, reg := setupTestAPI(t)
	ctx := context.Background()

	store, err := session.NewHTTPStore(srv.URL, nil)
	require.NoError(t, err)
	defer store.Close()

	r := resolver.New(reg, store)

	raw, err := store.Find(ctx, models.Plan, 1)
	require.NoError(t, err)
	plan, err := r.Loader().Load(models.Plan, raw)
	require.NoError(t, err)

	ops, err := r.Many(ctx, plan, "operations")
	require.NoError(t, err)
	var ids []interface{}
	for _, op := range ops {
		ids = append(ids, op.ID())
	}
	assert.ElementsMatch(t, []interface{}{int64(5), int64(6)}, ids)

	user, err := r.One(ctx, ops[0], "user")
	require.NoError(t, err)
	require.NotNil(t, user)
	login, _ := user.Get("login")
	assert.Equal(t, "ada", login)

	id, err := store.Put(ctx, models.Plan, map[string]interface{}{"name": "remote"})
	require.NoError(t, err)
	created, err := store.Find(ctx, models.Plan, id)
	require.NoError(t, err)
	assert.Equal(t, "remote", created.(map[string]interface{})["name"])

	_, err = store.Find(ctx, "Plasmid", 1)
	assert.ErrorIs(t, err, session.ErrRemote)
}

func TestRecoverer(t *testing.T) {
	h := recoverer(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal server error"}`, rec.Body.String())
}
