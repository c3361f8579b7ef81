package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/conduit-lang/trident/internal/orm/dumper"
	"github.com/conduit-lang/trident/internal/orm/loader"
	"github.com/conduit-lang/trident/internal/orm/resolver"
	"github.com/conduit-lang/trident/internal/orm/schema"
	"github.com/conduit-lang/trident/internal/payload"
	"github.com/conduit-lang/trident/internal/session"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// MaxBodyBytes bounds the size of a record API request
const MaxBodyBytes = 4 << 20

var (
	errInternal   = errors.New("internal server error")
	errBadRequest = errors.New("bad request")
	errNotFound   = errors.New("not found")
)

// API answers record API calls from a session store
type API struct {
	registry *schema.Registry
	store    session.Store
	resolver *resolver.Resolver
	dumper   *dumper.Dumper
	logger   *zap.Logger
}

// NewAPI creates an API over store for the model types in registry
func NewAPI(registry *schema.Registry, store session.Store, logger *zap.Logger) *API {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := resolver.New(registry, store, resolver.WithLogger(logger))
	return &API{
		registry: registry,
		store:    store,
		resolver: r,
		dumper:   dumper.New(r, dumper.WithLogger(logger)),
		logger:   logger,
	}
}

// Routes returns the API handler.
//
//	POST /json                 find, where and create calls
//	GET  /models               declared model types
//	GET  /api/{model}          records matching the query string
//	GET  /api/{model}/{id}     one record
//
// The GET routes accept include=a.b,c and format=json|yaml|cbor.
func (a *API) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger(a.logger))
	r.Use(recoverer(a.logger))

	r.Post("/json", a.handleCall)
	r.Get("/models", a.handleModels)
	r.Route("/api/{model}", func(r chi.Router) {
		r.Get("/", a.handleWhere)
		r.Get("/{id}", a.handleFind)
	})
	return r
}

func (a *API) handleCall(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, MaxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	raw, err := payload.DecodeJSON(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	req, err := decodeRequest(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if _, err := a.registry.Get(req.Model); err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	ctx := r.Context()
	var result interface{}
	switch req.Method {
	case session.MethodFind:
		result, err = a.store.Find(ctx, req.Model, req.ID)
	case session.MethodWhere:
		result, err = a.store.Where(ctx, req.Model, req.Query)
	case session.MethodCreate:
		if req.Data == nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("%w: create needs data", errBadRequest))
			return
		}
		var id interface{}
		if id, err = a.store.Put(ctx, req.Model, req.Data); err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		a.logger.Info("record created", zap.String("model", req.Model), zap.Any("id", id))
		writeJSON(w, http.StatusOK, map[string]interface{}{"id": id})
		return
	default:
		writeError(w, http.StatusBadRequest, fmt.Errorf("%w: unknown method %s", errBadRequest, req.Method))
		return
	}
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	include, err := dumper.Parse(req.Include)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if result, err = a.expand(ctx, req.Model, result, include); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleFind(w http.ResponseWriter, r *http.Request) {
	model := chi.URLParam(r, "model")
	if _, err := a.registry.Get(model); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	include, err := includeParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	id := chi.URLParam(r, "id")
	result, err := a.store.Find(r.Context(), model, scalar(id))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if result == nil {
		writeError(w, http.StatusNotFound, fmt.Errorf("%w: %s %s", errNotFound, model, id))
		return
	}

	if result, err = a.expand(r.Context(), model, result, include); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeFormatted(w, r, result)
}

func (a *API) handleWhere(w http.ResponseWriter, r *http.Request) {
	model := chi.URLParam(r, "model")
	if _, err := a.registry.Get(model); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	include, err := includeParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	query := make(map[string]interface{})
	for key, values := range r.URL.Query() {
		if key == "include" || key == "format" {
			continue
		}
		if len(values) == 1 {
			query[key] = scalar(values[0])
			continue
		}
		anyOf := make([]interface{}, len(values))
		for i, v := range values {
			anyOf[i] = scalar(v)
		}
		query[key] = anyOf
	}

	result, err := a.store.Where(r.Context(), model, query)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if result, err = a.expand(r.Context(), model, result, include); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeFormatted(w, r, result)
}

// ModelInfo describes a declared model type
type ModelInfo struct {
	Name          string             `json:"name"`
	LoadAll       bool               `json:"load_all,omitempty"`
	Fields        []string           `json:"fields"`
	Relationships []RelationshipInfo `json:"relationships"`
}

// RelationshipInfo describes a declared relationship
type RelationshipInfo struct {
	Name        string `json:"name"`
	Target      string `json:"target"`
	Cardinality string `json:"cardinality"`
	Kind        string `json:"kind"`
}

// Describe returns the declared model types sorted by name
func Describe(registry *schema.Registry) []ModelInfo {
	names := registry.List()
	out := make([]ModelInfo, 0, len(names))
	for _, name := range names {
		t, err := registry.Get(name)
		if err != nil {
			continue
		}
		info := ModelInfo{Name: t.Name, LoadAll: t.LoadAll, Fields: []string{}, Relationships: []RelationshipInfo{}}
		for _, f := range t.Fields() {
			if !f.Ignored() {
				info.Fields = append(info.Fields, f.Name)
			}
		}
		for _, rel := range t.Relationships() {
			info.Relationships = append(info.Relationships, RelationshipInfo{
				Name:        rel.Name,
				Target:      rel.Target,
				Cardinality: rel.Cardinality.String(),
				Kind:        rel.Kind.String(),
			})
		}
		out = append(out, info)
	}
	return out
}

func (a *API) handleModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Describe(a.registry))
}

// expand adds the relationships named by include to raw results. The raw
// attributes are kept as stored; only the included keys are dumped.
func (a *API) expand(ctx context.Context, model string, result interface{}, include *dumper.Tree) (interface{}, error) {
	if include.Len() == 0 || result == nil {
		return result, nil
	}

	switch v := result.(type) {
	case map[string]interface{}:
		return a.expandOne(ctx, model, v, include)
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			raw, ok := item.(map[string]interface{})
			if !ok {
				out[i] = item
				continue
			}
			expanded, err := a.expandOne(ctx, model, raw, include)
			if err != nil {
				return nil, err
			}
			out[i] = expanded
		}
		return out, nil
	default:
		return result, nil
	}
}

func (a *API) expandOne(ctx context.Context, model string, raw map[string]interface{}, include *dumper.Tree) (map[string]interface{}, error) {
	rec, err := a.resolver.Loader().Load(model, raw)
	if err != nil {
		return nil, err
	}
	dumped, err := a.dumper.Dump(ctx, rec, dumper.Options{Include: include})
	if err != nil {
		return nil, err
	}

	out := make(map[string]interface{}, len(raw)+include.Len())
	for k, v := range raw {
		out[k] = v
	}
	for _, e := range include.Entries() {
		out[e.Name] = dumped[e.Name]
	}
	return out, nil
}

// decodeRequest reads a record API call from a decoded JSON body
func decodeRequest(raw interface{}) (session.Request, error) {
	var req session.Request

	m, ok := raw.(map[string]interface{})
	if !ok {
		return req, fmt.Errorf("%w: body must be an object", errBadRequest)
	}
	req.Model, _ = m["model"].(string)
	req.Method, _ = m["method"].(string)
	if req.Model == "" || req.Method == "" {
		return req, fmt.Errorf("%w: model and method are required", errBadRequest)
	}
	req.ID = m["id"]
	req.Include = m["include"]

	if q, ok := m["query"]; ok && q != nil {
		if req.Query, ok = q.(map[string]interface{}); !ok {
			return req, fmt.Errorf("%w: query must be an object", errBadRequest)
		}
	}
	if d, ok := m["data"]; ok && d != nil {
		if req.Data, ok = d.(map[string]interface{}); !ok {
			return req, fmt.Errorf("%w: data must be an object", errBadRequest)
		}
	}
	if req.Query == nil {
		req.Query = map[string]interface{}{}
	}
	return req, nil
}

func includeParam(r *http.Request) (*dumper.Tree, error) {
	var paths []string
	for _, v := range r.URL.Query()["include"] {
		paths = append(paths, strings.Split(v, ",")...)
	}
	return dumper.ParsePaths(paths...)
}

// scalar reads a path or query value, keeping integers numeric
func scalar(s string) interface{} {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	return s
}

func statusFor(err error) int {
	var notFound *schema.TypeNotFoundError
	var unknown *resolver.UnknownAttributeError
	switch {
	case errors.As(err, &notFound), errors.Is(err, errNotFound):
		return http.StatusNotFound
	case errors.As(err, &unknown),
		errors.Is(err, errBadRequest),
		errors.Is(err, dumper.ErrInvalidInclude),
		errors.Is(err, loader.ErrUnexpectedValue),
		errors.Is(err, session.ErrInvalidRecord):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled):
		return 499
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

var contentTypes = map[payload.Format]string{
	payload.JSON: "application/json; charset=utf-8",
	payload.YAML: "application/yaml",
	payload.CBOR: "application/cbor",
}

// writeFormatted encodes v in the format named by the format query parameter
func writeFormatted(w http.ResponseWriter, r *http.Request, v interface{}) {
	format, err := payload.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	data, err := payload.Marshal(format, v)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", contentTypes[format])
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
