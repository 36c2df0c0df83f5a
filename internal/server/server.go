package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"trailhead/internal/engine"
	"trailhead/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"journey_not_ready"`
	Message string         `json:"message" example:"journey not activated; set a goal and add context first"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

type requestKey struct{}
type bodyBytesKey struct{}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Trailhead API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the envelope.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors should be 400 bad_request
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			ctx := context.WithValue(r.Context(), requestKey{}, r)
			ctx = context.WithValue(ctx, bodyBytesKey{}, bodyBytes)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	hcfg := huma.DefaultConfig("Trailhead API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerOnboarding(group, cfg.Engine)
	registerReflection(group, cfg.Engine)
	registerCompletion(group, cfg.Engine)
	registerStatus(group, cfg.Engine)
	registerTasks(group, cfg.Engine)
	registerTree(group, cfg.Engine)
	registerJourney(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerAPIKeys(group, cfg.Engine)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, engine.ErrNotActivated):
		return newAPIError(http.StatusConflict, "journey_not_ready", err.Error(), nil)
	case errors.Is(err, engine.ErrGoalNotSet):
		return newAPIError(http.StatusConflict, "goal_not_set", err.Error(), nil)
	case errors.Is(err, engine.ErrGoalAlreadySet):
		return newAPIError(http.StatusConflict, "goal_already_set", err.Error(), nil)
	case errors.Is(err, repo.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "invalid") ||
		strings.Contains(lowered, "unknown") ||
		strings.Contains(lowered, "missing") ||
		strings.Contains(lowered, "required"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func bodyBytes(ctx context.Context) []byte {
	if buf, ok := ctx.Value(bodyBytesKey{}).([]byte); ok {
		return buf
	}
	req, ok := ctx.Value(requestKey{}).(*http.Request)
	if !ok || req == nil {
		return nil
	}
	data, _ := io.ReadAll(req.Body)
	return data
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	oas.Components.SecuritySchemes["apiKeyAuth"] = &huma.SecurityScheme{
		Type: "apiKey",
		In:   "header",
		Name: "X-Api-Key",
	}
	security := []map[string][]string{
		{"bearerAuth": {}},
		{"apiKeyAuth": {}},
	}
	oas.Security = security
	healthPath := path.Join(basePath, "health")
	if !strings.HasPrefix(healthPath, "/") {
		healthPath = "/" + healthPath
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if route == healthPath {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Trailhead API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt; or X-Api-Key.
    </p>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerOnboarding(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "set-goal",
		Method:        http.MethodPost,
		Path:          "/onboarding/set_goal",
		Summary:       "Plant the journey goal",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusConflict,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body SetGoalRequest `json:"body"`
	}) (*struct {
		Body SeedResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if strings.TrimSpace(input.Body.Goal) == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "goal is required", nil)
		}
		if _, authErr := userIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		seed, err := e.SetGoal(ctx, input.Body.Goal)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body SeedResponse `json:"body"`
		}{Body: seedResponse(seed)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "add-context",
		Method:      http.MethodPost,
		Path:        "/onboarding/add_context",
		Summary:     "Add context and activate the journey",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusConflict,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body AddContextRequest `json:"body"`
	}) (*struct {
		Body TreeResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if _, authErr := userIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		tree, err := e.AddContext(ctx, input.Body.Context)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TreeResponse `json:"body"`
		}{Body: treeResponse(tree)}, nil
	})
}

func registerReflection(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "command",
		Method:      http.MethodPost,
		Path:        "/command",
		Summary:     "Process one reflection turn",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusConflict,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CommandRequest `json:"body"`
	}) (*struct {
		Body TurnResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if strings.TrimSpace(input.Body.Text) == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "text is required", nil)
		}
		if _, authErr := userIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		turn, err := e.Reflect(ctx, input.Body.Text)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TurnResponse `json:"body"`
		}{Body: turnResponse(turn)}, nil
	})
}

func registerCompletion(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "complete-task",
		Method:      http.MethodPost,
		Path:        "/complete_task",
		Summary:     "Complete a task by id",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusConflict,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CompleteTaskRequest `json:"body"`
	}) (*struct {
		Body CompletionResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if strings.TrimSpace(input.Body.TaskID) == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "task_id is required", nil)
		}
		if _, authErr := userIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		res, err := e.CompleteTask(ctx, input.Body.TaskID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CompletionResponse `json:"body"`
		}{Body: completionResponse(res)}, nil
	})
}

func registerStatus(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "status",
		Method:      http.MethodGet,
		Path:        "/status",
		Summary:     "Journey status",
		Errors: []int{
			http.StatusUnauthorized,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body engine.StatusReport `json:"body"`
	}, error) {
		if _, authErr := userIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		report, err := e.Status(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.StatusReport `json:"body"`
		}{Body: report}, nil
	})
}

func registerTasks(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/tasks",
		Summary:     "Ranked task backlog",
		Errors: []int{
			http.StatusUnauthorized,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body TaskListResponse `json:"body"`
	}, error) {
		if _, authErr := userIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		tasks, err := e.Tasks(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskListResponse `json:"body"`
		}{Body: TaskListResponse{Items: nonNilTasks(tasks)}}, nil
	})
}

func registerTree(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-tree",
		Method:      http.MethodGet,
		Path:        "/tree",
		Summary:     "Current goal tree",
		Errors: []int{
			http.StatusUnauthorized,
			http.StatusNotFound,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body TreeResponse `json:"body"`
	}, error) {
		if _, authErr := userIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		tree, err := e.Tree(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		if tree == nil || tree.Root == nil {
			return nil, newAPIError(http.StatusNotFound, "not_found", "no goal tree yet", nil)
		}
		return &struct {
			Body TreeResponse `json:"body"`
		}{Body: treeResponse(tree)}, nil
	})
}

func registerJourney(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "set-horizon",
		Method:      http.MethodPost,
		Path:        "/horizon",
		Summary:     "Set the estimated completion date",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusConflict,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body SetHorizonRequest `json:"body"`
	}) (*struct {
		Body HorizonResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if _, authErr := userIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		when, err := parseHorizonDate(input.Body.Date)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "date must be RFC3339 or YYYY-MM-DD", map[string]any{"date": input.Body.Date})
		}
		scheduled, err := e.SetHorizon(ctx, when, input.Body.Override)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body HorizonResponse `json:"body"`
		}{Body: HorizonResponse{
			Horizon:   when.UTC().Format(time.RFC3339),
			Scheduled: scheduled,
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-path",
		Method:      http.MethodPost,
		Path:        "/path",
		Summary:     "Switch the journey path",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body SetPathRequest `json:"body"`
	}) (*struct {
		Body PathResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if _, authErr := userIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		if err := e.SetPath(ctx, input.Body.Path); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body PathResponse `json:"body"`
		}{Body: PathResponse{Path: input.Body.Path}}, nil
	})
}

func parseHorizonDate(raw string) (time.Time, error) {
	if when, err := time.Parse(time.RFC3339, raw); err == nil {
		return when, nil
	}
	return time.Parse("2006-01-02", raw)
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "Recent journey events",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind"`
		Limit      int    `query:"limit" default:"50"`
	}) (*struct {
		Body EventListResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.Repo.LatestEvents(ctx, normalizeLimit(input.Limit), repo.EventFilters{
			UserID:     userID,
			Type:       input.Type,
			EntityKind: input.EntityKind,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := EventListResponse{Items: []EventResponse{}}
		for _, evt := range items {
			resp.Items = append(resp.Items, eventResponse(evt))
		}
		return &struct {
			Body EventListResponse `json:"body"`
		}{Body: resp}, nil
	})
}

func registerAPIKeys(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-api-key",
		Method:        http.MethodPost,
		Path:          "/apikeys",
		Summary:       "Create an API key",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateAPIKeyRequest `json:"body"`
	}) (*struct {
		Body APIKeyResponse `json:"body"`
	}, error) {
		if _, authErr := userIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		plain, key, err := e.CreateAPIKey(ctx, input.Body.Name)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body APIKeyResponse `json:"body"`
		}{Body: APIKeyResponse{
			ID:        key.ID,
			Name:      key.Name,
			Key:       plain,
			CreatedAt: key.CreatedAt,
		}}, nil
	})
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 200 {
		return 200
	}
	return in
}
