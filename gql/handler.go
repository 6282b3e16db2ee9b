package gql

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/SevenTV/AiUsage/auth"
	"github.com/SevenTV/AiUsage/dataloader"
	"github.com/SevenTV/AiUsage/errors"
	"github.com/SevenTV/AiUsage/monitoring"
	"github.com/gin-gonic/gin"
	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/gqlerrors"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type HandlerOptions struct {
	Schema    graphql.Schema
	Loaders   *LoaderFactory
	JWTSecret string
	// Metrics is optional.
	Metrics *monitoring.RequestMetrics
	Logger  *zap.Logger
}

// Handler executes GraphQL requests. Every request runs in its own batch window.
type Handler struct {
	schema  graphql.Schema
	loaders *LoaderFactory
	secret  string
	metrics *monitoring.RequestMetrics
	logger  *zap.Logger
}

func NewHandler(opt HandlerOptions) *Handler {
	if opt.Logger == nil {
		opt.Logger = zap.NewNop()
	}

	return &Handler{
		schema:  opt.Schema,
		loaders: opt.Loaders,
		secret:  opt.JWTSecret,
		metrics: opt.Metrics,
		logger:  opt.Logger,
	}
}

type gqlRequest struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName"`
	Variables     map[string]any `json:"variables"`
}

func (h *Handler) Mount(r gin.IRouter, path string) {
	r.GET(path, h.ServeGraphQL)
	r.POST(path, h.ServeGraphQL)
}

func (h *Handler) ServeGraphQL(c *gin.Context) {
	start := time.Now()

	req, err := readRequest(c)
	if err != nil {
		h.abort(c, start, err)
		return
	}

	w := h.loaders.NewWindow(c.Request.Context())
	defer w.Close()

	ctx := dataloader.WithWindow(c.Request.Context(), w)

	ctx, err = h.authenticate(ctx, c.GetHeader("Authorization"))
	if err != nil {
		h.abort(c, start, err)
		return
	}

	result := h.execute(ctx, w, req)

	// the engine recovers resolver panics into field errors, a broken fetch contract must not pass as one
	if violation := w.Violation(); violation != nil {
		h.logger.Error("gql, loader contract violated", zap.Error(violation))
		h.abort(c, start, errors.ErrInternalServerError())
		return
	}

	outcome := "ok"
	if result.HasErrors() {
		outcome = "partial"
		h.logger.Debug("gql, request completed with errors",
			zap.String("operation", req.OperationName),
			zap.Int("errors", len(result.Errors)),
		)
	}

	h.observe(outcome, start)
	c.JSON(http.StatusOK, result)
}

func (h *Handler) execute(ctx context.Context, w *dataloader.Window, req gqlRequest) (result *graphql.Result) {
	defer func() {
		if r := recover(); r != nil {
			if w.Violation() == nil {
				panic(r)
			}
			result = nil
		}
	}()

	return graphql.Do(graphql.Params{
		Schema:         h.schema,
		RequestString:  req.Query,
		VariableValues: req.Variables,
		OperationName:  req.OperationName,
		Context:        ctx,
	})
}

func readRequest(c *gin.Context) (gqlRequest, error) {
	req := gqlRequest{}

	if c.Request.Method == http.MethodGet {
		req.Query = c.Query("query")
		req.OperationName = c.Query("operationName")
		if v := c.Query("variables"); v != "" {
			if err := json.Unmarshal([]byte(v), &req.Variables); err != nil {
				return req, errors.ErrInvalidRequest().SetDetail("bad variables")
			}
		}
	} else if err := c.ShouldBindJSON(&req); err != nil {
		return req, errors.ErrInvalidRequest().SetDetail("bad request body")
	}

	if strings.TrimSpace(req.Query) == "" {
		return req, errors.ErrInvalidRequest().SetDetail("missing query")
	}

	return req, nil
}

// authenticate puts the bearer token's user in ctx. Requests without a token stay anonymous.
func (h *Handler) authenticate(ctx context.Context, header string) (context.Context, error) {
	if header == "" {
		return ctx, nil
	}

	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return ctx, errors.ErrUnauthorized().SetDetail("bad authorization header")
	}

	claims, err := auth.VerifyJWT(h.secret, token)
	if err != nil {
		return ctx, errors.ErrUnauthorized().SetDetail("bad token")
	}

	userID, err := primitive.ObjectIDFromHex(claims.UserID)
	if err != nil {
		return ctx, errors.ErrUnauthorized().SetDetail("bad token")
	}

	users, err := UserLoader(ctx)
	if err != nil {
		return ctx, err
	}

	res, err := users.Load(ctx, userID)
	if err != nil {
		h.logger.Error("gql, failed to load actor", zap.String("user_id", userID.Hex()), zap.Error(err))
		return ctx, errors.ErrUpstreamFailure().SetDetail("user lookup failed")
	}
	if !res.Found {
		return ctx, errors.ErrUnauthorized().SetDetail("unknown user")
	}

	return auth.WithActor(ctx, res.Value), nil
}

func (h *Handler) abort(c *gin.Context, start time.Time, err error) {
	apiErr := errors.From(err)
	h.observe("rejected", start)

	c.AbortWithStatusJSON(apiErr.ExpectedHTTPStatus(), &graphql.Result{
		Errors: []gqlerrors.FormattedError{{
			Message:    apiErr.Message(),
			Extensions: apiErr.Extensions(),
		}},
	})
}

func (h *Handler) observe(outcome string, start time.Time) {
	if h.metrics != nil {
		h.metrics.Observe(outcome, time.Since(start))
	}
}
