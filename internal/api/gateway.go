package api

import (
	"errors"

	"github.com/adaptive-sql/querygate/internal/models"
	"github.com/adaptive-sql/querygate/internal/services/audit"
	"github.com/adaptive-sql/querygate/internal/services/gateway"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"
)

// GatewayHandler exposes the gateway operations over HTTP.
type GatewayHandler struct {
	gw *gateway.Gateway
}

// NewGatewayHandler creates a new gateway handler
func NewGatewayHandler(gw *gateway.Gateway) *GatewayHandler {
	return &GatewayHandler{gw: gw}
}

// queryRequest is the body of POST /v1/connections/:name/query and friends.
type queryRequest struct {
	SQL string `json:"sql"`
}

// ListConnections returns the configured connections without credentials
func (h *GatewayHandler) ListConnections(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"connections": h.gw.ListConnections()})
}

// ListTables returns the tables visible on one connection
func (h *GatewayHandler) ListTables(c *fiber.Ctx) error {
	req := h.request(c)
	tables, err := h.gw.ListTables(c.UserContext(), req)
	if err != nil {
		return renderError(c, err)
	}
	return c.JSON(fiber.Map{"connection": req.Connection, "tables": tables})
}

// GetSchema returns the column level schema of one table
func (h *GatewayHandler) GetSchema(c *fiber.Ctx) error {
	req := h.request(c)
	schema, err := h.gw.GetSchema(c.UserContext(), req)
	if err != nil {
		return renderError(c, err)
	}
	return c.JSON(schema)
}

// DescribeTable is the describe alias for the schema operation; it differs
// only in the action recorded on the audit trail
func (h *GatewayHandler) DescribeTable(c *fiber.Ctx) error {
	req := h.request(c)
	schema, err := h.gw.DescribeTable(c.UserContext(), req)
	if err != nil {
		return renderError(c, err)
	}
	return c.JSON(schema)
}

// GetDDL returns the creation statement of one table
func (h *GatewayHandler) GetDDL(c *fiber.Ctx) error {
	req := h.request(c)
	ddl, err := h.gw.GetDDL(c.UserContext(), req)
	if err != nil {
		return renderError(c, err)
	}
	return c.JSON(fiber.Map{"table": req.Table, "ddl": ddl})
}

// ListIndexes returns the indexes of one table
func (h *GatewayHandler) ListIndexes(c *fiber.Ctx) error {
	req := h.request(c)
	indexes, err := h.gw.ListIndexes(c.UserContext(), req)
	if err != nil {
		return renderError(c, err)
	}
	return c.JSON(fiber.Map{"table": req.Table, "indexes": indexes})
}

// Query validates and executes a statement
func (h *GatewayHandler) Query(c *fiber.Ctx) error {
	req, err := h.sqlRequest(c)
	if err != nil {
		return renderError(c, err)
	}
	result, err := h.gw.RunQuery(c.UserContext(), req)
	if err != nil {
		return renderError(c, err)
	}
	return c.JSON(result)
}

// Explain returns the backend execution plan for a statement
func (h *GatewayHandler) Explain(c *fiber.Ctx) error {
	req, err := h.sqlRequest(c)
	if err != nil {
		return renderError(c, err)
	}
	plan, err := h.gw.ExplainQuery(c.UserContext(), req)
	if err != nil {
		return renderError(c, err)
	}
	return c.JSON(fiber.Map{"sql": req.SQL, "plan": plan})
}

// Analyze explains and times a statement and returns optimization hints
func (h *GatewayHandler) Analyze(c *fiber.Ctx) error {
	req, err := h.sqlRequest(c)
	if err != nil {
		return renderError(c, err)
	}
	analysis, err := h.gw.AnalyzeQuery(c.UserContext(), req)
	if err != nil {
		return renderError(c, err)
	}
	return c.JSON(analysis)
}

// GetStats returns row and size statistics for one table
func (h *GatewayHandler) GetStats(c *fiber.Ctx) error {
	req := h.request(c)
	stats, err := h.gw.GetStats(c.UserContext(), req)
	if err != nil {
		return renderError(c, err)
	}
	return c.JSON(stats)
}

// ListConstraints returns the constraints of one table
func (h *GatewayHandler) ListConstraints(c *fiber.Ctx) error {
	req := h.request(c)
	constraints, err := h.gw.ListConstraints(c.UserContext(), req)
	if err != nil {
		return renderError(c, err)
	}
	return c.JSON(fiber.Map{"table": req.Table, "constraints": constraints})
}

// GetPerformance returns the per connection aggregates from the audit trail
func (h *GatewayHandler) GetPerformance(c *fiber.Ctx) error {
	metrics, err := h.gw.GetPerformance(c.Params("name"))
	if err != nil {
		return renderError(c, err)
	}
	return c.JSON(metrics)
}

// AuditRecent returns recent audit records, newest first
func (h *GatewayHandler) AuditRecent(c *fiber.Ctx) error {
	f := audit.Filter{
		Connection: c.Query("connection"),
		Action:     models.ActionKind(c.Query("action")),
		OnlyErrors: c.QueryBool("errors"),
		Limit:      c.QueryInt("limit", 100),
	}
	return c.JSON(fiber.Map{
		"records": h.gw.Audit().Recent(f),
		"dropped": h.gw.Audit().Dropped(),
	})
}

// PoolStats returns a snapshot of every connection pool
func (h *GatewayHandler) PoolStats(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"pools": h.gw.PoolStats()})
}

func (h *GatewayHandler) request(c *fiber.Ctx) *models.OperationRequest {
	return &models.OperationRequest{
		Connection: c.Params("name"),
		Table:      c.Params("table"),
		Actor:      actor(c),
	}
}

func (h *GatewayHandler) sqlRequest(c *fiber.Ctx) (*models.OperationRequest, error) {
	var body queryRequest
	if err := c.BodyParser(&body); err != nil {
		return nil, models.NewRejectedOperationError("invalid request body: " + err.Error())
	}
	if body.SQL == "" {
		return nil, models.NewRejectedOperationError("sql is required")
	}
	req := h.request(c)
	req.SQL = body.SQL
	return req, nil
}

func actor(c *fiber.Ctx) string {
	if v, ok := c.Locals("api_key_label").(string); ok {
		return v
	}
	return c.IP()
}

// renderError maps a classified error onto its HTTP status. Only the
// top-level message crosses the wire; wrapped causes carry driver detail and
// stay in the server log.
func renderError(c *fiber.Ctx, err error) error {
	var ge *models.GatewayError
	if errors.As(err, &ge) {
		if ge.Cause != nil {
			fiberlog.Debugf("%s %s: %s: %v", c.Method(), c.Path(), ge.Kind, ge.Cause)
		}
		return c.Status(ge.StatusCode()).JSON(fiber.Map{
			"error": ge.Message,
			"kind":  ge.Kind,
		})
	}
	fiberlog.Errorf("%s %s: unclassified error: %v", c.Method(), c.Path(), err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": "internal error",
		"kind":  models.ErrorKindInternal,
	})
}
