// Package gateway is the facade every request passes through. Each request
// runs an independent state machine: RECEIVED, VALIDATED, CONNECTED,
// EXECUTED, AUDITED, RETURNED, with FAILED reachable before AUDITED. Exactly
// one audit record is written per request, success or not, and the pooled
// handle is released on every exit path.
package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/adaptive-sql/querygate/internal/config"
	"github.com/adaptive-sql/querygate/internal/models"
	"github.com/adaptive-sql/querygate/internal/services/adapters"
	"github.com/adaptive-sql/querygate/internal/services/audit"
	"github.com/adaptive-sql/querygate/internal/services/credentials"
	"github.com/adaptive-sql/querygate/internal/services/permission"
	"github.com/adaptive-sql/querygate/internal/services/pool"
	"github.com/adaptive-sql/querygate/internal/services/validator"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
)

type requestState string

const (
	stateReceived  requestState = "RECEIVED"
	stateValidated requestState = "VALIDATED"
	stateConnected requestState = "CONNECTED"
	stateExecuted  requestState = "EXECUTED"
	stateFailed    requestState = "FAILED"
)

// Gateway wires the validator, permission checker, pool manager and audit
// logger into the uniform operation set.
type Gateway struct {
	cfg        *config.Config
	pools      *pool.Manager
	checker    *permission.Checker
	auditLog   *audit.Logger
	validators map[models.DatabaseType]*validator.Validator
}

// New assembles a gateway from configuration. The config is finalized here,
// so connection defaults and validation apply no matter how it was built. The
// credential store is built here so resolved secrets stay inside the gateway.
func New(cfg *config.Config) (*Gateway, error) {
	if err := cfg.Finalize(); err != nil {
		return nil, err
	}

	creds, err := credentials.NewStore(cfg.Connections)
	if err != nil {
		return nil, err
	}

	validators := make(map[models.DatabaseType]*validator.Validator)
	for _, conn := range cfg.Connections {
		// redis statements are command lines checked against the adapter's
		// read whitelist, not SQL
		if conn.Type == models.Redis {
			continue
		}
		if _, ok := validators[conn.Type]; !ok {
			validators[conn.Type] = validator.New(conn.Type)
		}
	}

	return &Gateway{
		cfg:        cfg,
		pools:      pool.NewManager(cfg.Connections, creds),
		checker:    permission.NewChecker(),
		auditLog:   audit.NewLogger(cfg.Audit),
		validators: validators,
	}, nil
}

// Audit exposes the audit trail for the API layer.
func (g *Gateway) Audit() *audit.Logger { return g.auditLog }

// PoolStats exposes pool snapshots for the API layer.
func (g *Gateway) PoolStats() []pool.Stats { return g.pools.Stats() }

// Close releases every pool and flushes the audit trail.
func (g *Gateway) Close() error {
	poolErr := g.pools.Close()
	auditErr := g.auditLog.Close()
	if poolErr != nil {
		return poolErr
	}
	return auditErr
}

func (g *Gateway) connection(name string) (*models.ConnectionConfig, error) {
	conn, ok := g.cfg.Connection(name)
	if !ok {
		return nil, models.NewConfigurationError("unknown connection: "+name, nil)
	}
	return conn, nil
}

func (g *Gateway) validatorFor(conn *models.ConnectionConfig) *validator.Validator {
	return g.validators[conn.Type]
}

// outcome carries the facts the audit record needs out of an operation.
type outcome struct {
	truncated bool
}

// run drives one request through the state machine. validate may be nil for
// operations with nothing to validate; op runs with the pooled adapter under
// the connection's query timeout.
func (g *Gateway) run(
	ctx context.Context,
	req *models.OperationRequest,
	validate func(conn *models.ConnectionConfig) error,
	op func(ctx context.Context, ad adapters.Adapter, out *outcome) error,
) error {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	start := time.Now()
	state := stateReceived
	var out outcome

	err := func() error {
		conn, err := g.connection(req.Connection)
		if err != nil {
			return err
		}

		if validate != nil {
			if err := validate(conn); err != nil {
				return err
			}
		}
		state = stateValidated

		p, err := g.pools.Get(req.Connection)
		if err != nil {
			return err
		}
		handle, err := p.Acquire(ctx)
		if err != nil {
			return err
		}
		state = stateConnected

		opCtx, cancel := context.WithTimeout(ctx, conn.QueryTimeout)
		defer cancel()

		opErr := op(opCtx, handle.Adapter(), &out)

		// a timed-out handle may have a stuck statement behind it; discard
		// instead of pooling it
		discard := opErr != nil &&
			(errors.Is(opCtx.Err(), context.DeadlineExceeded) ||
				models.KindOf(opErr) == models.ErrorKindConnectivity)
		handle.Release(discard)

		if opErr != nil {
			if errors.Is(opCtx.Err(), context.DeadlineExceeded) &&
				models.KindOf(opErr) != models.ErrorKindTimeout {
				return models.NewTimeoutError(string(req.Action), opErr)
			}
			return opErr
		}
		state = stateExecuted
		return nil
	}()

	if err != nil {
		state = stateFailed
	}

	rec := models.AuditRecord{
		ID:         req.ID,
		Connection: req.Connection,
		Action:     req.Action,
		SQL:        req.SQL,
		Table:      req.Table,
		Actor:      req.Actor,
		Success:    err == nil,
		Duration:   time.Since(start),
		Truncated:  out.truncated,
	}
	if err != nil {
		rec.ErrorKind = models.KindOf(err)
		fiberlog.Debugf("request %s %s on %q failed in state %s: %v",
			req.ID, req.Action, req.Connection, state, err)
	}
	g.auditLog.Record(rec)

	return err
}
