package adapters

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/adaptive-sql/querygate/internal/models"
)

// authMarkers are substrings backends put in their authentication failures.
// Matching on them keeps bad credentials out of the retry path.
var authMarkers = []string{
	"password authentication failed",
	"access denied for user",
	"authentication failed",
	"wrong password",
	"sasl",
}

// classifyDialError sorts a connect failure into authentication (fail fast)
// or connectivity (retryable). The connection name is included; the DSN and
// its credentials never are.
func classifyDialError(name string, err error) *models.GatewayError {
	if err == nil {
		return nil
	}

	lower := strings.ToLower(err.Error())
	for _, marker := range authMarkers {
		if strings.Contains(lower, marker) {
			return models.NewAuthenticationError(
				fmt.Sprintf("authentication failed for connection %q", name), err)
		}
	}

	return models.NewConnectivityError(
		fmt.Sprintf("failed to connect to %q", name), err)
}

// classifyQueryError maps an execution failure onto the gateway error kinds,
// folding context expiry into the timeout kind.
func classifyQueryError(ctx context.Context, err error) *models.GatewayError {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return models.NewTimeoutError("query", err)
	}
	if errors.Is(err, context.Canceled) {
		return models.NewTimeoutError("query", err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return models.NewConnectivityError("connection lost during query", err)
	}

	return models.NewQueryExecutionError("query failed", err)
}
