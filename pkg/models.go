package pkg

import "github.com/adaptive-sql/querygate/internal/models"

type (
	ServerConfig     = models.ServerConfig
	ConnectionConfig = models.ConnectionConfig
	PoolConfig       = models.PoolConfig
	SSLConfig        = models.SSLConfig
	WritePermissions = models.WritePermissions
	TablePermission  = models.TablePermission
	AuditConfig      = models.AuditConfig
	RateLimitConfig  = models.RateLimitConfig
	TimeoutConfig    = models.TimeoutConfig
	TableResult      = models.TableResult
	TableSchema      = models.TableSchema
	GatewayError     = models.GatewayError
)
