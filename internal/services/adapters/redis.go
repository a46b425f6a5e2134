package adapters

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/adaptive-sql/querygate/internal/models"
	"github.com/adaptive-sql/querygate/internal/services/credentials"

	"github.com/redis/go-redis/v9"
)

// readCommands is the whitelist of Redis commands the gateway will forward.
// Everything else is rejected before it reaches the server.
var readCommands = map[string]bool{
	"GET": true, "MGET": true, "STRLEN": true,
	"HGET": true, "HGETALL": true, "HKEYS": true, "HLEN": true, "HMGET": true,
	"LRANGE": true, "LLEN": true, "LINDEX": true,
	"SMEMBERS": true, "SCARD": true, "SISMEMBER": true,
	"ZRANGE": true, "ZCARD": true, "ZSCORE": true, "ZRANGEBYSCORE": true,
	"SCAN": true, "TTL": true, "PTTL": true, "TYPE": true, "EXISTS": true,
	"KEYS": true, "RANDOMKEY": true, "DBSIZE": true,
}

const scanSampleLimit = 1000

// RedisAdapter maps the tabular gateway surface onto a key-value store:
// "tables" are key prefixes discovered by SCAN sampling, and run-query takes
// a whitelisted command line instead of SQL.
type RedisAdapter struct {
	cfg    *models.ConnectionConfig
	creds  credentials.Bundle
	client *redis.Client
}

func newRedis(cfg *models.ConnectionConfig, creds credentials.Bundle) *RedisAdapter {
	return &RedisAdapter{cfg: cfg, creds: creds}
}

func (a *RedisAdapter) Type() models.DatabaseType { return models.Redis }

func (a *RedisAdapter) Connect(ctx context.Context) error {
	if a.client != nil {
		return nil
	}

	a.client = redis.NewClient(&redis.Options{
		Addr:        fmt.Sprintf("%s:%d", a.cfg.Host, a.cfg.Port),
		Username:    a.cfg.Username,
		Password:    a.creds.Password.Reveal(),
		DialTimeout: a.cfg.ConnectTimeout,
		ReadTimeout: a.cfg.QueryTimeout,
		PoolSize:    a.cfg.Pool.MaxSize,
	})
	return a.Ping(ctx)
}

func (a *RedisAdapter) Ping(ctx context.Context) error {
	if a.client == nil {
		return models.NewConnectivityError("not connected", nil)
	}
	if err := a.client.Ping(ctx).Err(); err != nil {
		return classifyDialError(a.cfg.Name, err)
	}
	return nil
}

func (a *RedisAdapter) Close() error {
	if a.client == nil {
		return nil
	}
	err := a.client.Close()
	a.client = nil
	return err
}

// ListTables samples the keyspace and reports distinct key prefixes, where a
// prefix is everything before the first ":" separator.
func (a *RedisAdapter) ListTables(ctx context.Context) ([]string, error) {
	keys, err := a.sampleKeys(ctx, "*")
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var prefixes []string
	for _, key := range keys {
		prefix := key
		if idx := strings.Index(key, ":"); idx > 0 {
			prefix = key[:idx]
		}
		if !seen[prefix] {
			seen[prefix] = true
			prefixes = append(prefixes, prefix)
		}
	}
	sort.Strings(prefixes)
	return prefixes, nil
}

func (a *RedisAdapter) GetSchema(ctx context.Context, table string) (*models.TableSchema, error) {
	keys, err := a.sampleKeys(ctx, table+":*")
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		keys, err = a.sampleKeys(ctx, table)
		if err != nil {
			return nil, err
		}
	}
	if len(keys) == 0 {
		return nil, models.NewQueryExecutionError(fmt.Sprintf("no keys found for prefix %q", table), nil)
	}

	types := make(map[string]bool)
	for i, key := range keys {
		if i >= 20 {
			break
		}
		t, err := a.client.Type(ctx, key).Result()
		if err != nil {
			return nil, classifyQueryError(ctx, err)
		}
		types[t] = true
	}

	typeNames := make([]string, 0, len(types))
	for t := range types {
		typeNames = append(typeNames, t)
	}
	sort.Strings(typeNames)

	return &models.TableSchema{
		Table: table,
		Columns: []models.ColumnInfo{
			{Name: "key", Type: "string"},
			{Name: "value", Type: strings.Join(typeNames, "|")},
		},
	}, nil
}

func (a *RedisAdapter) GetDDL(ctx context.Context, table string) (string, error) {
	return "", models.NewRejectedOperationError("get-ddl is not supported for redis connections")
}

func (a *RedisAdapter) ListIndexes(ctx context.Context, table string) ([]models.IndexInfo, error) {
	return nil, nil
}

func (a *RedisAdapter) TableStats(ctx context.Context, table string) (*models.TableStats, error) {
	keys, err := a.sampleKeys(ctx, table+":*")
	if err != nil {
		return nil, err
	}
	return &models.TableStats{
		Table:       table,
		RowCount:    int64(len(keys)),
		ColumnCount: 2,
	}, nil
}

func (a *RedisAdapter) TableConstraints(ctx context.Context, table string) ([]models.ConstraintInfo, error) {
	return nil, nil
}

// ValidateReadCommand checks a Redis command line against the read whitelist
// without touching any server. The gateway runs this in its validation step
// so a disallowed command is rejected before a connection is acquired.
func ValidateReadCommand(command string) error {
	_, err := parseReadCommand(command)
	return err
}

// parseReadCommand tokenizes a command line and enforces the whitelist.
func parseReadCommand(command string) ([]string, error) {
	args, err := splitCommand(command)
	if err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return nil, models.NewRejectedOperationError("empty command")
	}

	name := strings.ToUpper(args[0])
	if !readCommands[name] {
		return nil, models.NewRejectedOperationError(
			fmt.Sprintf("command %s is not in the read whitelist", name))
	}
	return args, nil
}

// Query executes a whitelisted command line. The statement is split on
// whitespace with single or double quoted arguments kept whole.
func (a *RedisAdapter) Query(ctx context.Context, command string, maxRows int) (*models.TableResult, error) {
	args, err := parseReadCommand(command)
	if err != nil {
		return nil, err
	}

	doArgs := make([]any, len(args))
	for i, arg := range args {
		doArgs[i] = arg
	}

	val, err := a.client.Do(ctx, doArgs...).Result()
	if err != nil {
		if err == redis.Nil {
			return &models.TableResult{Columns: []string{"value"}, Rows: [][]any{}}, nil
		}
		return nil, classifyQueryError(ctx, err)
	}

	return renderRedisValue(val, maxRows), nil
}

func (a *RedisAdapter) Exec(ctx context.Context, command string) (int64, error) {
	return 0, models.NewRejectedOperationError("write commands are not supported for redis connections")
}

func (a *RedisAdapter) Explain(ctx context.Context, command string) (string, error) {
	return "", models.NewRejectedOperationError("explain-query is not supported for redis connections")
}

func (a *RedisAdapter) sampleKeys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	var cursor uint64
	for {
		batch, next, err := a.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, classifyQueryError(ctx, err)
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 || len(keys) >= scanSampleLimit {
			break
		}
	}
	return keys, nil
}

// renderRedisValue flattens a command reply into the uniform tabular result.
func renderRedisValue(val any, maxRows int) *models.TableResult {
	result := &models.TableResult{Columns: []string{"value"}, Rows: [][]any{}}

	appendRow := func(row []any) bool {
		if maxRows > 0 && result.RowCount >= maxRows {
			result.Truncated = true
			return false
		}
		result.Rows = append(result.Rows, row)
		result.RowCount++
		return true
	}

	switch v := val.(type) {
	case []any:
		for _, item := range v {
			if !appendRow([]any{item}) {
				break
			}
		}
	case map[any]any:
		result.Columns = []string{"field", "value"}
		for k, item := range v {
			if !appendRow([]any{k, item}) {
				break
			}
		}
	case map[string]string:
		result.Columns = []string{"field", "value"}
		for k, item := range v {
			if !appendRow([]any{k, item}) {
				break
			}
		}
	default:
		appendRow([]any{v})
	}

	return result
}

// splitCommand tokenizes a command line, honoring quoted arguments.
func splitCommand(command string) ([]string, error) {
	var args []string
	var current strings.Builder
	var quote byte
	inArg := false

	for i := 0; i < len(command); i++ {
		c := command[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			} else {
				current.WriteByte(c)
			}
		case c == '\'' || c == '"':
			quote = c
			inArg = true
		case c == ' ' || c == '\t' || c == '\n':
			if inArg {
				args = append(args, current.String())
				current.Reset()
				inArg = false
			}
		default:
			current.WriteByte(c)
			inArg = true
		}
	}
	if quote != 0 {
		return nil, models.NewRejectedOperationError("unterminated quote in command")
	}
	if inArg {
		args = append(args, current.String())
	}
	return args, nil
}
