// Package neo4jserver is the Neo4j backend of neomodel. It speaks Cypher over
// Bolt through the official Neo4j Go driver.
package neo4jserver

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/saulfrancisco-ruizacevedo/go-neomodel"
)

// Runner defines the interface for a generic query executor.
// It abstracts the execution of a Cypher query, allowing for different implementations
// or mocking in tests.
type Runner interface {
	// Run executes a given Cypher query with parameters and returns a fully-buffered result.
	Run(ctx context.Context, query string, params map[string]any) (*neo4j.EagerResult, error)
}

// Executor is a concrete implementation of the Runner interface that uses the
// official Neo4j Go driver. It manages the driver instance and the target database name.
type Executor struct {
	Driver  neo4j.DriverWithContext
	DBName  string
	timeout time.Duration
}

// NewExecutor creates and initializes a new Executor from the connection
// settings of cfg: URI, Username, Password, Database and Timeout.
//
// Returns:
//
//	A pointer to the newly created Executor or an error if the driver creation fails.
func NewExecutor(cfg *neomodel.Config) (*Executor, error) {
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("could not create Neo4j driver: %w", err)
	}
	return &Executor{Driver: driver, DBName: cfg.Database, timeout: cfg.Timeout}, nil
}

// Verify checks the connectivity to the Neo4j database.
func (e *Executor) Verify(ctx context.Context) error {
	return e.Driver.VerifyConnectivity(ctx)
}

// Close releases the driver and its connections.
func (e *Executor) Close(ctx context.Context) error {
	return e.Driver.Close(ctx)
}

// Run executes a Cypher query using ExecuteQuery, which handles session and
// transaction management automatically. It is suitable for both read and
// write operations. A configured timeout bounds each call.
//
// Returns:
//
//	An EagerResult containing all buffered records from the query, or an error if
//	the execution fails.
func (e *Executor) Run(ctx context.Context, query string, params map[string]any) (*neo4j.EagerResult, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	result, err := neo4j.ExecuteQuery(
		ctx,
		e.Driver,
		query,
		params,
		neo4j.EagerResultTransformer, // Buffers all results in memory before returning.
		neo4j.ExecuteQueryWithDatabase(e.DBName),
	)
	if err != nil {
		return nil, fmt.Errorf("error executing neo4j query: %w", err)
	}
	return result, nil
}
