// Copyright (c) 2025-present deep.rent GmbH (https://deep.rent)
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package execution defines how database operations are executed: execution
// strategies (run once, or retry transient failures with exponential
// backoff) and transaction handlers.
//
// Both services are resolved per provider and server through a Key:
//
//	f, err := resolve.Get(r, execution.StrategyService, execution.Key{
//		ProviderInvariantName: "postgres",
//		ServerName:            "db.internal",
//	})
package execution

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/deep-rent/ormconf/resolve"
)

// Key selects the execution strategy or transaction handler for a provider
// and server.
type Key struct {
	ProviderInvariantName string
	ServerName            string
}

// String returns a readable representation of the key.
func (k Key) String() string {
	if k.ServerName == "" {
		return k.ProviderInvariantName
	}
	return k.ProviderInvariantName + "@" + k.ServerName
}

// Strategy executes an operation, possibly multiple times.
type Strategy interface {
	// RetriesOnFailure reports whether Execute may run the operation more
	// than once.
	RetriesOnFailure() bool
	// Execute runs op until it succeeds or the strategy gives up.
	Execute(ctx context.Context, op func(ctx context.Context) error) error
}

// StrategyFactory creates a fresh Strategy for each unit of work.
type StrategyFactory func() Strategy

// StrategyService is the tag of the StrategyFactory service.
var StrategyService = resolve.NewService[StrategyFactory]("execution strategy factory")

// ErrNilOperation is returned when Execute is called without an operation.
var ErrNilOperation = errors.New("operation must not be nil")

// Default is the Strategy that runs the operation exactly once.
type Default struct{}

// RetriesOnFailure implements Strategy.
func (Default) RetriesOnFailure() bool { return false }

// Execute implements Strategy.
func (Default) Execute(ctx context.Context, op func(ctx context.Context) error) error {
	if op == nil {
		return ErrNilOperation
	}
	return op(ctx)
}

var _ Strategy = Default{}

// NewDefault is the StrategyFactory of Default.
func NewDefault() Strategy { return Default{} }

// TransactionHandler runs units of work inside database transactions.
type TransactionHandler interface {
	InTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error
}

// TransactionHandlerFactory creates a TransactionHandler.
type TransactionHandlerFactory func() TransactionHandler

// TransactionHandlerService is the tag of the TransactionHandlerFactory
// service.
var TransactionHandlerService = resolve.NewService[TransactionHandlerFactory]("transaction handler factory")

// DefaultTransactionHandler commits if fn succeeds and rolls back otherwise.
type DefaultTransactionHandler struct {
	Options *sql.TxOptions
}

// InTx implements TransactionHandler.
func (h *DefaultTransactionHandler) InTx(
	ctx context.Context,
	db *sql.DB,
	fn func(tx *sql.Tx) error,
) error {
	tx, err := db.BeginTx(ctx, h.Options)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rerr := tx.Rollback(); rerr != nil {
			return errors.Join(err, fmt.Errorf("rollback: %w", rerr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// NewDefaultTransactionHandler is the TransactionHandlerFactory of
// DefaultTransactionHandler.
func NewDefaultTransactionHandler() TransactionHandler {
	return &DefaultTransactionHandler{}
}

// StrategyFor resolves the strategy registered for key and instantiates it.
// It falls back to Default if no factory is registered.
func StrategyFor(r resolve.Resolver, key Key) (Strategy, error) {
	f, err := resolve.Get(r, StrategyService, key)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return Default{}, nil
	}
	return f(), nil
}
