package shared

import "context"

// Transactor runs fn as one atomic unit of work. The context passed to fn
// carries the transaction; repositories called with it join the unit of work.
// Calling RunInTx with a context that already carries a transaction opens a
// nested savepoint that rolls back on its own when fn fails.
type Transactor interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}
