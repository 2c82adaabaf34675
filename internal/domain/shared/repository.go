package shared

import "context"

// TxManager runs a function inside one store transaction. The transaction
// travels on the context passed to fn; repositories that receive that context
// join it. Returning an error from fn rolls everything back.
type TxManager interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}
