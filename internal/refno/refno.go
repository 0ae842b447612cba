package refno

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"

	"github.com/noah-isme/bizledger/internal/store"
)

// ErrReferenceExhausted is returned when every generated candidate collided.
var ErrReferenceExhausted = errors.New("refno: no free reference number")

// Kind is the document type a number is issued for; its value is the prefix.
type Kind string

const (
	KindSale          Kind = "SL"
	KindInvoice       Kind = "INV"
	KindPurchaseOrder Kind = "PO"
)

// DefaultAttempts bounds Issue when no attempt budget is given.
const DefaultAttempts = 5

// Generator produces candidates shaped PREFIX-YYMMDD-SUFFIX where SUFFIX is an
// upper-case base36 snowflake id. Ids grow with time on a node, so numbers sort
// roughly by issue time within a business.
type Generator struct {
	node  *snowflake.Node
	clock func() time.Time
}

// NewGenerator returns a generator for the given node id (0-1023). Replicas of
// the service must use distinct node ids.
func NewGenerator(nodeID int64) (*Generator, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("refno: %w", err)
	}
	return &Generator{node: node, clock: time.Now}, nil
}

// Generate returns a fresh candidate. Uniqueness within a business is finally
// enforced by the store.
func (g *Generator) Generate(kind Kind) string {
	if kind == "" {
		kind = KindSale
	}
	date := g.clock().UTC().Format("060102")
	return fmt.Sprintf("%s-%s-%s", kind, date, strings.ToUpper(g.node.Generate().Base36()))
}

// Issue generates candidates and hands each to persist until one is accepted.
// persist reporting store.ErrReferenceConflict triggers another candidate; any
// other error is returned as is.
func (g *Generator) Issue(ctx context.Context, kind Kind, attempts int, persist func(context.Context, string) error) (string, error) {
	if attempts <= 0 {
		attempts = DefaultAttempts
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		candidate := g.Generate(kind)
		err := persist(ctx, candidate)
		if err == nil {
			return candidate, nil
		}
		if !errors.Is(err, store.ErrReferenceConflict) {
			return "", err
		}
		lastErr = err
	}
	return "", fmt.Errorf("%w after %d attempts: %w", ErrReferenceExhausted, attempts, lastErr)
}
