package auth

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/nerrad567/conveyor-core/internal/ledger"
)

// SeedOperator creates a first operator with a random PIN when none exist,
// so a fresh station can be signed into. The PIN is logged once and
// returned; an empty string means seeding was skipped.
func SeedOperator(ctx context.Context, svc *Service, username string, logger *slog.Logger) (string, error) {
	count, err := ledger.NewStore(svc.db).CountOperators(ctx)
	if err != nil {
		return "", fmt.Errorf("checking operator count: %w", err)
	}
	if count > 0 {
		logger.Debug("operators exist, skipping seed")
		return "", nil
	}

	n, err := rand.Int(rand.Reader, big.NewInt(10000)) //nolint:mnd // four digits
	if err != nil {
		return "", fmt.Errorf("generating seed PIN: %w", err)
	}
	pin := fmt.Sprintf("%04d", n.Int64())

	op, err := svc.CreateOperator(ctx, username, pin)
	if err != nil {
		return "", fmt.Errorf("creating seed operator: %w", err)
	}

	logger.Warn("seed operator created",
		"username", op.Username,
		"pin", pin,
		"action_required", "create real operators and note this PIN",
	)
	return pin, nil
}
