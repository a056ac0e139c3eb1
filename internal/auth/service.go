package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/nerrad567/conveyor-core/internal/infrastructure/database"
	"github.com/nerrad567/conveyor-core/internal/ledger"
)

// Logger is the logging interface used by this package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Service manages operators and their shifts.
type Service struct {
	db     *database.DB
	secret string
	ttl    time.Duration
	logger Logger
}

// NewService creates a Service. secret signs operator tokens.
func NewService(db *database.DB, secret string, ttl time.Duration, logger Logger) *Service {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Service{db: db, secret: secret, ttl: ttl, logger: logger}
}

// CreateOperator registers an operator. Usernames and PINs are both unique.
func (s *Service) CreateOperator(ctx context.Context, username, pin string) (*ledger.Operator, error) {
	username = strings.TrimSpace(username)
	if !IsValidUsername(username) {
		return nil, ErrInvalidUsername
	}
	if !IsValidPIN(pin) {
		return nil, ErrInvalidPIN
	}

	if _, err := s.match(ctx, pin); err == nil {
		return nil, ErrPINInUse
	} else if !errors.Is(err, ErrInvalidCredentials) && !errors.Is(err, ErrNoOperators) {
		return nil, err
	}

	hash, err := HashPIN(pin)
	if err != nil {
		return nil, err
	}
	op := ledger.Operator{ID: uuid.NewString(), Username: username, PINHash: hash}
	if err := ledger.NewStore(s.db).CreateOperator(ctx, op); err != nil {
		if errors.Is(err, ledger.ErrConflict) {
			return nil, ErrUsernameExists
		}
		return nil, err
	}

	s.logger.Info("operator created", "operator_id", op.ID, "username", username)
	created, err := ledger.NewStore(s.db).GetOperator(ctx, op.ID)
	if err != nil {
		return nil, err
	}
	return created, nil
}

// ListOperators returns every operator.
func (s *Service) ListOperators(ctx context.Context) ([]ledger.Operator, error) {
	return ledger.NewStore(s.db).ListOperators(ctx)
}

// Login finds the operator whose PIN matches, closes their open sessions
// and opens a new one.
func (s *Service) Login(ctx context.Context, pin string) (*Login, error) {
	if !IsValidPIN(pin) {
		return nil, ErrInvalidPIN
	}

	op, err := s.match(ctx, pin)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			s.logger.Warn("operator login failed")
		}
		return nil, err
	}

	var sess *ledger.Session
	err = s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		store := ledger.NewStore(tx)
		closed, err := store.CloseOpenSessions(ctx, op.ID)
		if err != nil {
			return err
		}
		if closed > 0 {
			s.logger.Info("closed stale sessions", "operator_id", op.ID, "count", closed)
		}
		sess, err = store.CreateSession(ctx, uuid.NewString(), op.ID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("opening session: %w", err)
	}

	token, expires, err := IssueToken(op.ID, op.Username, sess.ID, s.secret, s.ttl)
	if err != nil {
		return nil, err
	}

	s.logger.Info("operator logged in", "operator_id", op.ID, "session_id", sess.ID)
	return &Login{Token: token, ExpiresAt: expires, Operator: *op, Session: *sess}, nil
}

// Logout ends a session.
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if err := ledger.NewStore(s.db).EndSession(ctx, sessionID); err != nil {
		return err
	}
	s.logger.Info("operator logged out", "session_id", sessionID)
	return nil
}

// Authenticate parses a token and checks that its session is still open.
func (s *Service) Authenticate(ctx context.Context, token string) (*OperatorClaims, error) {
	claims, err := ParseToken(token, s.secret)
	if err != nil {
		return nil, err
	}
	sess, err := ledger.NewStore(s.db).GetSession(ctx, claims.SessionID)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown session", ErrTokenInvalid)
		}
		return nil, err
	}
	if !sess.Open() {
		return nil, ErrSessionClosed
	}
	return claims, nil
}

// match returns the operator whose PIN hash verifies against pin.
func (s *Service) match(ctx context.Context, pin string) (*ledger.Operator, error) {
	ops, err := ledger.NewStore(s.db).ListOperators(ctx)
	if err != nil {
		return nil, err
	}
	if len(ops) == 0 {
		return nil, ErrNoOperators
	}
	for i := range ops {
		ok, err := VerifyPIN(pin, ops[i].PINHash)
		if err != nil {
			s.logger.Warn("unreadable PIN hash", "operator_id", ops[i].ID, "error", err)
			continue
		}
		if ok {
			return &ops[i], nil
		}
	}
	return nil, ErrInvalidCredentials
}
