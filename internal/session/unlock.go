package session

import (
	"context"
	"errors"

	apperrors "keepsake/internal/shared/errors"
	"keepsake/internal/shared/logger"
)

// UnlockResult is the answer to one gate submission. Ticket is set while steps remain,
// Token once the gate is unlocked.
type UnlockResult struct {
	Attempt
	Ticket string `json:"ticket,omitempty"`
	Token  string `json:"token,omitempty"`
}

// Unlocker runs the gate statelessly: the visitor's step travels in a signed ticket.
type Unlocker struct {
	gate   *Gate
	tokens *TokenService
	log    logger.Logger
}

// NewUnlocker creates an Unlocker.
func NewUnlocker(gate *Gate, tokens *TokenService, log logger.Logger) *Unlocker {
	if log == nil {
		log = logger.Nop()
	}
	return &Unlocker{gate: gate, tokens: tokens, log: log.WithComponent("gate")}
}

// Submit checks code at the step recorded in ticket (the first step when ticket is empty).
func (u *Unlocker) Submit(ctx context.Context, ticket, code string) (*UnlockResult, error) {
	attempt := u.gate.Start()
	if ticket != "" {
		claims, err := u.tokens.ValidateTicket(ctx, ticket)
		if err != nil {
			return nil, apperrors.NewAuthenticationError("gate ticket rejected").WithCause(err)
		}
		if attempt, err = u.gate.Resume(claims.Step); err != nil {
			return nil, apperrors.NewValidationError(err.Error())
		}
	}

	next, err := u.gate.Submit(attempt, code)
	if err != nil {
		if errors.Is(err, ErrWrongCode) {
			u.log.Infof("Wrong code at gate step %d", attempt.Step+1)
			return nil, apperrors.NewAuthenticationError(err.Error()).
				WithCause(err).
				WithDetail("step", attempt.Step).
				WithDetail("total", attempt.Total)
		}
		return nil, apperrors.NewValidationError(err.Error())
	}

	res := &UnlockResult{Attempt: next}
	if next.Unlocked {
		if res.Token, err = u.tokens.IssueAdmin(ctx); err != nil {
			return nil, apperrors.NewInternalError("failed to issue admin token").WithCause(err)
		}
		u.log.Info("Gate unlocked")
		return res, nil
	}
	if res.Ticket, err = u.tokens.IssueTicket(ctx, next.Step); err != nil {
		return nil, apperrors.NewInternalError("failed to issue gate ticket").WithCause(err)
	}
	return res, nil
}

// Total returns the number of gate steps.
func (u *Unlocker) Total() int {
	return u.gate.Total()
}
