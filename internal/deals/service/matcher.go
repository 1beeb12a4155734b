package service

import (
	"context"
	"time"

	"handlit_backend/internal/deals/repository"

	"github.com/google/uuid"
)

// dealFinder is the read side the matcher needs.
type dealFinder interface {
	GetDeal(ctx context.Context, id uuid.UUID) (repository.Deal, error)
	FindOpenDeals(ctx context.Context, accountID uuid.UUID, contactID *uuid.UUID, createdAfter *time.Time) ([]repository.Deal, error)
}

// MatchInput carries the explicit inputs of one match.
type MatchInput struct {
	AccountID    uuid.UUID
	ContactID    *uuid.UUID
	LinkedDealID *uuid.UUID
	Now          time.Time
}

// Matcher resolves the open deal a new event should attach to.
type Matcher struct {
	windowDays int
}

// NewMatcher creates a matcher with the given dedupe window.
func NewMatcher(windowDays int) *Matcher {
	return &Matcher{windowDays: windowDays}
}

// FindMatchingActiveDeal returns the target deal or nil when the caller has
// to create one. Resolution order:
//  1. the still-open deal already linked to the quote
//  2. the open deal of the account with the same primary contact
//  3. an open deal of the account created inside the dedupe window
//
// Ties are broken by most recent update, then highest value.
func (m *Matcher) FindMatchingActiveDeal(ctx context.Context, store dealFinder, in MatchInput) (*repository.Deal, error) {
	if in.LinkedDealID != nil {
		linked, err := store.GetDeal(ctx, *in.LinkedDealID)
		if err != nil {
			return nil, err
		}
		if !linked.IsClosed {
			return &linked, nil
		}
	}

	if in.ContactID != nil {
		candidates, err := store.FindOpenDeals(ctx, in.AccountID, in.ContactID, nil)
		if err != nil {
			return nil, err
		}
		if best := pickMatch(candidates); best != nil {
			return best, nil
		}
	}

	since := in.Now.AddDate(0, 0, -m.windowDays)
	candidates, err := store.FindOpenDeals(ctx, in.AccountID, nil, &since)
	if err != nil {
		return nil, err
	}
	return pickMatch(candidates), nil
}

// pickMatch returns the preferred candidate, or nil for an empty list.
func pickMatch(candidates []repository.Deal) *repository.Deal {
	var best *repository.Deal
	for i := range candidates {
		if best == nil || betterMatch(candidates[i], *best) {
			best = &candidates[i]
		}
	}
	return best
}

// betterMatch reports whether a outranks b: later update first, then the
// higher value with an unknown value ranking lowest, then id.
func betterMatch(a, b repository.Deal) bool {
	if !a.UpdatedAt.Equal(b.UpdatedAt) {
		return a.UpdatedAt.After(b.UpdatedAt)
	}
	switch {
	case a.DealValue != nil && b.DealValue == nil:
		return true
	case a.DealValue == nil && b.DealValue != nil:
		return false
	case a.DealValue != nil && *a.DealValue != *b.DealValue:
		return *a.DealValue > *b.DealValue
	}
	return a.ID.String() < b.ID.String()
}
