// Package claim implements the attribution engine that assigns diarized
// speakers to identities after processing.
//
// Claims are permanent and first-claim-wins: the underlying store only
// updates a speaker whose claim fields are still empty, so concurrent claims
// on the same speaker resolve to exactly one winner. Self and user claims
// copy the speaker's word counts onto the resolved user; guest claims never
// produce attributed counts.
package claim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/wagmirep/lahstats/internal/session"
	"github.com/wagmirep/lahstats/internal/store"
)

// Validation errors returned by Claim. These are returned synchronously and
// never mutate state.
var (
	ErrSpeakerNotFound  = errors.New("claim: speaker not found")
	ErrAlreadyClaimed   = errors.New("claim: speaker already claimed")
	ErrNotGroupMember   = errors.New("claim: target user is not a group member")
	ErrInvalidGuestName = errors.New("claim: guest name must not be empty")
	ErrInvalidClaimType = errors.New("claim: unknown claim type")
	ErrSessionNotReady  = errors.New("claim: session is not ready for claiming")
)

// Store is the persistence surface the engine needs. *store.Store satisfies
// this interface.
type Store interface {
	GetSession(ctx context.Context, id string) (*store.Session, error)
	GetSpeaker(ctx context.Context, id string) (*store.Speaker, error)
	ListSpeakers(ctx context.Context, sessionID string) ([]*store.Speaker, error)
	ClaimSpeaker(ctx context.Context, speakerID string, claim store.ClaimType, claimedBy, guestName string) (bool, error)
	UnclaimedCount(ctx context.Context, sessionID string) (int, error)
	IsGroupMember(ctx context.Context, groupID, userID string) (bool, error)
	UpdateStatus(ctx context.Context, id string, from, to session.Status) error
	AttributedCounts(ctx context.Context, sessionID string) (map[string]map[string]int, error)
}

// Engine processes claim requests and assembles session results.
type Engine struct {
	store Store
}

// New creates an Engine.
func New(st Store) *Engine {
	return &Engine{store: st}
}

// Request is one claim call.
type Request struct {
	// SessionID is the session the speaker belongs to.
	SessionID string
	// SpeakerID is the diarized speaker being claimed.
	SpeakerID string
	// CallerID is the authenticated user making the claim.
	CallerID string
	// Type is self, user or guest.
	Type store.ClaimType
	// TargetUserID is the claimed user for Type == user.
	TargetUserID string
	// GuestName is the display name for Type == guest.
	GuestName string
}

// Claim attributes one speaker. On success it reports whether the session
// advanced to completed because no unclaimed speaker remains.
func (e *Engine) Claim(ctx context.Context, req Request) (completed bool, err error) {
	sess, err := e.store.GetSession(ctx, req.SessionID)
	if err != nil {
		return false, err
	}
	if sess.Status != session.StatusReadyForClaiming {
		return false, fmt.Errorf("%w: session is %s", ErrSessionNotReady, sess.Status)
	}

	sp, err := e.store.GetSpeaker(ctx, req.SpeakerID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, fmt.Errorf("%w: %s", ErrSpeakerNotFound, req.SpeakerID)
		}
		return false, err
	}
	if sp.SessionID != req.SessionID {
		return false, fmt.Errorf("%w: %s", ErrSpeakerNotFound, req.SpeakerID)
	}
	if sp.Claimed() {
		return false, fmt.Errorf("%w: %s", ErrAlreadyClaimed, req.SpeakerID)
	}

	var claimedBy, guestName string
	switch req.Type {
	case store.ClaimSelf:
		claimedBy = req.CallerID
	case store.ClaimUser:
		member, err := e.store.IsGroupMember(ctx, sess.GroupID, req.TargetUserID)
		if err != nil {
			return false, err
		}
		if !member {
			return false, fmt.Errorf("%w: %s", ErrNotGroupMember, req.TargetUserID)
		}
		claimedBy = req.TargetUserID
	case store.ClaimGuest:
		guestName = strings.TrimSpace(req.GuestName)
		if guestName == "" {
			return false, ErrInvalidGuestName
		}
	default:
		return false, fmt.Errorf("%w: %q", ErrInvalidClaimType, req.Type)
	}

	// The store claims the speaker and, for self/user, copies its word counts
	// into attributed_word_counts in the same transaction. Guests never get
	// attributed rows.
	won, err := e.store.ClaimSpeaker(ctx, req.SpeakerID, req.Type, claimedBy, guestName)
	if err != nil {
		return false, err
	}
	if !won {
		return false, fmt.Errorf("%w: %s", ErrAlreadyClaimed, req.SpeakerID)
	}

	slog.Info("speaker claimed",
		"session", req.SessionID, "speaker", sp.Label, "type", string(req.Type))

	remaining, err := e.store.UnclaimedCount(ctx, req.SessionID)
	if err != nil {
		return false, err
	}
	if remaining > 0 {
		return false, nil
	}

	err = e.store.UpdateStatus(ctx, req.SessionID,
		session.StatusReadyForClaiming, session.StatusCompleted)
	if err != nil {
		// A concurrent final claim already completed the session.
		if errors.Is(err, store.ErrInvalidTransition) {
			return true, nil
		}
		return false, err
	}
	slog.Info("session completed", "session", req.SessionID)
	return true, nil
}

// GuestResult is the aggregated counts attributed to one guest.
type GuestResult struct {
	Name       string
	WordCounts map[string]int
}

// Results is the final word-count summary for a session.
type Results struct {
	// ByUser maps user IDs to their attributed word counts.
	ByUser map[string]map[string]int
	// Guests lists per-guest counts, aggregated by display name.
	Guests []GuestResult
	// AllClaimed reports whether every speaker has been attributed.
	AllClaimed bool
}

// Results assembles per-identity and per-guest word counts for a session.
func (e *Engine) Results(ctx context.Context, sessionID string) (*Results, error) {
	byUser, err := e.store.AttributedCounts(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	speakers, err := e.store.ListSpeakers(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	guestCounts := make(map[string]map[string]int)
	var guestOrder []string
	allClaimed := true
	for _, sp := range speakers {
		if !sp.Claimed() {
			allClaimed = false
			continue
		}
		if sp.ClaimType != store.ClaimGuest {
			continue
		}
		gc := guestCounts[sp.GuestName]
		if gc == nil {
			gc = make(map[string]int)
			guestCounts[sp.GuestName] = gc
			guestOrder = append(guestOrder, sp.GuestName)
		}
		for w, c := range sp.WordCounts {
			gc[w] += c
		}
	}

	guests := make([]GuestResult, 0, len(guestOrder))
	for _, name := range guestOrder {
		guests = append(guests, GuestResult{Name: name, WordCounts: guestCounts[name]})
	}
	return &Results{ByUser: byUser, Guests: guests, AllClaimed: allClaimed}, nil
}
