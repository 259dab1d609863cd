package tracker

import (
	"context"
	"fmt"
	"strings"

	"github.com/tbxark/remi/store"
	"github.com/tbxark/remi/types"
)

// Service loads, advances and saves sessions. Messages from the same user are
// handled one at a time.
type Service struct {
	sessions *store.Guard[types.Session]
	tracker  *Tracker
}

func NewService(sessions store.Store[types.Session], tracker *Tracker) *Service {
	return &Service{sessions: store.NewGuard(sessions), tracker: tracker}
}

func (s *Service) Handle(ctx context.Context, userID, text string) (*types.Outcome, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	var out *types.Outcome
	_, err := s.sessions.Update(ctx, userID, func() types.Session { return types.NewSession(userID) }, func(sess *types.Session) error {
		o, err := s.tracker.Advance(ctx, sess, text)
		if err != nil {
			return err
		}
		out = o
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("handle message from %s: %w", userID, err)
	}
	return out, nil
}

// Session returns the stored session for userID, or a fresh one.
func (s *Service) Session(ctx context.Context, userID string) (types.Session, error) {
	return s.sessions.Load(ctx, userID, func() types.Session { return types.NewSession(userID) })
}
