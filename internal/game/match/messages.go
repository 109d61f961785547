package match

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tilestrike/arena/internal/game/gameerr"
)

// maxMessageLength bounds chat message text.
const maxMessageLength = 500

// Message is a timestamped chat or system record scoped to one session.
type Message struct {
	ID         string    `json:"id"`
	GameCode   string    `json:"gameCode"`
	PlayerID   string    `json:"playerId,omitempty"`
	PlayerName string    `json:"playerName"`
	Text       string    `json:"text"`
	System     bool      `json:"system"`
	SentAt     time.Time `json:"sentAt"`
}

// NewMessage creates a chat message from a session member.
//
// Postcondition: Returns the message, or gameerr.ErrNotFound for a
// non-member, or gameerr.ErrValidation for empty or oversized text.
func (s *Session) NewMessage(playerID, text string) (Message, error) {
	s.mu.Lock()
	p, ok := s.byID[playerID]
	s.mu.Unlock()
	if !ok {
		return Message{}, fmt.Errorf("%w: player %s in session %s", gameerr.ErrNotFound, playerID, s.code)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return Message{}, fmt.Errorf("%w: empty message", gameerr.ErrValidation)
	}
	if len(text) > maxMessageLength {
		return Message{}, fmt.Errorf("%w: message exceeds %d characters", gameerr.ErrValidation, maxMessageLength)
	}

	return Message{
		ID:         uuid.NewString(),
		GameCode:   s.code,
		PlayerID:   p.ID,
		PlayerName: p.Name,
		Text:       text,
		SentAt:     time.Now(),
	}, nil
}

// NewSystemMessage creates a server-originated message for the session.
func (s *Session) NewSystemMessage(text string) Message {
	return Message{
		ID:       uuid.NewString(),
		GameCode: s.code,
		Text:     text,
		System:   true,
		SentAt:   time.Now(),
	}
}
