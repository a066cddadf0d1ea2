package queue

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/seatwise/seatwise/internal/domain"
)

// AdmissionClaims is the payload of an admission pass: a short-lived proof
// that the holder is inside a valid processing window for the event.
type AdmissionClaims struct {
	EventID  string `json:"event_id"`
	Position int64  `json:"position"`
	jwt.RegisteredClaims
}

// IssueAdmissionPass signs a pass for a processing entry. The pass expires
// with the processing window, capped at the configured pass TTL, so it cannot
// outlive the admission it proves.
func (c *Controller) IssueAdmissionPass(entry *domain.QueueEntry) (string, error) {
	if entry.ExpiresAt == nil {
		return "", domain.ErrNotAdmitted
	}

	now := c.clock.Now()
	expiresAt := *entry.ExpiresAt
	if c.cfg.AdmissionPassTTL > 0 {
		if capped := now.Add(c.cfg.AdmissionPassTTL); capped.Before(expiresAt) {
			expiresAt = capped
		}
	}

	claims := AdmissionClaims{
		EventID:  entry.EventID,
		Position: entry.Position,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   entry.UserID,
			Issuer:    c.cfg.JWTIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(c.cfg.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign admission pass: %w", err)
	}
	return token, nil
}

// VerifyAdmissionPass validates a pass and returns its claims. Expired
// passes map to domain.ErrAdmissionExpired, everything else invalid to
// domain.ErrNotAdmitted.
func (c *Controller) VerifyAdmissionPass(token, eventID, userID string) (*AdmissionClaims, error) {
	var claims AdmissionClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(c.cfg.JWTSecret), nil
	},
		jwt.WithIssuer(c.cfg.JWTIssuer),
		jwt.WithTimeFunc(c.clock.Now),
	)
	if errors.Is(err, jwt.ErrTokenExpired) {
		return nil, domain.ErrAdmissionExpired
	}
	if err != nil {
		return nil, domain.ErrNotAdmitted
	}
	if claims.EventID != eventID || claims.Subject != userID {
		return nil, domain.ErrNotAdmitted
	}
	return &claims, nil
}
