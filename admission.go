package sessiongate

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/guardianentry/sessiongate/store"
)

// maxAdmitAttempts bounds how often Admit retries a conditional write that
// lost to a session which then disappeared.
const maxAdmitAttempts = 3

// Admit decides whether req may log in and, if so, stores its session.
//
// A live session for the same user on another device rejects the login with
// OutcomeConflict; nothing is evicted. Otherwise the role policy runs: under
// PolicyExclusive every live session of the role owned by another user is
// invalidated, under PolicyCapped a new login is rejected with
// OutcomeRoleLimit once MaxActive sessions are live. The session is then
// written with a conditional put so a concurrent login from another device
// cannot be overwritten.
//
// Expected outcomes are reported on the Admission; only store failures are
// returned as errors.
func (g *Gate) Admit(ctx context.Context, req LoginRequest) (*Admission, error) {
	if req.UserID == "" {
		return nil, ErrUserIDRequired
	}
	if req.Device.ID == "" {
		return nil, ErrDeviceIDRequired
	}

	role := strings.ToLower(req.Role)
	log := g.log.With(
		zap.String("user_id", req.UserID),
		zap.String("device_id", req.Device.ID),
		zap.String("role", role),
	)

	existing, err := g.load(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("sessiongate: failed to check active session: %w", err)
	}
	if existing != nil && existing.DeviceID != req.Device.ID {
		log.Info("login rejected: session active on another device",
			zap.String("existing_device_id", existing.DeviceID),
			zap.Time("login_time", existing.LoginTime),
		)
		return &Admission{Outcome: OutcomeConflict, Existing: existing}, nil
	}

	adm := &Admission{}
	if policy := g.config.RolePolicy; policy.Governs(role) {
		live, err := g.liveByRole(ctx, role)
		if err != nil {
			return nil, fmt.Errorf("sessiongate: failed to check role sessions: %w", err)
		}

		switch policy.Mode {
		case PolicyExclusive:
			for _, s := range live {
				if s.UserID == req.UserID {
					continue
				}
				if err := g.InvalidateSession(ctx, s.UserID); err != nil {
					return nil, err
				}
				adm.Evicted = append(adm.Evicted, s.UserID)
			}
			if len(adm.Evicted) > 0 {
				log.Info("preempted role sessions", zap.Strings("evicted", adm.Evicted))
			}
		case PolicyCapped:
			adm.ActiveCount = len(live)
			if existing == nil && len(live) >= policy.MaxActive {
				log.Info("login rejected: role limit reached",
					zap.Int("active", len(live)),
					zap.Int("max_active", policy.MaxActive),
				)
				adm.Outcome = OutcomeRoleLimit
				return adm, nil
			}
		}
	}

	now := g.now()
	session := &store.Session{
		UserID:       req.UserID,
		Role:         role,
		DeviceID:     req.Device.ID,
		DeviceLabel:  req.Device.Label(),
		IP:           req.Device.IP,
		City:         req.Location.City,
		Country:      req.Location.Country,
		LoginTime:    now,
		LastActivity: now,
	}
	staleBefore := g.staleBefore(now)

	for attempt := 1; attempt <= maxAdmitAttempts; attempt++ {
		written, err := g.sessions.PutIfAdmissible(ctx, session, staleBefore)
		if err != nil {
			return nil, fmt.Errorf("sessiongate: failed to create session: %w", err)
		}
		if written {
			g.cache.put(session)
			log.Info("session created", zap.Int("attempt", attempt))
			adm.Outcome = OutcomeAdmitted
			adm.Session = session
			return adm, nil
		}

		// Lost to a concurrent writer; see who holds the record now.
		current, err := g.load(ctx, req.UserID)
		if err != nil {
			return nil, fmt.Errorf("sessiongate: failed to check active session: %w", err)
		}
		switch {
		case current == nil:
			continue
		case current.DeviceID == req.Device.ID:
			adm.Outcome = OutcomeAdmitted
			adm.Session = current
			return adm, nil
		default:
			log.Info("login rejected: concurrent login from another device",
				zap.String("existing_device_id", current.DeviceID),
			)
			return &Admission{Outcome: OutcomeConflict, Existing: current, Evicted: adm.Evicted}, nil
		}
	}

	return nil, ErrAdmissionContended
}
