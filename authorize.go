package sessiongate

import (
	"context"

	"go.uber.org/zap"
)

// Authorize checks that deviceID owns the live session of userID and, if so,
// refreshes its activity. A failed refresh is logged and does not deny the
// request.
func (g *Gate) Authorize(ctx context.Context, userID, deviceID string) (Verdict, error) {
	if userID == "" {
		return VerdictNoSession, ErrUserIDRequired
	}

	active := g.CheckActiveSession(ctx, userID)
	if !active.Active {
		return VerdictNoSession, nil
	}
	if active.DeviceID != deviceID {
		g.log.Info("request from another device",
			zap.String("user_id", userID),
			zap.String("device_id", deviceID),
			zap.String("session_device_id", active.DeviceID),
		)
		return VerdictDeviceMismatch, nil
	}

	if err := g.UpdateActivity(ctx, userID); err != nil {
		g.log.Warn("failed to refresh session activity", zap.String("user_id", userID), zap.Error(err))
	}
	return VerdictAllowed, nil
}
