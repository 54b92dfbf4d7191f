package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/guillermoBallester/auditspool/internal/core/domain"
	"github.com/guillermoBallester/auditspool/internal/core/port"
)

// AuditStatus describes where audit lines are going right now.
type AuditStatus struct {
	domain.RotationPlan
	Enabled         bool   `json:"enabled"`
	Directory       string `json:"directory"`
	RotationPending *bool  `json:"rotation_pending,omitempty"`
}

// AdminService backs the operator commands: forcing a rotation and
// reporting the current target file.
type AdminService struct {
	settings port.SettingsProvider
	signal   port.RotationSignal
	logger   *slog.Logger
	now      func() time.Time
}

func NewAdminService(settings port.SettingsProvider, signal port.RotationSignal, logger *slog.Logger) *AdminService {
	return &AdminService{
		settings: settings,
		signal:   signal,
		logger:   logger,
		now:      time.Now,
	}
}

// RequestRotation asks every writer to close its file and reopen on its next
// event.
func (a *AdminService) RequestRotation(ctx context.Context) error {
	if err := a.signal.RequestForceRotation(); err != nil {
		return fmt.Errorf("requesting rotation: %w", err)
	}
	a.logger.InfoContext(ctx, "audit log rotation requested")
	return nil
}

// Status reports the file a writer would use now and whether a forced
// rotation is still pending.
func (a *AdminService) Status(_ context.Context) (*AuditStatus, error) {
	s := a.settings.AuditSettings()
	st := &AuditStatus{
		Enabled:   s.Enabled(),
		Directory: s.Directory,
	}

	if st.Enabled {
		plan, err := domain.PlanRotation(a.now(), s)
		if err != nil {
			return nil, err
		}
		st.RotationPlan = plan
	}

	if insp, ok := a.signal.(port.RotationInspector); ok {
		pending, err := insp.Pending()
		if err != nil {
			return nil, fmt.Errorf("reading rotation signal: %w", err)
		}
		st.RotationPending = &pending
	}
	return st, nil
}
