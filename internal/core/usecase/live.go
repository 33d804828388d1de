package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/pdmworks/cadbridge/internal/core/domain"
	"github.com/pdmworks/cadbridge/internal/core/ports"
)

// LiveAutomationUseCase fronts the serialized live session. The protective
// machinery lives below the port; this layer only validates input.
type LiveAutomationUseCase struct {
	session ports.LiveSession
}

func NewLiveAutomationUseCase(session ports.LiveSession) *LiveAutomationUseCase {
	return &LiveAutomationUseCase{session: session}
}

func (uc *LiveAutomationUseCase) Invoke(ctx context.Context, operation string, op func(context.Context) error) error {
	if strings.TrimSpace(operation) == "" {
		return domain.WrapError(domain.ErrInvalidInput, "live invoke", fmt.Errorf("operation name is required"))
	}
	return uc.session.Invoke(ctx, operation, op)
}

func (uc *LiveAutomationUseCase) Health(ctx context.Context) domain.HealthStatus {
	return uc.session.Health(ctx)
}
