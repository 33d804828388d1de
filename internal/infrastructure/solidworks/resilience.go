package solidworks

import (
	"errors"

	"github.com/pdmworks/cadbridge/internal/core/domain"
	"github.com/pdmworks/cadbridge/internal/infrastructure/resilience"
)

// classifyLiveError maps an automation failure onto retry guidance. Only
// the transient kinds are retried; everything else fails fast and counts
// against the circuit.
func classifyLiveError(err error) resilience.ErrorClassification {
	kind := domain.KindOf(err)
	return resilience.ErrorClassification{
		Retryable:     domain.IsRetryable(kind),
		RecordFailure: kind != domain.KindSuccess && kind != domain.KindResourceNotOpen,
	}
}

// translateGateTimeout converts a serializer gate timeout into a classified
// fault so callers observe a timeout outcome rather than an infrastructure
// sentinel.
func translateGateTimeout(operation string, err error) error {
	if err == nil || !errors.Is(err, resilience.ErrGateTimeout) {
		return err
	}
	return domain.FaultFromError(domain.KindTimeout, operation+" timed out waiting for the live call gate", err)
}

func healthFromError(err error) domain.HealthStatus {
	if err == nil {
		return domain.HealthHealthy
	}
	switch domain.KindOf(err) {
	case domain.KindServerBusy:
		return domain.HealthBusy
	case domain.KindServerNotRunning:
		return domain.HealthNotRunning
	default:
		return domain.HealthUnresponsive
	}
}
