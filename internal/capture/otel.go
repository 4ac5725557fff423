package capture

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/bastionmc/castles/internal/capture"

func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}
