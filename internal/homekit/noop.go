package homekit

import (
	"context"

	"github.com/egregors/plantdash/internal/session"
)

type NoopHap struct{}

func (n NoopHap) SetMoisture(_ session.PlantID, _ int) {}

func (n NoopHap) ListenAndServe(ctx context.Context) error {
	<-ctx.Done()

	return nil
}
