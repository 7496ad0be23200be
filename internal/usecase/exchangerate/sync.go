package exchangerate

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/simaogato/networth-backend/internal/domain"
)

// SyncReport counts the outcome of a SyncRates run
type SyncReport struct {
	Resolved int
	Degraded int
	Failed   int
}

// SyncRates resolves every ordered pair of currencies for each date so the
// cache is warm before valuations need it. Per-pair failures are counted, not returned.
func (r *Resolver) SyncRates(ctx context.Context, dates []time.Time, currencies []domain.Currency) SyncReport {
	var report SyncReport
	for _, date := range dates {
		for _, from := range currencies {
			for _, to := range currencies {
				if from == to {
					continue
				}
				if ctx.Err() != nil {
					report.Failed++
					continue
				}

				q, err := r.Resolve(ctx, date, from, to)
				switch {
				case err != nil:
					report.Failed++
					r.logger.Error("failed to sync exchange rate",
						zap.String("from", string(from)),
						zap.String("to", string(to)),
						zap.String("date", domain.FormatDay(date)),
						zap.Error(err))
				case q.Degraded():
					report.Degraded++
				default:
					report.Resolved++
				}
			}
		}
	}

	r.logger.Info("exchange rate sync finished",
		zap.Int("resolved", report.Resolved),
		zap.Int("degraded", report.Degraded),
		zap.Int("failed", report.Failed))
	return report
}
