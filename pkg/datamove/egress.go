package datamove

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/batchshipyard/engine/pkg/capability"
	"github.com/batchshipyard/engine/pkg/log"
	"github.com/batchshipyard/engine/pkg/types"
)

// RunEgress uploads every output-data unit after a task completes
// successfully, retrying transient failures until the task's retention
// window expires (§4.H "uploads are retried until the task's retention
// window expires"). Overlap with ingress on the same path is the caller's
// responsibility; no ordering is enforced here.
func RunEgress(ctx context.Context, object capability.ObjectStore, retentionExpiry time.Time, units []types.OutputData, read func(*types.OutputData) ([]byte, error)) error {
	logger := log.WithComponent("datamove")

	for i := range units {
		u := &units[i]
		data, err := read(u)
		if err != nil {
			if u.FireAndForget {
				logger.Warn().Str("source", u.SourcePath).Err(err).Msg("fire-and-forget egress read failed, skipping")
				continue
			}
			return fmt.Errorf("reading egress source %s: %w", u.SourcePath, err)
		}

		untilExpiry := capability.RetryPolicy{
			MaxAttempts: math.MaxInt32,
			BaseDelay:   capability.DefaultRetryPolicy.BaseDelay,
			MaxDelay:    capability.DefaultRetryPolicy.MaxDelay,
		}
		err = untilExpiry.Do(ctx, func() error {
			if time.Now().After(retentionExpiry) {
				return capability.NewError(capability.KindPermanentOther, "RunEgress", fmt.Errorf("retention window expired before egress of %s completed", u.DestinationPath))
			}
			deadline := retentionExpiry
			if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
				deadline = d
			}
			return object.Put(ctx, deadline, u.DestinationPath, data)
		})
		if err != nil {
			if u.FireAndForget {
				logger.Warn().Str("destination", u.DestinationPath).Err(err).Msg("fire-and-forget egress upload failed, skipping")
				continue
			}
			return fmt.Errorf("egress to %s: %w", u.DestinationPath, err)
		}
	}
	return nil
}
