package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/privacyops/dsar/internal/app"
	"github.com/privacyops/dsar/internal/config"
	"github.com/privacyops/dsar/internal/queue"
)

func newRequeueCommand(rt *session) *cobra.Command {
	return &cobra.Command{
		Use:   "requeue <request-id>",
		Short: "Queue the pending job of a stalled data request again",
		Long: `Publish again the job a data request is waiting for. Pending requests get
their preprocessing, approved ones their processing. Use it for requests that
were saved while the queue was unavailable.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := rt.format()
			if err != nil {
				return err
			}

			return rt.withApp(cmd, func(_ config.Config, a *app.App) error {
				pub, err := a.Publisher(cmd.Context())
				if err != nil {
					return fmt.Errorf("%w: %v", ErrConfig, err)
				}
				if _, ok := pub.(*queue.MemoryQueue); ok {
					return fmt.Errorf("%w: the memory queue is local to one process, set QUEUE_BACKEND to pubsub or kafka", ErrConfig)
				}

				job, err := a.DataRequests(pub).Requeue(cmd.Context(), args[0])
				if err != nil {
					return fmt.Errorf("%w: %v", ErrRuntime, err)
				}
				if format == formatJSON {
					return printJSON(cmd.OutOrStdout(), job)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "queued %s job for %s\n", job.Type, job.RequestID)
				return nil
			})
		},
	}
}
