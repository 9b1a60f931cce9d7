package cli

import (
	"context"
	"time"

	"github.com/erlorenz/go-prefs/prefs"
	"github.com/spf13/cobra"
)

// ChangeEvent is printed by the watch command for every changed key.
type ChangeEvent struct {
	Key     string    `json:"key,omitempty"`
	Cleared bool      `json:"cleared,omitempty"` // every key may have changed
	At      time.Time `json:"at"`
}

func (e ChangeEvent) String() string {
	if e.Cleared {
		return e.At.Format(time.TimeOnly) + " *"
	}
	return e.At.Format(time.TimeOnly) + " " + e.Key
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print keys as they change",
		Long: `Print the logical key of every entry changed by a committed batch until
interrupted. A clear, or a batch too large to list its keys, prints "*".

Changes made by other processes are only seen with the postgres backend,
which carries them over LISTEN/NOTIFY.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			return rootOpts.withSession(cmd, f, func(ctx context.Context, s *session) error {
				if timeout > 0 {
					var cancel context.CancelFunc
					ctx, cancel = context.WithTimeout(ctx, timeout)
					defer cancel()
				}
				f.VerboseLog("watching %s", rootOpts.Config.Topic)
				return watchChanges(ctx, s.prefs, f)
			})
		},
	}

	cmd.Flags().DurationVar(&timeout, "for", 0, "stop after this long (0 waits until interrupted)")

	return cmd
}

// watchChanges prints every change reported by p until ctx is done or
// printing fails. The subscription ends with it.
func watchChanges(ctx context.Context, p *prefs.Preferences, f *OutputFormatter) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	events := make(chan ChangeEvent, 64)
	err := p.OnChange(ctx, func(key string, cleared bool) {
		ev := ChangeEvent{Key: key, Cleared: cleared, At: time.Now()}
		select {
		case events <- ev:
		case <-ctx.Done():
		}
	})
	if err != nil {
		return err
	}

	for {
		select {
		case ev := <-events:
			if err := f.Success(ev); err != nil {
				return err
			}
		case <-ctx.Done():
			return nil
		}
	}
}
