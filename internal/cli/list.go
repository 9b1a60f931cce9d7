package cli

import (
	"context"
	"maps"
	"slices"
	"strings"

	"github.com/spf13/cobra"
)

// Entry is one key and its text value.
type Entry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Listing is the output of the list command, sorted by key.
type Listing []Entry

func (l Listing) String() string {
	var b strings.Builder
	for i, e := range l {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(e.Key)
		b.WriteByte('=')
		b.WriteString(e.Value)
	}
	return b.String()
}

func newListing(m map[string]string) Listing {
	l := make(Listing, 0, len(m))
	for _, k := range slices.Sorted(maps.Keys(m)) {
		l = append(l, Entry{Key: k, Value: m[k]})
	}
	return l
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	var raw bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "Print every entry",
		Long: `Print every entry as key=value, sorted by key.

The store keeps no type tags, so values are printed as text; string sets
appear as a JSON array. --raw prints the encoded keys and values exactly
as the store holds them.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			return rootOpts.withSession(cmd, f, func(ctx context.Context, s *session) error {
				var (
					entries map[string]string
					err     error
				)
				if raw {
					entries, err = s.backend.All(ctx)
				} else {
					entries, err = s.prefs.All(ctx)
				}
				if err != nil {
					return err
				}
				return f.Success(newListing(entries))
			})
		},
	}

	cmd.Flags().BoolVar(&raw, "raw", false, "print the encoded form")

	return cmd
}
