package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// DemoResult is the output of the demo command.
type DemoResult struct {
	Read   []GetResult `json:"read"`
	Stored Listing     `json:"stored"`
}

func (r DemoResult) String() string {
	var b strings.Builder
	for _, g := range r.Read {
		fmt.Fprintf(&b, "%s (%s) = %s", g.Key, g.Type, formatValue(g.Value))
		if g.Default {
			b.WriteString(" [default]")
		}
		b.WriteByte('\n')
	}
	b.WriteString("stored:\n")
	b.WriteString(r.Stored.String())
	return b.String()
}

// NewDemoCommand creates the demo command.
func NewDemoCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Write three sample entries and read them back",
		Long: `Write key1="hoge", key2=68 and key3=true in one batch, read them back
with their types, read the unset key "nope" with a fallback and print
what the store actually holds.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			return rootOpts.withSession(cmd, f, func(ctx context.Context, s *session) error {
				res, err := runDemo(ctx, s)
				if err != nil {
					return err
				}
				return f.Success(res)
			})
		},
	}

	return cmd
}

func runDemo(ctx context.Context, s *session) (DemoResult, error) {
	var res DemoResult
	p := s.prefs

	ed := p.Edit()
	err := errors.Join(
		ed.PutString("key1", "hoge"),
		ed.PutInt("key2", 68),
		ed.PutBool("key3", true),
	)
	if err != nil {
		return res, err
	}
	if err := ed.Commit(ctx); err != nil {
		return res, err
	}

	key1, err := p.GetString(ctx, "key1", "")
	if err != nil {
		return res, err
	}
	key2, err := p.GetInt(ctx, "key2", 0)
	if err != nil {
		return res, err
	}
	key3, err := p.GetBool(ctx, "key3", false)
	if err != nil {
		return res, err
	}
	nope, err := p.GetString(ctx, "nope", "fallback")
	if err != nil {
		return res, err
	}
	found, err := p.Contains(ctx, "nope")
	if err != nil {
		return res, err
	}

	res.Read = []GetResult{
		{Key: "key1", Type: "string", Value: key1},
		{Key: "key2", Type: "int", Value: key2},
		{Key: "key3", Type: "bool", Value: key3},
		{Key: "nope", Type: "string", Value: nope, Default: !found},
	}

	stored, err := s.backend.All(ctx)
	if err != nil {
		return res, err
	}
	res.Stored = newListing(stored)
	return res, nil
}
