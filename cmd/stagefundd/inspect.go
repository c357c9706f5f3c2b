package main

import (
	"encoding/json"
	"strconv"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/blockberries/stagefund/mirror"
	"github.com/blockberries/stagefund/types"
)

func newInspectCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Read committed records from the event mirror",
	}
	cmd.PersistentFlags().StringVar(&path, "mirror", "stagefund-mirror.db", "path of the SQLite event mirror")

	withMirror := func(fn func(cmd *cobra.Command, m *mirror.Mirror, args []string) (any, error)) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			m, err := mirror.Open(cmd.Context(), path, zerolog.Nop())
			if err != nil {
				return err
			}
			defer m.Close()
			v, err := fn(cmd, m, args)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(v)
		}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "campaign <id>",
			Short: "Show a campaign and its contributions",
			Args:  cobra.ExactArgs(1),
			RunE: withMirror(func(cmd *cobra.Command, m *mirror.Mirror, args []string) (any, error) {
				id, err := strconv.ParseUint(args[0], 10, 64)
				if err != nil {
					return nil, errors.Wrap(err, "campaign id")
				}
				c, ok, err := m.Campaign(cmd.Context(), types.CampaignID(id))
				if err != nil {
					return nil, err
				}
				if !ok {
					return nil, errors.Errorf("campaign %d not found", id)
				}
				contributions, err := m.Contributions(cmd.Context(), c.ID)
				if err != nil {
					return nil, err
				}
				return struct {
					Campaign      types.Campaign       `json:"campaign"`
					Contributions []types.Contribution `json:"contributions"`
				}{c, contributions}, nil
			}),
		},
		&cobra.Command{
			Use:   "proposal <id>",
			Short: "Show a proposal",
			Args:  cobra.ExactArgs(1),
			RunE: withMirror(func(cmd *cobra.Command, m *mirror.Mirror, args []string) (any, error) {
				id, err := strconv.ParseUint(args[0], 10, 64)
				if err != nil {
					return nil, errors.Wrap(err, "proposal id")
				}
				p, ok, err := m.Proposal(cmd.Context(), types.ProposalID(id))
				if err != nil {
					return nil, err
				}
				if !ok {
					return nil, errors.Errorf("proposal %d not found", id)
				}
				return p, nil
			}),
		},
		&cobra.Command{
			Use:   "stakes",
			Short: "List bonded stakes",
			Args:  cobra.NoArgs,
			RunE: withMirror(func(cmd *cobra.Command, m *mirror.Mirror, _ []string) (any, error) {
				return m.Stakes(cmd.Context())
			}),
		},
		&cobra.Command{
			Use:   "cursor",
			Short: "Show the last mirrored event",
			Args:  cobra.NoArgs,
			RunE: withMirror(func(cmd *cobra.Command, m *mirror.Mirror, _ []string) (any, error) {
				seq, height, err := m.Cursor(cmd.Context())
				return map[string]uint64{"seq": seq, "height": height}, err
			}),
		},
	)
	return cmd
}
