package main

import (
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Posologia-Edu/pbl-virtual-sub001/internal/application/command"
	"github.com/Posologia-Edu/pbl-virtual-sub001/internal/application/query"
	"github.com/Posologia-Edu/pbl-virtual-sub001/internal/bootstrap"
	"github.com/Posologia-Edu/pbl-virtual-sub001/internal/domain/badge"
)

// =============================================================================
// EVALUATE COMMAND
// =============================================================================

type evaluateOutput struct {
	UserID             string           `json:"user_id"`
	RoomID             *string          `json:"room_id,omitempty"`
	Badges             []query.BadgeDTO `json:"badges"`
	NewBadges          int              `json:"new_badges"`
	Metrics            badge.Metrics    `json:"metrics"`
	MissingDefinitions []string         `json:"missing_definitions,omitempty"`
}

func newEvaluateCmd() *cobra.Command {
	var userID, roomID string

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Compute and award badges for one user",
		Long: `evaluate runs the same computation as POST /api/v1/badges/compute
for the given user and prints the result as JSON. New grants are stored;
events stay in process.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			defer e.log.Sync()

			ctx := cmd.Context()
			store, err := bootstrap.OpenStore(ctx, e.cfg, e.log)
			if err != nil {
				return err
			}
			defer store.Close()

			publisher, err := bootstrap.NewPublisher(nil, e.log)
			if err != nil {
				return err
			}
			defer publisher.Close()

			handler := command.NewComputeBadgesHandler(
				store,
				badge.NewEvaluator(bootstrap.NewRegistry(e.cfg.Badges, e.log)),
				publisher,
				nil,
				e.log,
				command.ComputeBadgesConfig{Timeout: e.cfg.Badges.ComputeTimeout},
			)

			res, err := handler.Handle(ctx, command.ComputeBadgesCommand{
				CallerID:      userID,
				UserID:        userID,
				RoomID:        roomID,
				CorrelationID: uuid.NewString(),
			})
			if err != nil {
				return err
			}

			out := evaluateOutput{
				UserID:             res.UserID.String(),
				Badges:             query.NewBadgeDTOs(res.Badges),
				NewBadges:          res.NewBadges,
				Metrics:            res.Metrics,
				MissingDefinitions: res.MissingDefinitions,
			}
			if res.RoomID != nil {
				id := res.RoomID.String()
				out.RoomID = &id
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "user UUID (required)")
	cmd.Flags().StringVar(&roomID, "room", "", "room UUID for room-scoped badges")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
