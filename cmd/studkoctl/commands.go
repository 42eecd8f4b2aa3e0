package main

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"studko/internal/booking"
	"studko/internal/models"
)

func bookingCmd(b backend, operatorFlag *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "booking",
		Short: "Move tutoring bookings through their lifecycle",
	}

	actions := []struct{ use, short string }{
		{"confirm", "Confirm a pending booking"},
		{"complete", "Mark a confirmed booking as completed"},
		{"mark-paid", "Record a verified payment"},
		{"cancel", "Cancel a pending or confirmed booking"},
	}

	// One subcommand per lifecycle action
	for _, action := range actions {
		action := action
		cmd.AddCommand(&cobra.Command{
			Use:   action.use + " <booking-id>",
			Short: action.short,
			Args:  cobra.ExactArgs(1),
			RunE: func(c *cobra.Command, args []string) error {
				// Parse booking ID
				id, err := uuid.Parse(args[0])
				if err != nil {
					return fmt.Errorf("invalid booking id: %w", err)
				}
				return withOperator(c, b, *operatorFlag, func(a *app, actor booking.Actor, out io.Writer) error {
					bk, err := bookingAction(a, action.use)(c.Context(), actor, id)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "booking %s: status=%s paid=%t\n", bk.ID, bk.Status, bk.Paid)
					return nil
				})
			},
		})
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "pending",
		Short: "List bookings waiting for confirmation",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			return withOperator(c, b, *operatorFlag, func(a *app, _ booking.Actor, out io.Writer) error {
				items, err := a.bookings.Pending(c.Context())
				if err != nil {
					return err
				}
				for _, bk := range items {
					fmt.Fprintf(out, "%s  %s  tutor=%s student=%s\n", bk.ID, bk.StartTime.Format("2006-01-02 15:04"), bk.TutorID, bk.StudentID)
				}
				return nil
			})
		},
	})

	return cmd
}

func bookingAction(a *app, name string) func(context.Context, booking.Actor, uuid.UUID) (*models.Booking, error) {
	switch name {
	case "confirm":
		return a.bookings.Confirm
	case "complete":
		return a.bookings.Complete
	case "mark-paid":
		return a.bookings.MarkPaid
	default:
		return a.bookings.Cancel
	}
}

// reviewCmd builds "tutor" or "claim" with approve, reject and pending.
func reviewCmd(b backend, operatorFlag *string, entity, short string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   entity,
		Short: short,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "approve <id>",
		Short: "Approve a pending " + entity,
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid %s id: %w", entity, err)
			}
			return withOperator(c, b, *operatorFlag, func(a *app, _ booking.Actor, out io.Writer) error {
				status, err := review(c, a, entity, id, true, "")
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s %s: %s\n", entity, id, status)
				return nil
			})
		},
	})

	// Reject takes an optional reason shown to the user
	var reason string
	reject := &cobra.Command{
		Use:   "reject <id>",
		Short: "Reject a pending " + entity,
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid %s id: %w", entity, err)
			}
			return withOperator(c, b, *operatorFlag, func(a *app, _ booking.Actor, out io.Writer) error {
				status, err := review(c, a, entity, id, false, reason)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s %s: %s\n", entity, id, status)
				return nil
			})
		},
	}
	reject.Flags().StringVar(&reason, "reason", "", "reason shown to the user")
	cmd.AddCommand(reject)

	cmd.AddCommand(&cobra.Command{
		Use:   "pending",
		Short: "List pending " + entity + " items",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			return withOperator(c, b, *operatorFlag, func(a *app, _ booking.Actor, out io.Writer) error {
				// List tutor applications or claims depending on the entity
				if entity == "tutor" {
					items, err := a.reviews.PendingTutors(c.Context())
					if err != nil {
						return err
					}
					for _, t := range items {
						fmt.Fprintf(out, "%s  user=%s  %d c/h\n", t.ID, t.UserID, t.PricePerHourCents)
					}
					return nil
				}
				items, err := a.reviews.PendingClaims(c.Context())
				if err != nil {
					return err
				}
				for _, cl := range items {
					fmt.Fprintf(out, "%s  %s  %s\n", cl.ID, cl.Platform, cl.PostURL)
				}
				return nil
			})
		},
	})

	return cmd
}

func review(c *cobra.Command, a *app, entity string, id uuid.UUID, approve bool, reason string) (string, error) {
	ctx := c.Context()
	switch {
	case entity == "tutor" && approve:
		t, err := a.reviews.ApproveTutor(ctx, id)
		if err != nil {
			return "", err
		}
		return t.Status, nil
	case entity == "tutor":
		t, err := a.reviews.RejectTutor(ctx, id, reason)
		if err != nil {
			return "", err
		}
		return t.Status, nil
	case approve:
		cl, err := a.reviews.ApproveClaim(ctx, id)
		if err != nil {
			return "", err
		}
		return cl.Status, nil
	default:
		cl, err := a.reviews.RejectClaim(ctx, id, reason)
		if err != nil {
			return "", err
		}
		return cl.Status, nil
	}
}
