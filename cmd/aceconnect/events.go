package main

import (
	"fmt"
	"time"

	aceconnect "github.com/Zainktk/ace-connect-web"
	"github.com/spf13/cobra"
)

var (
	eventInput aceconnect.EventInput

	playersQuery string

	profileInput aceconnect.ProfileInput
	profileNTRP  float64
)

func init() {
	eventsCreateCmd.Flags().StringVar(&eventInput.Title, "title", "", "Event title")
	eventsCreateCmd.Flags().StringVar(&eventInput.Description, "description", "", "Event description")
	eventsCreateCmd.Flags().StringVar(&eventInput.EventDate, "date", "", "Event date and time (RFC 3339)")
	eventsCreateCmd.Flags().StringVar(&eventInput.Location, "location", "", "Venue")
	eventsCreateCmd.Flags().Float64Var(&eventInput.Price, "price", 0, "Entry price")
	eventsCreateCmd.Flags().IntVar(&eventInput.MaxParticipants, "max", 16, "Maximum participants")
	eventsCmd.AddCommand(eventsCreateCmd)
	eventsCmd.AddCommand(eventsPayCmd)

	playersCmd.Flags().StringVarP(&playersQuery, "search", "s", "", "Filter by name or location")

	profileCmd.Flags().StringVar(&profileInput.Name, "name", "", "Display name")
	profileCmd.Flags().StringVar(&profileInput.Bio, "bio", "", "Short bio")
	profileCmd.Flags().StringVar(&profileInput.Location, "location", "", "Home area")
	profileCmd.Flags().Float64Var(&profileNTRP, "ntrp", 0, "Self-rated NTRP level")

	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(playersCmd)
	rootCmd.AddCommand(profileCmd)
}

// ============================================================================
// events
// ============================================================================

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Browse upcoming events",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdContext(15 * time.Second)
		defer cancel()
		client, err := getSessionClient(ctx)
		if err != nil {
			return err
		}
		events, err := client.Events.List(ctx)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		if jsonOutput {
			return printJSON(events)
		}
		if len(events) == 0 {
			fmt.Println("No events.")
			return nil
		}
		for _, e := range events {
			joined := ""
			if e.IsJoined {
				joined = " (joined)"
			}
			fmt.Printf("#%-5d %-28s %s  $%.2f  %d/%d%s\n", e.ID, e.Title, e.EventDate, e.Price, e.ParticipantCount, e.MaxParticipants, joined)
			fmt.Printf("       %s, by %s\n", e.Location, valueOrDefault(e.OrganizerName, "-"))
		}
		return nil
	},
}

var eventsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an event (organizers)",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdContext(15 * time.Second)
		defer cancel()
		client, err := getSessionClient(ctx)
		if err != nil {
			return err
		}
		ev, err := client.Events.Create(ctx, &eventInput)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		if jsonOutput {
			return printJSON(ev)
		}
		fmt.Printf("Event #%d created.\n", ev.ID)
		return nil
	},
}

var eventsPayCmd = &cobra.Command{
	Use:   "pay <event-id>",
	Short: "Start the payment for an event",
	Long:  "Open a payment for an event and print the client secret used to confirm it with the payment processor.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		ctx, cancel := cmdContext(15 * time.Second)
		defer cancel()
		client, err := getSessionClient(ctx)
		if err != nil {
			return err
		}

		events, err := client.Events.List(ctx)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		var price float64
		found := false
		for _, e := range events {
			if e.ID == id {
				price, found = e.Price, true
				break
			}
		}
		if !found {
			return fmt.Errorf("event #%d not found", id)
		}

		intent, err := client.Payments.PayEvent(ctx, id, price)
		if err != nil {
			return fmt.Errorf("payment failed: %w", err)
		}
		if jsonOutput {
			return printJSON(intent)
		}
		fmt.Printf("Payment opened for $%.2f.\n", price)
		fmt.Printf("  Client secret: %s\n", intent.ClientSecret)
		return nil
	},
}

// ============================================================================
// players / profile
// ============================================================================

var playersCmd = &cobra.Command{
	Use:   "players",
	Short: "Find players",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdContext(15 * time.Second)
		defer cancel()
		client, err := getSessionClient(ctx)
		if err != nil {
			return err
		}
		users, err := client.Users.List(ctx)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		users = aceconnect.FilterPlayers(users, playersQuery)
		if jsonOutput {
			return printJSON(users)
		}
		if len(users) == 0 {
			fmt.Println("No players found.")
			return nil
		}
		for _, u := range users {
			fmt.Printf("%-22s NTRP %-4.1f %s\n", valueOrDefault(u.Name, u.Email), u.NTRPRating, u.Location)
		}
		return nil
	},
}

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Update your player profile",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("ntrp") {
			profileInput.NTRPRating = &profileNTRP
		}
		ctx, cancel := cmdContext(15 * time.Second)
		defer cancel()
		client, err := getSessionClient(ctx)
		if err != nil {
			return err
		}
		u, err := client.Profile.Update(ctx, &profileInput)
		if err != nil {
			return fmt.Errorf("update failed: %w", err)
		}
		if jsonOutput {
			return printJSON(u)
		}
		fmt.Printf("Profile saved for %s.\n", valueOrDefault(u.Name, u.Email))
		return nil
	},
}
