package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	aceconnect "github.com/Zainktk/ace-connect-web"
	"github.com/spf13/cobra"
)

// ============================================================================
// Flag variables
// ============================================================================

var (
	// matches
	matchesAll bool

	// requests create / update
	reqInput aceconnect.RequestInput

	// invite
	inviteMessage string
)

func init() {
	matchesCmd.Flags().BoolVar(&matchesAll, "all", false, "Include completed and cancelled matches")

	for _, c := range []*cobra.Command{requestsCreateCmd, requestsUpdateCmd} {
		c.Flags().StringVar(&reqInput.MatchType, "type", aceconnect.MatchTypeSingles, "Match type: singles or doubles")
		c.Flags().StringVar(&reqInput.PreferredDate, "date", "", "Preferred date (YYYY-MM-DD)")
		c.Flags().StringVar(&reqInput.PreferredTime, "time", "", "Preferred time (HH:MM)")
		c.Flags().IntVar(&reqInput.Duration, "duration", 90, "Duration in minutes")
		c.Flags().StringVar(&reqInput.Location, "location", "", "Court or area")
		c.Flags().Float64Var(&reqInput.SkillLevelMin, "min", 0, "Minimum NTRP level")
		c.Flags().Float64Var(&reqInput.SkillLevelMax, "max", 0, "Maximum NTRP level")
		c.Flags().StringVar(&reqInput.Notes, "notes", "", "Free-form notes")
	}

	inviteCmd.Flags().StringVarP(&inviteMessage, "message", "m", "", "Invitation message")

	requestsCmd.AddCommand(requestsMineCmd)
	requestsCmd.AddCommand(requestsShowCmd)
	requestsCmd.AddCommand(requestsCreateCmd)
	requestsCmd.AddCommand(requestsUpdateCmd)

	invitationsCmd.AddCommand(invitationsAcceptCmd)
	invitationsCmd.AddCommand(invitationsDeclineCmd)

	rootCmd.AddCommand(matchesCmd)
	rootCmd.AddCommand(requestsCmd)
	rootCmd.AddCommand(inviteCmd)
	rootCmd.AddCommand(invitationsCmd)
	rootCmd.AddCommand(dashboardCmd)
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

func printMatches(matches []aceconnect.Match) {
	if len(matches) == 0 {
		fmt.Println("No matches.")
		return
	}
	for _, m := range matches {
		fmt.Printf("#%-5d %-20s %-8s %-9s %s %s\n", m.ID, m.OpponentName, m.MatchType, m.Status, m.MatchDate, m.Location)
	}
}

func printRequests(reqs []aceconnect.MatchRequest, board *aceconnect.RequestBoard) {
	if len(reqs) == 0 {
		fmt.Println("No open requests.")
		return
	}
	for _, r := range reqs {
		mark := " "
		switch {
		case board != nil && board.IsOwn(r.ID):
			mark = "*"
		case r.InvitationSent:
			mark = "✓"
		}
		fmt.Printf("%s #%-5d %-18s %-8s NTRP %.1f-%.1f  %s %s  %s\n",
			mark, r.ID, valueOrDefault(r.Name, "-"), r.MatchType, r.SkillLevelMin, r.SkillLevelMax,
			r.PreferredDate, r.PreferredTime, r.Location)
	}
}

func printInvitations(items []aceconnect.Invitation) {
	if len(items) == 0 {
		fmt.Println("No pending invitations.")
		return
	}
	for _, inv := range items {
		fmt.Printf("#%-5d from %-18s %-8s %s\n", inv.ID, inv.SenderName, inv.MatchType, inv.Location)
		if inv.Message != "" {
			fmt.Printf("       %q\n", inv.Message)
		}
	}
}

// ============================================================================
// matches
// ============================================================================

var matchesCmd = &cobra.Command{
	Use:   "matches",
	Short: "List your upcoming matches",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdContext(15 * time.Second)
		defer cancel()
		client, err := getSessionClient(ctx)
		if err != nil {
			return err
		}

		var matches []aceconnect.Match
		if matchesAll {
			matches, err = client.Matchmaking.MyMatches(ctx)
		} else {
			matches, err = client.Matchmaking.UpcomingMatches(ctx)
		}
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		if jsonOutput {
			return printJSON(matches)
		}
		printMatches(matches)
		return nil
	},
}

// ============================================================================
// requests
// ============================================================================

var requestsCmd = &cobra.Command{
	Use:   "requests",
	Short: "Browse open match requests",
	Long:  "List open match requests. Requests you already invited are marked ✓, your own are marked *.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdContext(15 * time.Second)
		defer cancel()
		client, err := getSessionClient(ctx)
		if err != nil {
			return err
		}

		board := aceconnect.NewRequestBoard(client.Matchmaking, client.Session(), logger)
		if _, err := board.Refresh(ctx); err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		reqs := board.Requests()
		if jsonOutput {
			return printJSON(reqs)
		}
		printRequests(reqs, board)
		return nil
	},
}

var requestsMineCmd = &cobra.Command{
	Use:   "mine",
	Short: "List the requests you posted",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdContext(15 * time.Second)
		defer cancel()
		client, err := getSessionClient(ctx)
		if err != nil {
			return err
		}
		reqs, err := client.Matchmaking.MyRequests(ctx)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		if jsonOutput {
			return printJSON(reqs)
		}
		printRequests(reqs, nil)
		return nil
	},
}

var requestsShowCmd = &cobra.Command{
	Use:   "show <request-id>",
	Short: "Show one match request",
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
		req, err := client.Matchmaking.GetRequest(ctx, id)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		if jsonOutput {
			return printJSON(req)
		}
		printRequests([]aceconnect.MatchRequest{*req}, nil)
		if req.Notes != "" {
			fmt.Printf("  Notes: %s\n", req.Notes)
		}
		return nil
	},
}

var requestsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Post a new match request",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := reqInput.Validate(); err != nil {
			return err
		}
		ctx, cancel := cmdContext(15 * time.Second)
		defer cancel()
		client, err := getSessionClient(ctx)
		if err != nil {
			return err
		}
		req, err := client.Matchmaking.CreateRequest(ctx, &reqInput)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		if jsonOutput {
			return printJSON(req)
		}
		fmt.Printf("Request #%d posted.\n", req.ID)
		return nil
	},
}

var requestsUpdateCmd = &cobra.Command{
	Use:   "update <request-id>",
	Short: "Replace the fields of one of your requests",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		if err := reqInput.Validate(); err != nil {
			return err
		}
		ctx, cancel := cmdContext(15 * time.Second)
		defer cancel()
		client, err := getSessionClient(ctx)
		if err != nil {
			return err
		}
		req, err := client.Matchmaking.UpdateRequest(ctx, id, &reqInput)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		if jsonOutput {
			return printJSON(req)
		}
		fmt.Printf("Request #%d updated.\n", req.ID)
		return nil
	},
}

// ============================================================================
// invite
// ============================================================================

var inviteCmd = &cobra.Command{
	Use:   "invite <request-id>",
	Short: "Invite the author of a match request to play",
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

		board := aceconnect.NewRequestBoard(client.Matchmaking, client.Session(), logger)
		if _, err := board.Refresh(ctx); err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		if board.IsSent(id) {
			fmt.Printf("Invitation for request #%d was already sent.\n", id)
			return nil
		}
		if err := board.SendInvitation(ctx, id, inviteMessage); err != nil {
			return fmt.Errorf("invitation failed: %w", err)
		}
		fmt.Printf("Invitation sent for request #%d.\n", id)
		return nil
	},
}

// ============================================================================
// invitations
// ============================================================================

func invitationAction(verb, done string, act func(*aceconnect.Inbox, context.Context, int64) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
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
		inbox := aceconnect.NewInbox(client.Matchmaking, logger)
		if err := act(inbox, ctx, id); err != nil {
			return fmt.Errorf("%s failed: %w", verb, err)
		}
		fmt.Printf("Invitation #%d %s.\n", id, done)
		return nil
	}
}

var invitationsCmd = &cobra.Command{
	Use:   "invitations",
	Short: "List invitations you received",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdContext(15 * time.Second)
		defer cancel()
		client, err := getSessionClient(ctx)
		if err != nil {
			return err
		}
		inbox := aceconnect.NewInbox(client.Matchmaking, logger)
		items, err := inbox.Refresh(ctx)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		if jsonOutput {
			return printJSON(items)
		}
		printInvitations(items)
		return nil
	},
}

var invitationsAcceptCmd = &cobra.Command{
	Use:   "accept <invitation-id>",
	Short: "Accept an invitation",
	Args:  cobra.ExactArgs(1),
	RunE: invitationAction("accept", "accepted", (*aceconnect.Inbox).Accept),
}

var invitationsDeclineCmd = &cobra.Command{
	Use:   "decline <invitation-id>",
	Short: "Decline an invitation",
	Args:  cobra.ExactArgs(1),
	RunE: invitationAction("decline", "declined", (*aceconnect.Inbox).Decline),
}

// ============================================================================
// dashboard
// ============================================================================

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Show upcoming matches, open requests and invitations",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdContext(20 * time.Second)
		defer cancel()
		client, err := getSessionClient(ctx)
		if err != nil {
			return err
		}
		ov, err := client.Matchmaking.Overview(ctx)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		if jsonOutput {
			return printJSON(ov)
		}

		settings, err := client.Settings.Public(ctx)
		if err != nil {
			logger.Debug("settings unavailable, using defaults")
		}
		fmt.Println(settings["dashboard_match_header"])
		printMatches(aceconnect.FilterUpcoming(ov.Matches))
		fmt.Println()
		fmt.Println("Open requests:")
		printRequests(ov.Requests, nil)
		fmt.Println()
		fmt.Println("Invitations:")
		printInvitations(ov.Invitations)
		return nil
	},
}
