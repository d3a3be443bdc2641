package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	aceconnect "github.com/Zainktk/ace-connect-web"
	"github.com/spf13/cobra"
)

var (
	loginPassword string

	registerPassword string
	registerName     string
	registerRole     string
	registerNTRP     float64
)

func init() {
	loginCmd.Flags().StringVarP(&loginPassword, "password", "p", "", "Account password (defaults to $ACECONNECT_PASSWORD)")

	registerCmd.Flags().StringVarP(&registerPassword, "password", "p", "", "Account password (defaults to $ACECONNECT_PASSWORD)")
	registerCmd.Flags().StringVar(&registerName, "name", "", "Display name")
	registerCmd.Flags().StringVar(&registerRole, "role", string(aceconnect.RolePlayer), "Account role: player or organizer")
	registerCmd.Flags().Float64Var(&registerNTRP, "ntrp", 0, "Self-rated NTRP level")

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(registerCmd)
	rootCmd.AddCommand(verifyOTPCmd)
	rootCmd.AddCommand(resendOTPCmd)
	rootCmd.AddCommand(statusCmd)
}

func passwordFlag(v string) (string, error) {
	if v == "" {
		v = os.Getenv("ACECONNECT_PASSWORD")
	}
	if v == "" {
		return "", fmt.Errorf("password required: pass --password or set ACECONNECT_PASSWORD")
	}
	return v, nil
}

// ============================================================================
// login / logout
// ============================================================================

var loginCmd = &cobra.Command{
	Use:   "login <email>",
	Short: "Log in and store the session token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		password, err := passwordFlag(loginPassword)
		if err != nil {
			return err
		}
		client, err := newClient()
		if err != nil {
			return err
		}

		ctx, cancel := cmdContext(30 * time.Second)
		defer cancel()

		sess, err := client.Auth.Login(ctx, args[0], password)
		if err != nil {
			var apiErr *aceconnect.APIError
			if errors.As(err, &apiErr) && apiErr.RequiresVerification {
				return fmt.Errorf("account not verified; run 'aceconnect verify-otp %s <code>' first", args[0])
			}
			return fmt.Errorf("login failed: %w", err)
		}

		if jsonOutput {
			return printJSON(sess.User)
		}
		fmt.Printf("Logged in as %s (%s)\n", valueOrDefault(sess.User.Name, sess.User.Email), sess.Role)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored session",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		if err := client.Auth.Logout(); err != nil {
			return fmt.Errorf("logout failed: %w", err)
		}
		fmt.Println("Logged out.")
		return nil
	},
}

// ============================================================================
// register / OTP
// ============================================================================

var registerCmd = &cobra.Command{
	Use:   "register <email>",
	Short: "Create an account",
	Long:  "Create an account. The backend emails a one-time code that must be confirmed with 'aceconnect verify-otp' before logging in.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		password, err := passwordFlag(registerPassword)
		if err != nil {
			return err
		}
		client, err := newClient()
		if err != nil {
			return err
		}

		ctx, cancel := cmdContext(30 * time.Second)
		defer cancel()

		res, err := client.Auth.Register(ctx, &aceconnect.RegisterInput{
			Email:      args[0],
			Password:   password,
			Role:       aceconnect.Role(registerRole),
			Name:       registerName,
			NTRPRating: registerNTRP,
		})
		if err != nil {
			return fmt.Errorf("registration failed: %w", err)
		}

		if jsonOutput {
			return printJSON(res.User)
		}
		fmt.Println("Registration successful!")
		fmt.Printf("  User ID: %d\n", res.User.ID)
		fmt.Printf("  Role:    %s\n", res.User.Role)
		if res.User.IsVerified {
			fmt.Println("  (account verified, you are logged in)")
		} else {
			fmt.Printf("  Check your inbox, then run 'aceconnect verify-otp %s <code>'.\n", args[0])
		}
		return nil
	},
}

var verifyOTPCmd = &cobra.Command{
	Use:   "verify-otp <email> <code>",
	Short: "Confirm an account with the emailed code",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := cmdContext(15 * time.Second)
		defer cancel()

		if err := client.Auth.VerifyOTP(ctx, args[0], args[1]); err != nil {
			return fmt.Errorf("verification failed: %w", err)
		}
		fmt.Println("Account verified. You can now log in.")
		return nil
	},
}

var resendOTPCmd = &cobra.Command{
	Use:   "resend-otp <email>",
	Short: "Send a new verification code",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := cmdContext(15 * time.Second)
		defer cancel()

		if err := client.Auth.ResendOTP(ctx, args[0]); err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		fmt.Println("A new code is on its way.")
		return nil
	},
}

// ============================================================================
// status
// ============================================================================

var statusCmd = &cobra.Command{
	Use:     "status",
	Aliases: []string{"whoami"},
	Short:   "Show current configuration and account status",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		path, _ := sessionPath()

		fmt.Println("Configuration:")
		fmt.Printf("  Environment: %s\n", valueOrDefault(cfg.Default.Environment, "(not set)"))
		fmt.Printf("  Base URL:    %s\n", resolveBaseURL(cfg))
		fmt.Printf("  Session:     %s\n", path)

		ctx, cancel := cmdContext(10 * time.Second)
		defer cancel()

		client, err := getSessionClient(ctx)
		fmt.Println()
		fmt.Println("Account:")
		if err != nil {
			fmt.Printf("  %v\n", err)
			return nil
		}
		u := client.Session().Current().User
		if jsonOutput {
			return printJSON(u)
		}
		fmt.Printf("  Name:     %s\n", valueOrDefault(u.Name, "(no profile)"))
		fmt.Printf("  Email:    %s\n", u.Email)
		fmt.Printf("  Role:     %s\n", u.Role)
		if u.NTRPRating > 0 {
			fmt.Printf("  NTRP:     %.1f\n", u.NTRPRating)
		}
		if u.Location != "" {
			fmt.Printf("  Location: %s\n", u.Location)
		}
		fmt.Printf("  Level:    %d (%d XP, %d day streak)\n", u.Level, u.XP, u.Streak)
		return nil
	},
}
