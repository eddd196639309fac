package main

import (
	"fmt"
	"os"
	"time"

	"github.com/Bhogyaan/threads/backend/internal/auth"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var tokenCmd = &cobra.Command{
	Use:   "token <userId>",
	Short: "Mint a development token for a user",
	Long: `Sign a token with JWT_SECRET (read from the environment or .env).
The token is accepted by the websocket upgrade together with ?userId=<userId>.

Examples:
  threads-rt token 64b7f0c2e4b0a1a2b3c4d5e6
  export THREADS_TOKEN=$(threads-rt token u1 --ttl 1h)`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ttl, _ := cmd.Flags().GetDuration("ttl")
		secret, _ := cmd.Flags().GetString("secret")
		return mintToken(args[0], secret, ttl)
	},
}

func init() {
	tokenCmd.Flags().Duration("ttl", 24*time.Hour, "Token lifetime")
	tokenCmd.Flags().String("secret", "", "Signing secret (defaults to JWT_SECRET)")
}

func mintToken(uid, secret string, ttl time.Duration) error {
	if secret == "" {
		_ = godotenv.Load()
		secret = os.Getenv("JWT_SECRET")
	}
	if secret == "" {
		return fmt.Errorf("JWT_SECRET is not set; pass --secret")
	}

	token, err := auth.NewService([]byte(secret)).Issue(uid, ttl)
	if err != nil {
		return fmt.Errorf("failed to sign token: %w", err)
	}

	if output == "json" {
		return printJSON(map[string]interface{}{
			"user_id":    uid,
			"token":      token,
			"expires_at": time.Now().Add(ttl).UTC(),
		})
	}
	// bare token so it can be captured by the shell
	fmt.Println(token)
	return nil
}
