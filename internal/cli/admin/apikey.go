package admin

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cloo-solutions/docqa/internal/service"
)

func APIKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apikey",
		Short: "Manage API keys",
		Long:  "Create API keys and the DOCQA_API_KEYS entries that grant them access",
	}

	cmd.AddCommand(APIKeyCreateCmd())
	cmd.AddCommand(APIKeyHashCmd())

	return cmd
}

func APIKeyCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new API key",
		Long:  "Generate a token for an owner. Only its hash is stored server side, in DOCQA_API_KEYS.",
		RunE:  runAPIKeyCreate,
	}

	cmd.Flags().StringP("owner", "o", "", "Owner ID the key authenticates as (required)")
	cmd.Flags().StringP("output", "", "text", "Output format (text or json)")
	_ = cmd.MarkFlagRequired("owner")

	return cmd
}

func runAPIKeyCreate(cmd *cobra.Command, args []string) error {
	owner, _ := cmd.Flags().GetString("owner")
	outputFormat, _ := cmd.Flags().GetString("output")

	owner = strings.TrimSpace(owner)
	if owner == "" || strings.ContainsAny(owner, ":,") {
		return fmt.Errorf("owner must be non-empty and must not contain ':' or ','")
	}

	token, err := service.GenerateAPIToken()
	if err != nil {
		return fmt.Errorf("failed to create API key: %w", err)
	}
	entry := owner + ":" + service.HashToken(token)

	w := cmd.OutOrStdout()
	if outputFormat == "json" {
		data := map[string]any{
			"owner": owner,
			"token": token,
			"entry": entry,
		}
		jsonBytes, _ := json.MarshalIndent(data, "", "  ")
		fmt.Fprintln(w, string(jsonBytes))
		return nil
	}

	fmt.Fprintf(w, "API key created for owner %s\n", owner)
	fmt.Fprintf(w, "Token: %s\n", token)
	fmt.Fprintf(w, "Add to DOCQA_API_KEYS: %s\n", entry)
	fmt.Fprintln(w, "\n⚠️  Save this token now. You won't be able to see it again!")
	return nil
}

func APIKeyHashCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash <token>",
		Short: "Print the hash of an existing token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !service.IsValidAPIToken(args[0]) {
				return fmt.Errorf("invalid token format (expected 'dqa_<64 hex chars>')")
			}
			fmt.Fprintln(cmd.OutOrStdout(), service.HashToken(args[0]))
			return nil
		},
	}
}
