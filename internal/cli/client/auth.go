package client

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

// AuthCmd creates the auth parent command
func AuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage authentication credentials",
		Long:  "Login, logout, and check authentication status for the docqa CLI",
	}

	cmd.AddCommand(AuthLoginCmd())
	cmd.AddCommand(AuthLogoutCmd())
	cmd.AddCommand(AuthStatusCmd())

	return cmd
}

// AuthLoginCmd creates the auth login command
func AuthLoginCmd() *cobra.Command {
	var apiKey, apiURL string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Login with API key",
		Long:  "Store API key and URL in the global config (~/.config/docqa/config.json)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if apiKey == "" {
				fmt.Fprint(cmd.OutOrStdout(), "Enter API key: ")
				key, err := readLine(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("failed to read API key: %w", err)
				}
				apiKey = key
			}
			if err := login(apiKey, apiURL); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Successfully logged in")
			return nil
		},
	}

	cmd.Flags().StringVar(&apiKey, "api-key", "", "API key (dqa_...)")
	cmd.Flags().StringVar(&apiURL, "url", defaultAPIURL, "API URL")

	return cmd
}

// AuthLogoutCmd creates the auth logout command
func AuthLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Logout and clear credentials",
		Long:  "Remove stored credentials from the global config",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := DeleteGlobalConfig(); err != nil {
				return fmt.Errorf("failed to logout: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Successfully logged out")
			return nil
		},
	}
}

// AuthStatusCmd creates the auth status command
func AuthStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show authentication status",
		Long:  "Display current authentication source and credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			flagKey, _ := cmd.Flags().GetString("api-key")
			flagURL, _ := cmd.Flags().GetString("api-url")
			source, apiKey, apiURL := GetCredentialSource(flagKey, flagURL)
			return writeStatus(cmd.OutOrStdout(), outputJSON(cmd), source, apiKey, apiURL)
		},
	}
}

func readLine(r io.Reader) (string, error) {
	input, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimSpace(input), nil
}

func login(apiKey, apiURL string) error {
	if !IsValidAPIKey(apiKey) {
		return fmt.Errorf("invalid API key format (expected: dqa_ + 64 hex characters)")
	}
	if err := SaveGlobalConfig(&GlobalConfig{APIKey: apiKey, APIURL: apiURL}); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}
	return nil
}

func writeStatus(w io.Writer, asJSON bool, source CredentialSource, apiKey, apiURL string) error {
	if asJSON {
		status := map[string]any{
			"authenticated": source != SourceNone,
			"source":        string(source),
		}
		if source != SourceNone {
			status["api_key"] = maskAPIKey(apiKey)
			status["api_url"] = apiURL
		}
		data, err := json.MarshalIndent(status, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal status: %w", err)
		}
		fmt.Fprintln(w, string(data))
		return nil
	}

	if source == SourceNone {
		fmt.Fprintln(w, "Not authenticated")
		fmt.Fprintln(w, "Run 'docqa auth login' to authenticate")
		return nil
	}

	fmt.Fprintln(w, "Authenticated: yes")
	fmt.Fprintf(w, "Source: %s\n", source)
	fmt.Fprintf(w, "API Key: %s\n", maskAPIKey(apiKey))
	fmt.Fprintf(w, "API URL: %s\n", apiURL)
	return nil
}

func maskAPIKey(key string) string {
	if len(key) < 12 {
		return "***"
	}
	return key[:8] + "..." + key[len(key)-4:]
}
