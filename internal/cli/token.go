package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func newTokenCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Show the admin API token",
		Long: `Show the admin token of the running server.

Use this when you've scrolled past the startup message or need to
call the admin API.

Example:
  adflow token
  curl -H "Authorization: Bearer $(adflow token -q)" localhost:8080/api/experiments`,
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := readToken(a.tokenFilePath())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if quiet, _ := cmd.Flags().GetBool("quiet"); quiet {
				fmt.Fprintln(out, token)
				return nil
			}
			fmt.Fprintf(out, "Admin token: %s\n", token)
			fmt.Fprintln(out)
			fmt.Fprintf(out, "Use it as 'Authorization: Bearer %s' or ?token=%s\n", token, token)
			return nil
		},
	}

	cmd.Flags().BoolP("quiet", "q", false, "print only the token")
	return cmd
}

func readToken(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("no server running (token file not found)\nStart the server with: adflow serve")
		}
		return "", fmt.Errorf("failed to read token file: %w", err)
	}

	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", fmt.Errorf("token file is empty. Restart the server with: adflow serve")
	}
	return token, nil
}
