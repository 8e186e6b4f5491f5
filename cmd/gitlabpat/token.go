package main

import (
	"context"

	"github.com/spf13/cobra"
)

func newTokenCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Create GitLab personal access tokens",
	}
	cmd.PersistentFlags().String("server-url", "", "GitLab server URL (default: GITLABPAT_DEFAULT_SERVER_URL)")

	byPasswordCmd := &cobra.Command{
		Use:   "by-password",
		Short: "Create a token from a GitLab username and password",
		Args:  cobra.NoArgs,
		RunE:  runTokenByPassword,
	}
	byPasswordCmd.Flags().String("username", "", "GitLab username")
	addPasswordFlags(byPasswordCmd)
	_ = byPasswordCmd.MarkFlagRequired("username")

	byCredentialsCmd := &cobra.Command{
		Use:   "by-credentials",
		Short: "Create a token from a stored username/password credential",
		Args:  cobra.NoArgs,
		RunE:  runTokenByCredentials,
	}
	byCredentialsCmd.Flags().String("credentials-id", "", "ID of the stored credential")

	candidatesCmd := &cobra.Command{
		Use:   "candidates",
		Short: "List stored credentials usable for the server",
		Args:  cobra.NoArgs,
		RunE:  runTokenCandidates,
	}

	cmd.AddCommand(byPasswordCmd, byCredentialsCmd, candidatesCmd)
	return cmd
}

func runTokenByPassword(cmd *cobra.Command, _ []string) error {
	password, err := passwordFromFlags(cmd)
	if err != nil {
		return err
	}
	serverURL, _ := cmd.Flags().GetString("server-url")
	username, _ := cmd.Flags().GetString("username")
	out := newOutputFormatter(cmd)

	return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
		result, err := a.tokens.CreateTokenByPassword(ctx, serverURL, username, password)
		if err != nil {
			return err
		}
		return out.validation(result)
	})
}

func runTokenByCredentials(cmd *cobra.Command, _ []string) error {
	serverURL, _ := cmd.Flags().GetString("server-url")
	credentialsID, _ := cmd.Flags().GetString("credentials-id")
	out := newOutputFormatter(cmd)

	return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
		result, err := a.tokens.CreateTokenByCredentials(ctx, serverURL, credentialsID)
		if err != nil {
			return err
		}
		return out.validation(result)
	})
}

type optionRow struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

func runTokenCandidates(cmd *cobra.Command, _ []string) error {
	serverURL, _ := cmd.Flags().GetString("server-url")
	out := newOutputFormatter(cmd)

	return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
		options, err := a.tokens.FillCredentialsItems(ctx, serverURL, "")
		if err != nil {
			return err
		}

		data := make([]optionRow, 0, len(options))
		rows := make([][]string, 0, len(options))
		for _, o := range options {
			data = append(data, optionRow{Name: o.Name, Value: o.Value})
			rows = append(rows, []string{o.Value, o.Name})
		}
		return out.table(data, []string{"ID", "NAME"}, rows)
	})
}
