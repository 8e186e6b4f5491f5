package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/ericfisherdev/gitlabpat/internal/domain/model"
)

func newUserCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage API users",
	}

	createCmd := &cobra.Command{
		Use:   "create NAME",
		Short: "Register an API user and print its API key",
		Args:  cobra.ExactArgs(1),
		RunE:  runUserCreate,
	}
	createCmd.Flags().Bool("admin", false, "Grant the administer permission")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List API users",
		Args:  cobra.NoArgs,
		RunE:  runUserList,
	}

	cmd.AddCommand(createCmd, listCmd)
	return cmd
}

func runUserCreate(cmd *cobra.Command, args []string) error {
	admin, _ := cmd.Flags().GetBool("admin")
	out := newOutputFormatter(cmd)

	return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
		user, key, err := a.users.CreateUser(ctx, args[0], admin)
		if err != nil {
			return err
		}

		if out.jsonMode {
			return out.printJSON(map[string]any{
				"id":      user.ID,
				"name":    user.Name,
				"admin":   user.Admin,
				"api_key": key.Reveal(),
			})
		}
		fmt.Fprintf(out.w, "Created user %s (admin: %t)\n", user.Name, user.Admin)
		fmt.Fprintf(out.w, "API key (shown once): %s\n", key.Reveal())
		return nil
	})
}

type userRow struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Admin     bool   `json:"admin"`
	CreatedAt string `json:"created_at"`
}

func runUserList(cmd *cobra.Command, _ []string) error {
	out := newOutputFormatter(cmd)

	return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
		users, err := a.users.List(ctx)
		if err != nil {
			return err
		}

		data := make([]userRow, 0, len(users))
		rows := make([][]string, 0, len(users))
		for _, u := range users {
			data = append(data, toUserRow(u))
			rows = append(rows, []string{u.ID, u.Name, strconv.FormatBool(u.Admin), u.CreatedAt.UTC().Format(time.RFC3339)})
		}
		return out.table(data, []string{"ID", "NAME", "ADMIN", "CREATED"}, rows)
	})
}

func toUserRow(u model.User) userRow {
	return userRow{ID: u.ID, Name: u.Name, Admin: u.Admin, CreatedAt: u.CreatedAt.UTC().Format(time.RFC3339)}
}
