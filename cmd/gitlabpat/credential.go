package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ericfisherdev/gitlabpat/internal/application"
	"github.com/ericfisherdev/gitlabpat/internal/domain/model"
)

func newCredentialCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credential",
		Short: "Manage stored credentials",
	}

	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Store a GitLab username/password credential in the system store",
		Args:  cobra.NoArgs,
		RunE:  runCredentialAdd,
	}
	addCmd.Flags().String("id", "", "Credential ID (default: random UUID)")
	addCmd.Flags().String("username", "", "GitLab username")
	addPasswordFlags(addCmd)
	addCmd.Flags().String("description", "", "Free-form description")
	addCmd.Flags().String("domain", "", "Name of the domain to file the credential under (default: global)")
	addCmd.Flags().String("scope", string(model.CredentialScopeGlobal), "Credential scope: GLOBAL, SYSTEM or USER")
	_ = addCmd.MarkFlagRequired("username")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List stored credentials",
		Args:  cobra.NoArgs,
		RunE:  runCredentialList,
	}

	domainsCmd := &cobra.Command{
		Use:   "domains",
		Short: "List credential domains",
		Args:  cobra.NoArgs,
		RunE:  runCredentialDomains,
	}

	cmd.AddCommand(addCmd, listCmd, domainsCmd)
	return cmd
}

func addPasswordFlags(cmd *cobra.Command) {
	cmd.Flags().String("password", "", "GitLab password (visible in process listings; prefer --password-stdin)")
	cmd.Flags().Bool("password-stdin", false, "Read the password from the first line of stdin")
	cmd.MarkFlagsMutuallyExclusive("password", "password-stdin")
}

// passwordFromFlags returns the password given by --password or
// --password-stdin.
func passwordFromFlags(cmd *cobra.Command) (model.Secret, error) {
	fromStdin, _ := cmd.Flags().GetBool("password-stdin")
	if !fromStdin {
		p, _ := cmd.Flags().GetString("password")
		if p == "" {
			return model.Secret{}, errors.New("a password is required: use --password or --password-stdin")
		}
		return model.NewSecret(p), nil
	}

	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return model.Secret{}, fmt.Errorf("read password from stdin: %w", err)
	}
	p := strings.TrimRight(line, "\r\n")
	if p == "" {
		return model.Secret{}, errors.New("empty password on stdin")
	}
	return model.NewSecret(p), nil
}

func runCredentialAdd(cmd *cobra.Command, _ []string) error {
	password, err := passwordFromFlags(cmd)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	id, _ := flags.GetString("id")
	username, _ := flags.GetString("username")
	description, _ := flags.GetString("description")
	domain, _ := flags.GetString("domain")
	scope, _ := flags.GetString("scope")
	out := newOutputFormatter(cmd)

	return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
		cred, err := a.credentials.AddUsernamePassword(ctx, application.StoreSystem, application.CredentialInput{
			ID:          id,
			Username:    username,
			Password:    password,
			Description: description,
			Domain:      domain,
			Scope:       model.CredentialScope(strings.ToUpper(scope)),
		})
		if err != nil {
			return err
		}

		if out.jsonMode {
			return out.printJSON(toCredentialRow(cred))
		}
		fmt.Fprintf(out.w, "Added credential %s\n", cred.ID)
		return nil
	})
}

type credentialRow struct {
	ID          string `json:"id"`
	Store       string `json:"store"`
	Kind        string `json:"kind"`
	Scope       string `json:"scope"`
	DomainID    int64  `json:"domain_id,omitempty"`
	DisplayName string `json:"display_name"`
	CreatedAt   string `json:"created_at"`
}

func toCredentialRow(c model.Credential) credentialRow {
	store := application.StoreSystem
	if c.Owner != model.SystemStore {
		store = application.StoreUser + ":" + c.Owner
	}
	return credentialRow{
		ID:          c.ID,
		Store:       store,
		Kind:        string(c.Kind),
		Scope:       string(c.Scope),
		DomainID:    c.DomainID,
		DisplayName: c.DisplayName(),
		CreatedAt:   c.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func runCredentialList(cmd *cobra.Command, _ []string) error {
	out := newOutputFormatter(cmd)

	return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
		creds, err := a.credentials.List(ctx)
		if err != nil {
			return err
		}

		data := make([]credentialRow, 0, len(creds))
		rows := make([][]string, 0, len(creds))
		for _, c := range creds {
			r := toCredentialRow(c)
			data = append(data, r)
			domain := "global"
			if r.DomainID != 0 {
				domain = strconv.FormatInt(r.DomainID, 10)
			}
			rows = append(rows, []string{r.ID, r.Kind, r.Scope, domain, r.DisplayName})
		}
		return out.table(data, []string{"ID", "KIND", "SCOPE", "DOMAIN", "NAME"}, rows)
	})
}

type domainRow struct {
	ID             int64    `json:"id"`
	Name           string   `json:"name"`
	Description    string   `json:"description"`
	AutoGenerated  bool     `json:"auto_generated"`
	Specifications []string `json:"specifications"`
}

func runCredentialDomains(cmd *cobra.Command, _ []string) error {
	out := newOutputFormatter(cmd)

	return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
		domains, err := a.credentials.ListDomains(ctx)
		if err != nil {
			return err
		}

		data := make([]domainRow, 0, len(domains))
		rows := make([][]string, 0, len(domains))
		for _, d := range domains {
			specs := make([]string, 0, len(d.Specifications))
			for _, s := range d.Specifications {
				spec := string(s.Kind) + "=" + s.Includes
				if s.Excludes != "" {
					spec += " !" + s.Excludes
				}
				specs = append(specs, spec)
			}
			data = append(data, domainRow{
				ID:             d.ID,
				Name:           d.Name,
				Description:    d.Description,
				AutoGenerated:  d.AutoGenerated,
				Specifications: specs,
			})
			rows = append(rows, []string{strconv.FormatInt(d.ID, 10), d.Name, strings.Join(specs, "; "), d.Description})
		}
		return out.table(data, []string{"ID", "NAME", "SPECIFICATIONS", "DESCRIPTION"}, rows)
	})
}
