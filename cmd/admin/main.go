package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

const (
	defaultAPI = "http://localhost:8080"
)

type policyResponse struct {
	Name           string `json:"name"`
	HotCommitLimit int    `json:"hotCommitLimit"`
	HotDuration    string `json:"hotDuration"`
	Locked         bool   `json:"locked"`
}

type validationResponse struct {
	ID          uint      `json:"id"`
	ContentID   uint      `json:"content_id"`
	Version     string    `json:"version"`
	Status      string    `json:"status"`
	ValidatorID *uint     `json:"validator_id"`
	DatePropose time.Time `json:"date_propose"`
}

type commitResponse struct {
	Hash       string    `json:"hash"`
	AuthorName string    `json:"author"`
	Message    string    `json:"message"`
	Timestamp  time.Time `json:"timestamp"`
	Archived   bool      `json:"archived"`
}

type publicationResponse struct {
	ID                uint       `json:"id"`
	ContentPublicSlug string     `json:"content_public_slug"`
	ShaPublic         string     `json:"sha_public"`
	PublicationDate   time.Time  `json:"publication_date"`
	UpdateDate        *time.Time `json:"update_date"`
	MustRedirect      bool       `json:"must_redirect"`
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cl := &apiClient{}
	var dumpJSON bool

	root := &cobra.Command{
		Use:           "contentvs-admin",
		Short:         "Staff tooling for the content engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cl.base, "api", envDefault("CONTENTVS_API", defaultAPI), "Base URL of the REST API")
	root.PersistentFlags().StringVar(&cl.userID, "user", envDefault("CONTENTVS_ADMIN_ID", "1"), "Staff user id sent as X-Author-ID")
	root.PersistentFlags().StringVar(&cl.roles, "roles", "staff", "Roles sent as X-Author-Roles")
	root.PersistentFlags().BoolVar(&dumpJSON, "json", false, "Output JSON instead of table")

	output := func(v any, table func(tw *tabwriter.Writer)) error {
		if dumpJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(v)
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		table(tw)
		return tw.Flush()
	}

	policyCommand := &cobra.Command{
		Use:   "policy",
		Short: "Inspect or change the retention policy of a content",
	}
	root.AddCommand(policyCommand)

	policyCommand.AddCommand(&cobra.Command{
		Use:   "get <content id>",
		Short: "Show the retention policy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var policy policyResponse
			if err := cl.call("GET", "/api/v1/contents/"+args[0]+"/retention", nil, &policy); err != nil {
				return err
			}
			return output(policy, func(tw *tabwriter.Writer) { printPolicy(tw, policy) })
		},
	})

	var hotLimit int
	var hotDuration string
	setPolicy := &cobra.Command{
		Use:   "set <content id>",
		Short: "Lock a retention policy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{}
			if cmd.Flags().Changed("hot-limit") {
				body["hotCommitLimit"] = hotLimit
			}
			if hotDuration != "" {
				body["hotDuration"] = hotDuration
			}
			var policy policyResponse
			if err := cl.call("PUT", "/api/v1/contents/"+args[0]+"/retention", body, &policy); err != nil {
				return err
			}
			return output(policy, func(tw *tabwriter.Writer) { printPolicy(tw, policy) })
		},
	}
	setPolicy.Flags().IntVar(&hotLimit, "hot-limit", 0, "Commits kept in the hot store")
	setPolicy.Flags().StringVar(&hotDuration, "hot-duration", "", "Age after which commits are archived (e.g. 720h)")
	policyCommand.AddCommand(setPolicy)

	root.AddCommand(&cobra.Command{
		Use:   "queue",
		Short: "List open validations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var list []validationResponse
			if err := cl.call("GET", "/api/v1/validations", nil, &list); err != nil {
				return err
			}
			return output(list, func(tw *tabwriter.Writer) {
				fmt.Fprintf(tw, "ID\tContent\tStatus\tValidator\tProposed\tVersion\n")
				for _, v := range list {
					validator := "-"
					if v.ValidatorID != nil {
						validator = strconv.FormatUint(uint64(*v.ValidatorID), 10)
					}
					fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%s\t%s\n", v.ID, v.ContentID, v.Status, validator, v.DatePropose.Format(time.RFC3339), shortSha(v.Version))
				}
			})
		},
	})

	var limit int
	history := &cobra.Command{
		Use:   "history <content id>",
		Short: "List the commits of a content",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var commits []commitResponse
			if err := cl.call("GET", fmt.Sprintf("/api/v1/contents/%s/history?limit=%d", args[0], limit), nil, &commits); err != nil {
				return err
			}
			return output(commits, func(tw *tabwriter.Writer) {
				fmt.Fprintf(tw, "Commit\tAuthor\tDate\tArchived\tMessage\n")
				for _, c := range commits {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\n", shortSha(c.Hash), c.AuthorName, c.Timestamp.Format(time.RFC3339), c.Archived, c.Message)
				}
			})
		},
	}
	history.Flags().IntVar(&limit, "limit", 20, "Maximum number of commits")
	root.AddCommand(history)

	root.AddCommand(&cobra.Command{
		Use:   "publications <content id>",
		Short: "List the publication events of a content",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var rows []publicationResponse
			if err := cl.call("GET", "/api/v1/contents/"+args[0]+"/publications", nil, &rows); err != nil {
				return err
			}
			return output(rows, func(tw *tabwriter.Writer) {
				fmt.Fprintf(tw, "ID\tSlug\tVersion\tPublished\tUpdated\tRedirect\n")
				for _, p := range rows {
					updated := "-"
					if p.UpdateDate != nil {
						updated = p.UpdateDate.Format(time.RFC3339)
					}
					fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%t\n", p.ID, p.ContentPublicSlug, shortSha(p.ShaPublic), p.PublicationDate.Format(time.RFC3339), updated, p.MustRedirect)
				}
			})
		},
	})

	var comment string
	revoke := &cobra.Command{
		Use:   "revoke <content id>",
		Short: "Take a publication offline and reopen its validation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var v validationResponse
			if err := cl.call("POST", "/api/v1/contents/"+args[0]+"/revoke", map[string]string{"comment": comment}, &v); err != nil {
				return err
			}
			return output(v, func(tw *tabwriter.Writer) {
				fmt.Fprintf(tw, "Validation\tStatus\tVersion\n")
				fmt.Fprintf(tw, "%d\t%s\t%s\n", v.ID, v.Status, shortSha(v.Version))
			})
		},
	}
	revoke.Flags().StringVar(&comment, "comment", "", "Reason sent to the authors (required)")
	_ = revoke.MarkFlagRequired("comment")
	root.AddCommand(revoke)

	return root
}

func printPolicy(tw *tabwriter.Writer, policy policyResponse) {
	fmt.Fprintf(tw, "Repo\tHotLimit\tHotDuration\tLocked\n")
	fmt.Fprintf(tw, "%s\t%d\t%s\t%t\n", policy.Name, policy.HotCommitLimit, policy.HotDuration, policy.Locked)
}

func shortSha(sha string) string {
	if len(sha) > 12 {
		return sha[:12]
	}
	return sha
}

func envDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
