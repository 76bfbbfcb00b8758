package cli

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/mailpilot/agent/internal/agent"
	"github.com/mailpilot/agent/internal/api"
	"github.com/mailpilot/agent/internal/classify"
	"github.com/mailpilot/agent/internal/llm"
	"github.com/mailpilot/agent/internal/mailbox"
	"github.com/mailpilot/agent/internal/services"
	"github.com/spf13/cobra"
)

var cycleEmail string

// buildServices assembles the pipeline the same way the API server does
func buildServices() (*services.AccountService, *services.LogService, *agent.Runner) {
	gateway := mailbox.NewIMAPGateway()
	classifier := classify.NewClassifier(classify.Ruleset{
		Promotional: cfg.Keywords.Promotional,
		Meeting:     cfg.Keywords.Meeting,
		Support:     cfg.Keywords.Support,
		NoReply:     cfg.Keywords.NoReply,
	})
	llmClient := llm.NewClient(cfg.LLMBaseURL, cfg.LLMModel)
	runner := agent.NewRunner(gateway, classifier, llmClient, cfg.FetchLimit)

	accountService := services.NewAccountService(db, cfg.GetEncryptionKey(), gateway, services.ServerDefaults{
		IMAPHost: cfg.IMAPHost,
		IMAPPort: cfg.IMAPPort,
		SMTPHost: cfg.SMTPHost,
		SMTPPort: cfg.SMTPPort,
	})
	return accountService, services.NewLogService(db), runner
}

// serveCmd starts the API server and scheduler, same as running with no
// arguments
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server and scheduler",
	Run: func(cmd *cobra.Command, args []string) {
		router, scheduler, err := api.SetupRouter(db, cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		scheduler.Start()
		defer scheduler.Stop()

		if err := router.Run(":" + cfg.APIPort); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

// cycleCmd runs a single fetch-classify-reply pass for one account and
// prints the resulting action log
var cycleCmd = &cobra.Command{
	Use:   "cycle",
	Short: "Run one cycle for a registered account immediately",
	Run: func(cmd *cobra.Command, args []string) {
		if cycleEmail == "" {
			fmt.Fprintln(os.Stderr, "Error: --email is required")
			os.Exit(1)
		}

		accountService, logService, runner := buildServices()

		account, err := accountService.GetByEmail(cycleEmail)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		password, err := accountService.DecryptedPassword(account)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		apiKey, err := accountService.DecryptedAPIKey(account)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		entries, completedAt, err := runner.RunCycle(account, password, apiKey)
		if err != nil {
			_ = logService.LogCycleError(account.ID, err)
			fmt.Fprintf(os.Stderr, "Cycle failed: %v\n", err)
			os.Exit(1)
		}

		if err := logService.SaveCycleEntries(account.ID, entries); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: could not persist action log: %v\n", err)
		}
		if err := accountService.UpdateLastRun(account.ID, completedAt); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: could not update last run: %v\n", err)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SENDER\tSUBJECT\tINTENT\tACTION")
		for _, entry := range entries {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", entry.Sender, entry.Subject, entry.Intent, entry.Action)
		}
		w.Flush()
		fmt.Printf("Cycle completed at %s: %d actions\n", completedAt.Format(time.RFC3339), len(entries))
	},
}

// accountsCmd groups account management subcommands
var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "Manage registered accounts",
}

var accountsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered accounts",
	Run: func(cmd *cobra.Command, args []string) {
		accountService, _, _ := buildServices()

		accounts, err := accountService.ListAll()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "EMAIL\tACTIVE\tINTERVAL\tLAST RUN")
		for _, account := range accounts {
			lastRun := "never"
			if account.LastRunAt != nil {
				lastRun = account.LastRunAt.Format(time.RFC3339)
			}
			fmt.Fprintf(w, "%s\t%t\t%dm\t%s\n", account.Email, account.Active, account.IntervalMinutes, lastRun)
		}
		w.Flush()
	},
}

var accountsEnableCmd = &cobra.Command{
	Use:   "enable <email>",
	Short: "Activate the agent for an account",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		setActive(args[0], true)
	},
}

var accountsDisableCmd = &cobra.Command{
	Use:   "disable <email>",
	Short: "Deactivate the agent for an account",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		setActive(args[0], false)
	},
}

func setActive(email string, active bool) {
	accountService, _, _ := buildServices()
	if err := accountService.SetActive(email, active); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	state := "disabled"
	if active {
		state = "enabled"
	}
	fmt.Printf("Account %s %s\n", email, state)
}

func init() {
	cycleCmd.Flags().StringVar(&cycleEmail, "email", "", "account email address")
	accountsCmd.AddCommand(accountsListCmd)
	accountsCmd.AddCommand(accountsEnableCmd)
	accountsCmd.AddCommand(accountsDisableCmd)
}
