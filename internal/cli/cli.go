package cli

import (
	"os"

	"github.com/mailpilot/agent/internal/config"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var (
	db  *gorm.DB
	cfg *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "mailpilot",
	Short: "Mail Pilot email auto-reply agent",
	Long: `Mail Pilot polls registered mailboxes on a schedule, classifies unread
messages by intent and drafts replies with a language model.

Commands:
  mailpilot serve                   # start the API server and scheduler
  mailpilot cycle --email a@b.com   # run one cycle for an account now
  mailpilot accounts list           # list registered accounts
  mailpilot accounts enable a@b.com # switch the agent on for an account
  mailpilot accounts disable a@b.com

Run without arguments to start the API server and scheduler.`,
}

// Execute runs the CLI with the provided database and config
func Execute(database *gorm.DB, conf *config.Config) {
	db = database
	cfg = conf

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(cycleCmd)
	rootCmd.AddCommand(accountsCmd)
}
