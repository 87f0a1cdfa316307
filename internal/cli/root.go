package cli

import (
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/me/wftemplates/internal/logging"
)

// EnvServer names the environment variable holding the default server URL.
const EnvServer = "WFREPO_SERVER"

var (
	flagServer       string
	flagDebug        bool
	flagLogLevel     string
	flagLogFormat    string
	flagOutput       string
	flagFetchTimeout time.Duration

	logger *slog.Logger
	client *Client
)

// defaultServer returns the default API root, checking WFREPO_SERVER first.
func defaultServer() string {
	if s := os.Getenv(EnvServer); s != "" {
		return s
	}
	return "http://localhost:5005/workflow-repository/api/v1"
}

// NewRootCmd creates the root cobra command for the wfrepo CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "wfrepo",
		Short: "wfrepo: workflow template repository tool",
		Long: "wfrepo resolves and checks workflow templates locally and queries a " +
			"running workflow template server.",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if flagDebug {
				flagLogLevel = "debug"
			}
			logger = logging.NewLoggerWithWriter(logging.ParseLevel(flagLogLevel), flagLogFormat, cmd.ErrOrStderr())
			client = NewClient(flagServer, logger)
		},
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flagServer, "server", defaultServer(), "template server API root (or "+EnvServer+" env)")
	pf.BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	pf.StringVar(&flagLogLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	pf.StringVar(&flagLogFormat, "log-format", "text", "Log format (text, json, pretty)")
	pf.StringVarP(&flagOutput, "output", "o", "json", "Document output format (json, yaml)")
	pf.DurationVar(&flagFetchTimeout, "fetch-timeout", 30*time.Second, "Timeout for remote document fetches")

	root.AddCommand(
		newResolveCmd(),
		newCheckCmd(),
		newListCmd(),
		newGetCmd(),
		newLoadsCmd(),
	)

	return root
}
