package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/kevinaud/rpc-streaming-prototype/internal/client"
	"github.com/kevinaud/rpc-streaming-prototype/internal/logging"
	"github.com/kevinaud/rpc-streaming-prototype/internal/tui/app"
)

const envPrefix = "APPROVAL"

// Settings are the CLI's global options, from flags, APPROVAL_* variables
// or a config file, in that order of precedence.
type Settings struct {
	Server   string        `mapstructure:"server"`
	Timeout  time.Duration `mapstructure:"timeout"`
	LogLevel string        `mapstructure:"log-level"`
}

type root struct {
	v        *viper.Viper
	settings Settings
	log      *zap.Logger
}

// NewRootCommand builds the approval-cli command tree.
func NewRootCommand() *cobra.Command {
	r := &root{v: viper.New(), log: zap.NewNop()}

	cmd := &cobra.Command{
		Use:   "approval-cli",
		Short: "Propose and approve work over a shared session",
		Long: `approval-cli talks to an approval server. Proposers submit proposals
and wait for decisions; approvers follow the session live and decide
the pending proposal.`,
		SilenceUsage:      true,
		PersistentPreRunE: r.load,
	}

	flags := cmd.PersistentFlags()
	flags.StringP("config", "c", "", "config file (yaml)")
	flags.String("server", "http://127.0.0.1:50051", "approval server base URL")
	flags.Duration("timeout", 10*time.Second, "timeout for unary requests")
	flags.String("log-level", "warn", "log level (debug, info, warn, error)")
	_ = r.v.BindPFlags(flags)

	cmd.AddCommand(r.sessionCommand(), r.proposeCommand(), r.approveCommand())
	return cmd
}

func (r *root) load(cmd *cobra.Command, _ []string) error {
	r.v.SetEnvPrefix(envPrefix)
	r.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	r.v.AutomaticEnv()

	if path := r.v.GetString("config"); path != "" {
		r.v.SetConfigFile(path)
		if err := r.v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", path, err)
		}
	}
	if err := r.v.Unmarshal(&r.settings); err != nil {
		return fmt.Errorf("decode settings: %w", err)
	}

	log, err := logging.New(r.settings.LogLevel, false)
	if err != nil {
		return err
	}
	r.log = log
	return nil
}

func (r *root) client() *client.Client {
	return client.New(r.settings.Server, client.WithHTTPClient(&http.Client{Timeout: r.settings.Timeout}))
}

func (r *root) sessionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Create or inspect sessions",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "create",
		Short: "Create a new session and print its ID",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := r.client().CreateSession(cmd.Context())
			if err != nil {
				return err
			}
			NewDisplay(cmd.OutOrStdout()).SessionCreated(s.ID)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "get SESSION_ID",
		Short: "Print a session and its proposals as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := r.client().GetSession(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(s)
		},
	})

	return cmd
}

func (r *root) proposeCommand() *cobra.Command {
	var sessionID string
	cmd := &cobra.Command{
		Use:   "propose",
		Short: "Submit proposals and wait for each decision",
		Long: `Submit proposals interactively. Without --session you are asked
whether to start a new session or continue an existing one.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			p := NewProposer(
				FromClient(r.client()),
				NewPrompter(cmd.InOrStdin(), cmd.OutOrStdout()),
				NewDisplay(cmd.OutOrStdout()),
				r.log,
			)

			id := sessionID
			if id == "" {
				var err error
				if id, err = p.ResolveSession(ctx); err != nil {
					if ctx.Err() != nil {
						return nil
					}
					return err
				}
			}
			return p.Run(ctx, id)
		},
	}
	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "session ID to submit to")
	return cmd
}

func (r *root) approveCommand() *cobra.Command {
	var sessionID string
	cmd := &cobra.Command{
		Use:   "approve",
		Short: "Follow a session live and decide its proposals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m := app.New(app.FromClient(r.client()), sessionID)
			prog := tea.NewProgram(m,
				tea.WithAltScreen(),
				tea.WithContext(cmd.Context()),
			)
			_, err := prog.Run()
			if err != nil && cmd.Context().Err() == nil {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "session ID to follow")
	_ = cmd.MarkFlagRequired("session")
	return cmd
}
