// Package cmd holds the console's command tree.
package cmd

import (
	"context"
	"io"
	"os"

	"github.com/jrsteele09/go-auth-client/console"
	"github.com/jrsteele09/go-auth-client/internal/config"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// App carries the state shared by the commands of one invocation.
type App struct {
	configFile string
	location   string
	options    []console.Option

	config  config.Config
	console *console.Console
}

// NewRootCmd builds the command tree. Options are passed through to console.New.
func NewRootCmd(options ...console.Option) *cobra.Command {
	app := &App{options: options}

	root := &cobra.Command{
		Use:   "authclient",
		Short: "Session and route access console for the backend API",
		Long: `authclient logs in against the backend API, keeps the session in the
configured store and sends authenticated requests on its behalf.

Examples:
  authclient login --email ada@example.com --password secret
  authclient request GET /dashboard/stats
  authclient route /dashboard
  authclient logout
`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return app.open(cmd.Context(), cmd.ErrOrStderr())
		},
	}
	root.PersistentFlags().StringVar(&app.configFile, "config", os.Getenv("CONFIG_FILE"), "YAML config file")
	root.PersistentFlags().StringVar(&app.location, "location", "", "route the session starts at (default is the home route)")

	root.AddCommand(
		newLoginCmd(app),
		newLogoutCmd(app),
		newWhoamiCmd(app),
		newRequestCmd(app),
		newRouteCmd(app),
	)
	return root
}

// Execute runs the command tree with ctx.
func Execute(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}

func (a *App) open(ctx context.Context, logOut io.Writer) error {
	c, err := config.Load(a.configFile)
	if err != nil {
		return errors.Wrap(err, "[App.open] config")
	}
	a.config = c
	setupLogging(logOut, c.GetLogLevel())

	options := a.options
	if a.location != "" {
		options = append(append([]console.Option{}, options...), console.WithLocation(a.location))
	}
	con, err := console.New(ctx, c, options...)
	if err != nil {
		return errors.Wrap(err, "[App.open] console")
	}
	a.console = con
	return nil
}

// run wraps a command so the console is closed whether or not it fails.
func (a *App) run(fn func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		defer a.close()
		return fn(cmd, args)
	}
}

func (a *App) close() {
	if a.console != nil {
		a.console.Close()
		a.console = nil
	}
}

func setupLogging(out io.Writer, level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: out}).With().Timestamp().Logger()
}
