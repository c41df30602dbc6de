// Package cli implements the cloudauth command.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dmitrymomot/cloudauth"
	"github.com/dmitrymomot/cloudauth/pkg/config"
	"github.com/dmitrymomot/cloudauth/pkg/logger"
	"github.com/dmitrymomot/cloudauth/pkg/scopes"
	"github.com/dmitrymomot/cloudauth/pkg/secrets"
	"github.com/dmitrymomot/cloudauth/pkg/session"
)

// ErrUsage is returned for unknown commands and bad arguments.
var ErrUsage = errors.New("usage error")

const usage = `usage: cloudauth [-v N] [-log-json] [-env FILE] <command> [flags]

commands:
  login   [-scopes a,b] [-no-browser]   sign in and store a new session
  list    [-scopes a,b] [-o text|json|yaml]
  logout  [-all] [ID]                   remove one or all sessions
  token   [-scopes a,b]                 print an access token, signing in if needed
  keygen                                print a new encryption key
`

// App runs commands. The zero value reads configuration from the
// environment and writes nowhere.
type App struct {
	Stdout io.Writer
	Stderr io.Writer

	// Options are passed to cloudauth.New after the ones App derives.
	Options []cloudauth.Option

	// Config overrides LoadConfig, mainly for tests.
	Config func(opts ...config.Option) (cloudauth.Config, error)
}

func (a *App) out() io.Writer {
	if a.Stdout == nil {
		return io.Discard
	}
	return a.Stdout
}

func (a *App) errOut() io.Writer {
	if a.Stderr == nil {
		return io.Discard
	}
	return a.Stderr
}

// Run parses global flags and dispatches to the command in args.
func (a *App) Run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("cloudauth", flag.ContinueOnError)
	fs.SetOutput(a.errOut())
	fs.Usage = func() { _, _ = io.WriteString(a.errOut(), usage) }
	verbosity := fs.Int("v", 0, "log verbosity: 0 warn, 1 info, 2 debug")
	envFile := fs.String("env", "", "load variables from this .env file")
	jsonLogs := fs.Bool("log-json", false, "write logs as JSON")
	if err := fs.Parse(args); err != nil {
		return errors.Join(ErrUsage, err)
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return ErrUsage
	}

	logOpts := []logger.Option{
		logger.WithVerbosity(*verbosity),
		logger.WithOutput(a.errOut()),
		logger.WithAttemptExtractor(),
	}
	if *jsonLogs {
		logOpts = append(logOpts, logger.WithJSONFormatter())
	}
	log := logger.New(logOpts...)

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	if cmd == "keygen" {
		return a.keygen()
	}

	var cfgOpts []config.Option
	if *envFile != "" {
		cfgOpts = append(cfgOpts, config.WithFiles(*envFile))
	}
	load := a.Config
	if load == nil {
		load = cloudauth.LoadConfig
	}

	run := func(fn func(m *cloudauth.Manager) error, extra ...cloudauth.Option) error {
		cfg, err := load(cfgOpts...)
		if err != nil {
			return err
		}
		opts := append([]cloudauth.Option{cloudauth.WithLogger(log)}, extra...)
		opts = append(opts, a.Options...)
		m, err := cloudauth.New(ctx, cfg, opts...)
		if err != nil {
			return err
		}
		defer m.Close()
		return fn(m)
	}

	switch cmd {
	case "login":
		return a.login(ctx, rest, run)
	case "list":
		return a.list(ctx, rest, run)
	case "logout":
		return a.logout(ctx, rest, run)
	case "token":
		return a.token(ctx, rest, run)
	}
	fs.Usage()
	return fmt.Errorf("%w: unknown command %q", ErrUsage, cmd)
}

type runner func(fn func(m *cloudauth.Manager) error, extra ...cloudauth.Option) error

func (a *App) printURL(url string) {
	_, _ = fmt.Fprintf(a.errOut(), "Open this URL to sign in:\n\n  %s\n\n", url)
}

func (a *App) login(ctx context.Context, args []string, run runner) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	fs.SetOutput(a.errOut())
	scopeList := fs.String("scopes", "", "comma-separated scopes, defaults to CLOUDAUTH_SCOPES")
	noBrowser := fs.Bool("no-browser", false, "print the sign-in URL instead of opening a browser")
	if err := fs.Parse(args); err != nil {
		return errors.Join(ErrUsage, err)
	}

	extra := []cloudauth.Option{cloudauth.WithAuthURLHandler(a.printURL)}
	if *noBrowser {
		extra = append(extra, cloudauth.WithBrowser(func(string) error { return nil }))
	}
	return run(func(m *cloudauth.Manager) error {
		rec, err := m.SignIn(ctx, splitScopes(*scopeList)...)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(a.out(), "Signed in as %s (session %s)\n", rec.Account.Label, rec.ID)
		return err
	}, extra...)
}

// listing is the serialized shape of a session in list output. Tokens are
// left out.
type listing struct {
	ID        string     `json:"id" yaml:"id"`
	Account   string     `json:"account" yaml:"account"`
	Name      string     `json:"name,omitempty" yaml:"name,omitempty"`
	Scopes    []string   `json:"scopes" yaml:"scopes"`
	CreatedAt time.Time  `json:"createdAt" yaml:"createdAt"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty" yaml:"expiresAt,omitempty"`
}

func toListing(records []session.Record) []listing {
	out := make([]listing, 0, len(records))
	for _, r := range records {
		out = append(out, listing{
			ID:        r.ID,
			Account:   r.Account.Label,
			Name:      r.Account.DisplayName,
			Scopes:    scopes.Normalize(r.Scopes),
			CreatedAt: r.CreatedAt,
			ExpiresAt: r.ExpiresAt,
		})
	}
	return out
}

func (a *App) list(ctx context.Context, args []string, run runner) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	fs.SetOutput(a.errOut())
	scopeList := fs.String("scopes", "", "only sessions covering these comma-separated scopes")
	format := fs.String("o", "text", "output format: text, json or yaml")
	if err := fs.Parse(args); err != nil {
		return errors.Join(ErrUsage, err)
	}
	switch *format {
	case "text", "json", "yaml":
	default:
		return fmt.Errorf("%w: unknown format %q", ErrUsage, *format)
	}

	return run(func(m *cloudauth.Manager) error {
		rows := toListing(m.Sessions(ctx, splitScopes(*scopeList)...))
		switch *format {
		case "json":
			enc := json.NewEncoder(a.out())
			enc.SetIndent("", "  ")
			return enc.Encode(rows)
		case "yaml":
			enc := yaml.NewEncoder(a.out())
			enc.SetIndent(2)
			if err := enc.Encode(rows); err != nil {
				return err
			}
			return enc.Close()
		}
		return writeTable(a.out(), rows)
	})
}

func writeTable(w io.Writer, rows []listing) error {
	if len(rows) == 0 {
		_, err := io.WriteString(w, "No sessions.\n")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tACCOUNT\tSCOPES\tEXPIRES")
	for _, r := range rows {
		expires := "never"
		if r.ExpiresAt != nil {
			expires = r.ExpiresAt.Local().Format(time.DateTime)
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.ID, r.Account, strings.Join(r.Scopes, ","), expires)
	}
	return tw.Flush()
}

func (a *App) logout(ctx context.Context, args []string, run runner) error {
	fs := flag.NewFlagSet("logout", flag.ContinueOnError)
	fs.SetOutput(a.errOut())
	all := fs.Bool("all", false, "remove every session")
	if err := fs.Parse(args); err != nil {
		return errors.Join(ErrUsage, err)
	}
	if *all == (fs.NArg() == 1) || fs.NArg() > 1 {
		return fmt.Errorf("%w: logout takes either -all or one session ID", ErrUsage)
	}

	return run(func(m *cloudauth.Manager) error {
		if *all {
			removed := m.SignOutAll(ctx)
			_, err := fmt.Fprintf(a.out(), "Removed %d session(s)\n", len(removed))
			return err
		}
		id := fs.Arg(0)
		if !m.SignOut(ctx, id) {
			return fmt.Errorf("session %q not found", id)
		}
		_, err := fmt.Fprintf(a.out(), "Removed session %s\n", id)
		return err
	})
}

func (a *App) token(ctx context.Context, args []string, run runner) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	fs.SetOutput(a.errOut())
	scopeList := fs.String("scopes", "", "comma-separated scopes the token must carry")
	if err := fs.Parse(args); err != nil {
		return errors.Join(ErrUsage, err)
	}

	return run(func(m *cloudauth.Manager) error {
		var (
			rec session.Record
			err error
		)
		if requested := splitScopes(*scopeList); len(requested) > 0 {
			found, ok := session.Newest(m.Sessions(ctx, requested...))
			if ok {
				rec = found
			} else {
				rec, err = m.SignIn(ctx, requested...)
			}
		} else {
			rec, err = m.Session(ctx)
		}
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(a.out(), rec.AccessToken)
		return err
	}, cloudauth.WithAuthURLHandler(a.printURL))
}

func (a *App) keygen() error {
	key, err := secrets.GenerateKey()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(a.out(), "%sENCRYPTION_KEY=%s\n", config.DefaultPrefix, secrets.EncodeKey(key))
	return err
}

func splitScopes(s string) []string {
	return scopes.Normalize(scopes.ParseScopes(s))
}
