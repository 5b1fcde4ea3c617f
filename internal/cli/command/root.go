package command

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/reactq/internal/checkpoint/serialization"
	"github.com/yndnr/reactq/internal/cli/output"
	"github.com/yndnr/reactq/internal/config"
	"github.com/yndnr/reactq/internal/infra/buildinfo"
	"github.com/yndnr/reactq/internal/storage"
	"github.com/yndnr/reactq/internal/telemetry/logger"
)

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:    "reactq-ckpt",
		Usage:   "Inspect and verify reactq checkpoint stores",
		Version: buildinfo.String(),
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			InspectCommand(),
			VerifyCommand(),
			DumpCommand(),
			FilesCommand(),
			PruneCommand(),
			VersionCommand(),
		},
	}
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Configuration file (YAML)",
			EnvVars: []string{"REACTQ_CONFIG"},
		},
		&cli.StringFlag{
			Name:    "store",
			Aliases: []string{"s"},
			Usage:   "Store backend: memory, badger, snapshot",
		},
		&cli.StringFlag{
			Name:    "dir",
			Aliases: []string{"d"},
			Usage:   "Store data directory",
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Output format: table, json, yaml",
			Value:   "table",
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "Log level: debug, info, warn, error (overrides log.level)",
		},
	}
}

// GlobalFlags are the flags shared by all commands.
type GlobalFlags struct {
	Config   string
	Store    string
	Dir      string
	Output   string
	LogLevel string
}

// ParseGlobalFlags extracts the global flags from c.
func ParseGlobalFlags(c *cli.Context) *GlobalFlags {
	return &GlobalFlags{
		Config:   c.String("config"),
		Store:    c.String("store"),
		Dir:      c.String("dir"),
		Output:   c.String("output"),
		LogLevel: c.String("log-level"),
	}
}

// overrides maps flags to configuration keys. Unset flags are empty and
// ignored by the loader.
func (g *GlobalFlags) overrides() map[string]any {
	return map[string]any{
		"store.backend": g.Store,
		"store.dir":     g.Dir,
	}
}

// session is the state shared by one command invocation.
type session struct {
	cfg    *config.Config
	store  storage.Store
	closer io.Closer
	policy serialization.Policy
	log    *slog.Logger
	format output.Format
	out    io.Writer
	errOut io.Writer
}

func openSession(c *cli.Context) (*session, error) {
	flags := ParseGlobalFlags(c)
	format, err := output.ParseFormat(flags.Output)
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(flags.Config, flags.overrides())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	errOut := c.App.ErrWriter
	if errOut == nil {
		errOut = io.Discard
	}
	logCfg := cfg.Log
	logCfg.Output = errOut
	l, err := logger.New(logCfg)
	if err != nil {
		return nil, err
	}
	if flags.LogLevel != "" {
		if err := config.VerifyLogLevel(flags.LogLevel); err != nil {
			return nil, err
		}
		logger.SetLevel(flags.LogLevel)
	}
	logger.SetDefault(l)

	policy, err := config.Policy(cfg.Checkpoint.Serializer)
	if err != nil {
		return nil, err
	}

	st, closer, err := config.OpenStore(cfg.Store, nil, l.Slog())
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Store.Backend, err)
	}
	logger.Debug("store opened",
		"backend", cfg.Store.Backend,
		"dir", cfg.Store.Dir,
		"serializer", policy.Default().Name())

	return &session{
		cfg:    cfg,
		store:  st,
		closer: closer,
		policy: policy,
		log:    l.Slog(),
		format: format,
		out:    c.App.Writer,
		errOut: errOut,
	}, nil
}

func (s *session) Close() error {
	return s.closer.Close()
}

// emit writes data in the selected format.
func (s *session) emit(data any) error {
	return output.NewFormatter(s.format).Format(s.out, data)
}

// reader opens a view of the committed state.
func (s *session) reader() (storage.StateReader, error) {
	r, err := s.store.Reader()
	if err != nil {
		return nil, fmt.Errorf("open reader: %w", err)
	}
	return r, nil
}

// withSession opens a session around action.
func withSession(action func(c *cli.Context, s *session) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		s, err := openSession(c)
		if err != nil {
			return err
		}
		defer func() {
			if err := s.Close(); err != nil {
				logger.Warn("close store", "error", err)
			}
		}()
		return action(c, s)
	}
}
