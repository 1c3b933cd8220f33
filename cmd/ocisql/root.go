package main

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/koustreak/ocisql/internal/config"
	"github.com/koustreak/ocisql/internal/database"
	"github.com/koustreak/ocisql/internal/database/mysql"
	"github.com/koustreak/ocisql/internal/database/postgres"
	"github.com/koustreak/ocisql/internal/database/sqlite"
	"github.com/koustreak/ocisql/internal/database/sqlnative"
	"github.com/koustreak/ocisql/internal/logger"
)

const Version = "0.3.0"

// app carries the per-invocation configuration shared by subcommands.
type app struct {
	v   *viper.Viper
	cfg *config.Config
	log *logger.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:   "ocisql",
		Short: "OCI-style SQL driver",
		Long: fmt.Sprintf(`ocisql (v%s)

Runs statements through the environment/connection/cursor driver over a
PostgreSQL, MySQL or SQLite backend. Settings come from flags, OCISQL_<flag>
environment variables (.env files are read too) and an optional YAML file.`, Version),
		SilenceUsage:      true,
		PersistentPreRunE: a.load,
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "YAML configuration file")
	flags.String("backend", "", "backend to use (postgres, pq, mysql, sqlite)")
	flags.String("source", "", "data source: host[:port][/db], a driver DSN or a SQLite file")
	flags.String("user", "", "logon user")
	flags.String("password", "", "logon password")
	flags.String("precision", "", "number decoding (int64, double)")
	flags.Int("prefetch-rows", 0, "rows prefetched per round trip")
	flags.Bool("autocommit", true, "commit each statement on success")
	flags.String("log-level", "", "log level (debug, info, warn, error, disabled)")
	flags.String("log-format", "", "log format (json, console)")

	root.AddCommand(
		newQueryCmd(a),
		newTablesCmd(a),
		newServeCmd(a),
		&cobra.Command{
			Use:   "version",
			Short: "Print the version number of ocisql",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "ocisql v%s\n", Version)
			},
		},
	)
	return root
}

// load resolves the configuration: flags, then OCISQL_* variables, then the
// YAML file, then defaults.
func (a *app) load(cmd *cobra.Command, _ []string) error {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	a.v.SetEnvPrefix("ocisql")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()
	if err := a.v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	cfg := config.Default()
	if path := a.v.GetString("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	override := func(key string, dst *string) {
		if s := a.v.GetString(key); s != "" {
			*dst = s
		}
	}
	var backend, precision string
	override("backend", &backend)
	override("precision", &precision)
	override("source", &cfg.Source)
	override("user", &cfg.User)
	override("password", &cfg.Password)
	override("log-level", &cfg.Log.Level)
	override("log-format", &cfg.Log.Format)
	if backend != "" {
		cfg.Backend = config.Backend(backend)
	}
	if precision != "" {
		cfg.Precision = config.Precision(precision)
	}
	if a.v.IsSet("prefetch-rows") {
		cfg.PrefetchRows = a.v.GetInt("prefetch-rows")
	}
	if a.v.IsSet("autocommit") {
		cfg.AutoCommit = a.v.GetBool("autocommit")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	a.cfg = cfg
	a.log = logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cmd.ErrOrStderr(),
	})
	return nil
}

// dialect returns the backend dialect selected by the configuration.
func (a *app) dialect() (sqlnative.Dialect, error) {
	switch a.cfg.Backend {
	case config.BackendPostgres:
		return postgres.Dialect(), nil
	case config.BackendPQ:
		return postgres.PQ(), nil
	case config.BackendMySQL:
		return mysql.Dialect(), nil
	case config.BackendSQLite:
		return sqlite.Dialect(), nil
	}
	return sqlnative.Dialect{}, fmt.Errorf("unknown backend %q", a.cfg.Backend)
}

// environment opens an environment over the selected backend.
func (a *app) environment() (*database.Environment, sqlnative.Dialect, error) {
	d, err := a.dialect()
	if err != nil {
		return nil, d, err
	}
	lib := sqlnative.New(d, sqlnative.WithLogger(a.log))
	env, err := database.NewEnvironment(lib,
		database.WithLogger(a.log),
		database.WithInt64(a.cfg.Int64()),
		database.WithPrefetch(a.cfg.PrefetchRows),
	)
	return env, d, err
}
