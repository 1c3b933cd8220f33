package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/koustreak/ocisql/internal/database"
)

// pollInterval paces the polling of async logons and pending statements.
const pollInterval = 10 * time.Millisecond

func newQueryCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query <sql>",
		Short: "Execute one statement and print its rows or row count",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			async, _ := cmd.Flags().GetBool("async")
			return a.run(cmd.Context(), cmd.OutOrStdout(), args[0], async)
		},
	}
	cmd.Flags().Bool("async", false, "connect asynchronously and poll until the logon completes")
	return cmd
}

func newTablesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "List the tables of the connected schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := a.dialect()
			if err != nil {
				return err
			}
			return a.run(cmd.Context(), cmd.OutOrStdout(), d.Tables, false)
		},
	}
}

// run connects, executes sql and prints the outcome to w.
func (a *app) run(ctx context.Context, w io.Writer, sql string, async bool) (err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	env, _, err := a.environment()
	if err != nil {
		return err
	}
	defer func() {
		if _, cerr := env.Close(); err == nil {
			err = cerr
		}
	}()

	conn, err := a.connect(ctx, env, async)
	if err != nil {
		return err
	}
	defer func() {
		if _, cerr := conn.Close(); err == nil {
			err = cerr
		}
	}()

	if a.cfg.AutoCommit {
		err = await(ctx, func() (database.Status, error) { return conn.SetAutoCommit(ctx, true) })
		if err != nil {
			return err
		}
	}

	res, err := conn.Execute(ctx, sql)
	for err == nil && res.Pending != nil {
		if err = sleep(ctx); err == nil {
			res, err = conn.Resume(ctx, res.Pending)
		}
	}
	if err != nil {
		return err
	}

	if res.Cursor == nil {
		fmt.Fprintf(w, "%d row(s) affected\n", res.RowsAffected)
		return nil
	}
	return printRows(ctx, w, res.Cursor)
}

func (a *app) connect(ctx context.Context, env *database.Environment, async bool) (*database.Connection, error) {
	cfg := a.cfg
	if !async {
		return env.Connect(ctx, cfg.Source, cfg.User, cfg.Password)
	}

	conn, status, err := env.ConnectAsync(ctx, cfg.Source, cfg.User, cfg.Password)
	for err == nil && status == database.StatusStillExecuting {
		a.log.Debug("waiting for logon")
		if err = sleep(ctx); err == nil {
			conn, status, err = env.PollConnect(conn)
		}
	}
	if err != nil {
		if status == database.StatusStillExecuting {
			// ctx ended mid-logon; collect and drop the connection so the
			// environment can be closed
			if c, jerr := env.JoinConnect(context.Background(), conn); jerr == nil {
				_, _ = c.Close()
			}
		}
		return nil, err
	}
	return conn, nil
}

// printRows writes a tab-separated header and one line per row.
func printRows(ctx context.Context, w io.Writer, cur *database.Cursor) error {
	defer cur.Close()

	names, err := cur.GetColumnNames()
	if err != nil {
		return err
	}
	fmt.Fprintln(w, strings.Join(names, "\t"))

	fields := make([]string, len(names))
	for {
		row, status, err := cur.Fetch(ctx)
		if err != nil {
			return err
		}
		if status == database.StatusStillExecuting {
			if err := sleep(ctx); err != nil {
				return err
			}
			continue
		}
		if row == nil {
			return nil
		}
		for i, v := range row {
			fields[i] = format(v)
		}
		fmt.Fprintln(w, strings.Join(fields, "\t"))
	}
}

func format(v any) string {
	switch v := v.(type) {
	case nil:
		return "NULL"
	case database.DateTime:
		return fmt.Sprintf("%04d-%02d-%02d %02d:%02d:%02d", v.Year, v.Month, v.Day, v.Hour, v.Minute, v.Second)
	default:
		return fmt.Sprint(v)
	}
}

// await re-invokes op until it no longer reports StatusStillExecuting.
func await(ctx context.Context, op func() (database.Status, error)) error {
	for {
		status, err := op()
		if err != nil || status != database.StatusStillExecuting {
			return err
		}
		if err := sleep(ctx); err != nil {
			return err
		}
	}
}

func sleep(ctx context.Context) error {
	t := time.NewTimer(pollInterval)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
