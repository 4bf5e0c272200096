package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"io"

	_ "modernc.org/sqlite"

	"github.com/Mindburn-Labs/warden/pkg/receipts"
)

// runVerifyCmd recomputes the hash chain over a session's receipts and
// reports the first break, if any.
func runVerifyCmd(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	fs.SetOutput(stderr)
	dbPath := fs.String("db", "warden-demo.db", "SQLite database path")
	sessionID := fs.String("session", "", "session id to verify (required)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *sessionID == "" {
		_, _ = fmt.Fprintln(stderr, "verify: -session is required")
		return 2
	}

	db, err := sql.Open("sqlite", *dbPath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "open database: %v\n", err)
		return 1
	}
	defer db.Close()

	sink, err := receipts.NewSQLiteSink(db)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "receipt sink: %v\n", err)
		return 1
	}

	ctx := context.Background()
	recs, err := sink.ListBySession(ctx, *sessionID)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "list receipts: %v\n", err)
		return 1
	}
	if err := sink.VerifyChain(ctx, *sessionID); err != nil {
		_, _ = fmt.Fprintf(stderr, "chain broken: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintf(stdout, "ok: %d receipts, chain intact\n", len(recs))
	return 0
}
