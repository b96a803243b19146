// Command pgbulkload drives a single bulk load of delimiter-separated rows
// from stdin (or a file) into one PostgreSQL table, using the text COPY
// protocol with dichotomic recovery on batch failure.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/withobsrvr/pgbulkload/internal/config"
	"github.com/withobsrvr/pgbulkload/internal/health"
	"github.com/withobsrvr/pgbulkload/internal/loader"
	"github.com/withobsrvr/pgbulkload/internal/metrics"
	"github.com/withobsrvr/pgbulkload/internal/pgconn"
	"github.com/withobsrvr/pgbulkload/internal/rejects"
)

func main() {
	configPath := flag.String("config", "", "path to YAML configuration file")
	table := flag.String("table", "", "target table name")
	columnsFlag := flag.String("columns", "", "comma-separated column list")
	inputPath := flag.String("input", "", "input file (defaults to stdin)")
	rejectPath := flag.String("reject-log", "", "path to reject log file (defaults to <table>.rej)")
	healthPort := flag.Int("health-port", 0, "if set, serve /health and /metrics on this port")
	flag.Parse()

	log := newLogger()

	if *table == "" || *columnsFlag == "" {
		log.Fatal("both -table and -columns are required")
	}
	columns := strings.Split(*columnsFlag, ",")
	for i := range columns {
		columns[i] = strings.TrimSpace(columns[i])
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.WithError(err).Fatal("failed to load configuration")
	}
	log.SetLevel(parseLevel(cfg.Logging.Level))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	pool, err := pgconn.NewPool(ctx, cfg.Postgres)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to PostgreSQL")
	}
	defer pool.Close()

	reg := prometheus.NewRegistry()
	collectors, err := metrics.Register(reg, *table)
	if err != nil {
		log.WithError(err).Fatal("failed to register metrics")
	}

	conn := pgconn.New(pool, cfg.Postgres, cfg.Load, log.WithField("component", "pgconn"))
	if err := conn.Reset(ctx); err != nil {
		log.WithError(err).Fatal("failed to initialize session")
	}
	defer conn.Close(ctx)

	ld := loader.New(conn, cfg.Load, cfg.Postgres.DebugVerbose(), log.WithField("component", "loader"), collectors)

	rejectLogPath := *rejectPath
	if rejectLogPath == "" {
		rejectLogPath = fmt.Sprintf("%s.rej", *table)
	}
	sink, err := rejects.NewFileSink(rejectLogPath)
	if err != nil {
		log.WithError(err).Fatal("failed to open reject log")
	}
	defer sink.Close()

	if *healthPort > 0 {
		hs := health.NewServer(ld, reg, *healthPort, log.WithField("component", "health"))
		go func() {
			if err := hs.Start(); err != nil {
				log.WithError(err).Warn("health server stopped")
			}
		}()
	}

	in := os.Stdin
	if *inputPath != "" {
		f, err := os.Open(*inputPath)
		if err != nil {
			log.WithError(err).Fatal("failed to open input file")
		}
		defer f.Close()
		in = f
	}

	if err := runLoad(ctx, ld, *table, columns, cfg.Load, in, sink, log); err != nil {
		log.WithError(err).Fatal("load failed")
	}

	ld.Statistics().PrintStats(log)
}

// runLoad reads delimiter-separated lines from r and feeds them to ld one
// row at a time, calling AddRow with eof=true on the final line (spec
// §4.4/§8). Cancellation (ctx.Done) is handled via Loader.Interrupt.
func runLoad(ctx context.Context, ld *loader.Loader, table string, columns []string, loadCfg config.LoadConfig, r *os.File, sink rejects.Sink, log *logrus.Entry) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	sep := loadCfg.CopySepByte()

	var pending []byte
	havePending := false

	flushPending := func(eof bool) error {
		if !havePending {
			return nil
		}
		values := strings.Split(string(pending), string(sep))
		ok, err := ld.AddRow(ctx, table, columns, values, pending, sink, eof)
		if err != nil {
			return err
		}
		if !ok {
			log.Warn("row rejected during batch recovery")
		}
		havePending = false
		return nil
	}

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ld.Interrupt(ctx)
		default:
		}

		if err := flushPending(false); err != nil {
			return err
		}

		line := append([]byte(nil), scanner.Bytes()...)
		pending = line
		havePending = true
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}

	return flushPending(true)
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.FromEnv(), nil
	}
	return config.Load(path)
}

func newLogger() *logrus.Entry {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return logrus.NewEntry(l)
}

func parseLevel(level string) logrus.Level {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}
