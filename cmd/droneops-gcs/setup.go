package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"droneops-gcs/internal/config"
	"droneops-gcs/internal/mission"
	"droneops-gcs/internal/record"
	"droneops-gcs/internal/stream"
	"droneops-gcs/internal/telemetry"
)

// resolveProfile accepts a built-in profile name or a path to a YAML
// profile. An empty name selects the default schedule.
func resolveProfile(name string) (*mission.Profile, error) {
	if name == "" {
		return mission.Default(), nil
	}
	if p, ok := mission.Lookup(name); ok {
		return p, nil
	}
	p, err := mission.Load(name)
	if err != nil {
		return nil, fmt.Errorf("profile %q is neither built in nor a readable file: %w", name, err)
	}
	return p, nil
}

func newGenerator(profile string) (*telemetry.Generator, error) {
	p, err := resolveProfile(profile)
	if err != nil {
		return nil, err
	}
	t := cfg.Telemetry
	return telemetry.NewGenerator(
		telemetry.WithProfile(p),
		telemetry.WithHome(t.HomeLat, t.HomeLon, t.GroundAltM),
	), nil
}

func newPolicy(r config.Reconnect) stream.Policy {
	return stream.Policy{
		BaseDelay:   r.BaseDelay,
		Multiplier:  r.Multiplier,
		MaxDelay:    r.MaxDelay,
		MaxAttempts: r.MaxAttempts,
	}
}

// openSource connects to the configured stream. When live is false, or the
// first attempt fails and fallback is allowed, it returns a started local
// generator instead. The label names the chosen feed.
func openSource(ctx context.Context, live, fallback bool) (stream.Source, string, error) {
	if live {
		client := stream.NewClient(
			stream.WithPolicy(newPolicy(cfg.Reconnect)),
			stream.WithLogger(logger),
		)
		err := client.Connect(ctx, cfg.Backend.StreamURL)
		if err == nil {
			return client, "live", nil
		}
		if !fallback {
			// keep retrying in the background, the recorder picks up samples
			// once the backend comes up
			logger.Warn("telemetry stream unavailable, retrying", "address", cfg.Backend.StreamURL, "err", err)
			return client, "live", nil
		}
		client.Close()
		logger.Warn("telemetry stream unavailable, using local telemetry", "address", cfg.Backend.StreamURL, "err", err)
	}
	gen, err := newGenerator(cfg.Telemetry.Profile)
	if err != nil {
		return nil, "", err
	}
	local := stream.NewLocalClient(gen, cfg.Telemetry.LocalInterval, logger)
	if err := local.Connect(ctx, ""); err != nil {
		return nil, "", err
	}
	return local, "local", nil
}

// writerOptions selects sinks on top of the configured ones.
type writerOptions struct {
	Session   string
	Source    string
	PrintOnly bool
	// Pretty prints colorized lines instead of JSON on STDOUT.
	Pretty  bool
	LogFile string
}

// newWriters builds the sink chain from config. PrintOnly, or a config
// without sinks, writes to STDOUT. LogFile adds a JSONL copy.
func newWriters(ctx context.Context, c *config.Config, o writerOptions) (record.Writer, func(), error) {
	session, printOnly, logFile := o.Session, o.PrintOnly, o.LogFile
	var ws []record.Writer
	closeAll := func() {
		record.NewMultiWriter(ws...).Close()
	}
	fail := func(err error) (record.Writer, func(), error) {
		closeAll()
		return nil, nil, err
	}

	rc := c.Record
	if !printOnly {
		if g := greptimeConfig(rc.Greptime); g != nil {
			gw, err := record.NewGreptimeWriter(record.GreptimeOptions{
				Endpoint: g.Endpoint,
				Port:     g.Port,
				Database: g.Database,
				Table:    g.Table,
				Session:  session,
				Logger:   logger,
			})
			if err != nil {
				return fail(fmt.Errorf("greptime writer: %w", err))
			}
			ws = append(ws, gw)
		}
		if s := rc.SQL; s != nil {
			sw, err := record.NewSQLWriter(ctx, record.SQLOptions{
				Driver:  s.Driver,
				DSN:     s.DSN,
				Table:   s.Table,
				Session: session,
				Logger:  logger,
			})
			if err != nil {
				return fail(fmt.Errorf("sql writer: %w", err))
			}
			ws = append(ws, sw)
		}
		if rc.File != "" {
			fw, err := record.NewFileWriter(rc.File)
			if err != nil {
				return fail(err)
			}
			ws = append(ws, fw)
		}
	}
	if printOnly || rc.Stdout || len(ws) == 0 {
		if o.Pretty {
			ws = append(ws, record.NewConsoleWriter(os.Stdout, session, o.Source))
		} else {
			ws = append(ws, record.NewJSONWriter(os.Stdout))
		}
	}
	if logFile != "" {
		fw, err := record.NewFileWriter(logFile)
		if err != nil {
			return fail(err)
		}
		ws = append(ws, fw)
	}

	if len(ws) == 1 {
		return ws[0], closeAll, nil
	}
	return record.NewMultiWriter(ws...), closeAll, nil
}

// greptimeConfig falls back to the GREPTIMEDB_ENDPOINT environment when the
// config file sets no greptime endpoint.
func greptimeConfig(g *config.Greptime) *config.Greptime {
	if g != nil && g.Endpoint != "" {
		return g
	}
	endpoint := os.Getenv("GREPTIMEDB_ENDPOINT")
	if endpoint == "" {
		return nil
	}
	var out config.Greptime
	if g != nil {
		out = *g
	}
	out.Endpoint = endpoint
	if out.Port == 0 {
		if port, err := strconv.Atoi(os.Getenv("GREPTIMEDB_PORT")); err == nil {
			out.Port = port
		}
	}
	return &out
}
