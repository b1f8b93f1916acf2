// tripctl is the operator CLI for tripcore.
//
// Usage:
//
//	tripctl parse plan.txt
//	tripctl distance --from 43.263,-2.935 --to 43.3183,-1.9812
//	tripctl geometry points.json
//	tripctl usage show|reset|watch
//	tripctl generate --prompt "three days in the Basque Country" --locate
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/samirrijal/tripcore/internal/core/domain"
	"github.com/samirrijal/tripcore/internal/core/usecases"
	"github.com/samirrijal/tripcore/internal/pkg/geospatial"
	"github.com/samirrijal/tripcore/internal/pkg/logging"
	"github.com/samirrijal/tripcore/internal/pkg/recovery"
)

var version = "dev"

func main() {
	if err := newApp(os.Stdout, os.Stderr).Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newApp(stdout, stderr io.Writer) *cli.App {
	return &cli.App{
		Name:      "tripctl",
		Usage:     "Operate a tripcore deployment",
		Version:   version,
		Writer:    stdout,
		ErrWriter: stderr,

		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "warn",
				Usage:   "Log level (debug, info, warn, error)",
				EnvVars: []string{"TRIPCORE_LOG_LEVEL"},
			},
		},
		Before: func(c *cli.Context) error {
			slog.SetDefault(logging.New(stderr, c.String("log-level"), "text"))
			return nil
		},

		Commands: []*cli.Command{
			parseCommand(),
			distanceCommand(),
			geometryCommand(),
			usageCommand(),
			generateCommand(),
		},
	}
}

// =============================================================================
// PARSE / DISTANCE / GEOMETRY
// =============================================================================

func parseCommand() *cli.Command {
	return &cli.Command{
		Name:      "parse",
		Usage:     "Recover the structured document from raw generation output",
		ArgsUsage: "<file|->",
		Action: func(c *cli.Context) error {
			raw, err := readInput(c.Args().First())
			if err != nil {
				return err
			}
			doc, stage := recovery.ParseWithStage(string(raw))
			if doc == nil {
				return domain.ErrRecoveryFailed
			}
			fmt.Fprintf(c.App.ErrWriter, "recovered via %s\n", stage)
			return writeJSON(c.App.Writer, doc)
		},
	}
}

func distanceCommand() *cli.Command {
	return &cli.Command{
		Name:  "distance",
		Usage: "Great-circle distance in kilometers between two points",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "from", Usage: `Start point as "lat,lng"`, Required: true},
			&cli.StringFlag{Name: "to", Usage: `End point as "lat,lng"`, Required: true},
		},
		Action: func(c *cli.Context) error {
			from, ok := geospatial.ExtractCoordinates(c.String("from"))
			if !ok {
				return fmt.Errorf("invalid --from %q", c.String("from"))
			}
			to, ok := geospatial.ExtractCoordinates(c.String("to"))
			if !ok {
				return fmt.Errorf("invalid --to %q", c.String("to"))
			}
			fmt.Fprintf(c.App.Writer, "%.2f km\n", geospatial.CalculateDistance(from, to))
			return nil
		},
	}
}

func geometryCommand() *cli.Command {
	return &cli.Command{
		Name:      "geometry",
		Usage:     "Centre, bounds and leg distances for a JSON array of points",
		ArgsUsage: "<file|->",
		Action: func(c *cli.Context) error {
			raw, err := readInput(c.Args().First())
			if err != nil {
				return err
			}
			var points []any
			if err := json.Unmarshal(raw, &points); err != nil {
				return fmt.Errorf("expected a JSON array of points: %w", err)
			}
			plans := usecases.NewPlanService(nil, nil)
			return writeJSON(c.App.Writer, plans.Geometry(points))
		},
	}
}

// =============================================================================
// HELPERS
// =============================================================================

// readInput reads a file, or stdin for "-".
func readInput(path string) ([]byte, error) {
	switch path {
	case "":
		return nil, errors.New("missing input file (use - for stdin)")
	case "-":
		return io.ReadAll(os.Stdin)
	default:
		return os.ReadFile(path)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// signalContext is canceled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}
