// Authors, verifies and copies segmented packages from the command-line.
//
// Example run:
// $ go run ./cmd/pkgdist create --segment-length 1MiB --data-file-length 64MiB --out pkg.def --data data big.iso
// $ go run ./cmd/pkgdist verify --data data pkg.def
// 4c1e5d3a9b70: 1.2 GB of 1.2 GB, 1146/1146 segments verified
package main

import (
	_ "expvar"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/alexflint/go-arg"
	"github.com/anacrolix/envpprof"
	"github.com/anacrolix/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/anacrolix/pkgdist"
	"github.com/anacrolix/pkgdist/metainfo"
)

var flags struct {
	Debug       bool
	MetricsAddr string `arg:"--metrics-addr" help:"serve /metrics and /debug/vars on this address"`

	CreateCmd *createCmd `arg:"subcommand:create" help:"author a package from a file or stdin"`
	VerifyCmd *verifyCmd `arg:"subcommand:verify" help:"hash a package's data files against its definition"`
	StateCmd  *stateCmd  `arg:"subcommand:state" help:"dump the stored download state of a package"`
	CopyCmd   *copyCmd   `arg:"subcommand:copy" help:"transfer a package between local data directories segment by segment"`
	ShowCmd   *showCmd   `arg:"subcommand:show" help:"print a package definition"`
}

func main() {
	defer envpprof.Stop()
	if err := mainErr(); err != nil {
		log.Printf("error in main: %v", err)
		os.Exit(1)
	}
}

func logger() log.Logger {
	l := log.Default.WithNames("pkgdist")
	if flags.Debug {
		return l.FilterLevel(log.Debug)
	}
	return l.FilterLevel(log.Info)
}

func slogger() *slog.Logger {
	level := slog.LevelInfo
	if flags.Debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func loadDefinition(path string) (*metainfo.Definition, error) {
	def, err := metainfo.LoadFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading definition from %q: %w", path, err)
	}
	return def, nil
}

func serveMetrics(addr string) error {
	err := pkgdist.RegisterMetrics(prometheus.DefaultRegisterer)
	if err != nil {
		return fmt.Errorf("registering metrics: %w", err)
	}
	http.Handle("/metrics", promhttp.Handler())
	go func() {
		err := http.ListenAndServe(addr, nil)
		if err != nil {
			logger().Levelf(log.Error, "serving metrics: %v", err)
		}
	}()
	return nil
}

func mainErr() error {
	p := arg.MustParse(&flags)
	if flags.MetricsAddr != "" {
		err := serveMetrics(flags.MetricsAddr)
		if err != nil {
			return err
		}
	}
	switch {
	case flags.CreateCmd != nil:
		return flags.CreateCmd.run()
	case flags.VerifyCmd != nil:
		return flags.VerifyCmd.run()
	case flags.StateCmd != nil:
		return flags.StateCmd.run()
	case flags.CopyCmd != nil:
		return flags.CopyCmd.run()
	case flags.ShowCmd != nil:
		return flags.ShowCmd.run()
	default:
		p.Fail(fmt.Sprintf("unexpected subcommand: %v", p.Subcommand()))
		panic("unreachable")
	}
}
