package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/gridflow/internal/compiler"
	"github.com/mattjoyce/gridflow/internal/config"
	"github.com/mattjoyce/gridflow/internal/configcache"
	"github.com/mattjoyce/gridflow/internal/discovery"
	"github.com/mattjoyce/gridflow/internal/log"
	"github.com/mattjoyce/gridflow/internal/logdb"
	"github.com/mattjoyce/gridflow/internal/storage"
	"github.com/mattjoyce/gridflow/internal/storage/dialect"
	"github.com/mattjoyce/gridflow/internal/wmbs"
	"github.com/mattjoyce/gridflow/internal/wmspec"
)

const version = "0.1.0"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(argv []string) int {
	if len(argv) < 1 {
		printUsage(os.Stderr)
		return 1
	}

	cmd := argv[0]
	args := argv[1:]

	switch cmd {
	case "workload":
		return runWorkloadNoun(args)
	case "location":
		return runLocationNoun(args)
	case "subscription":
		return runSubscriptionNoun(args)
	case "config":
		return runConfigNoun(args)
	case "logdb":
		return runLogDBNoun(args)
	case "version":
		fmt.Printf("gridflow version %s\n", version)
		return 0
	case "help", "--help", "-h":
		printUsage(os.Stdout)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage(os.Stderr)
		return 1
	}
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `gridflow - workload compiler and bookkeeping for grid processing campaigns

Usage:
  gridflow <noun> <action> [flags]

Workload Commands:
  workload compile       Compile a ReReco request into a workload tree
                         (--register also records it in the bookkeeping store)

Location Commands:
  location register      Register an execution site
  location show          Show a registered site

Subscription Commands:
  subscription resolve   Look up the subscription binding a fileset to a workflow

Config Commands:
  config check           Load and validate the configuration
  config hash-update     Rewrite the .checksums manifest

LogDB Commands:
  logdb show             Show the audit trail of a request
  logdb cleanup          Delete audit entries older than the retention

General:
  version                Show version information
  help                   Show this help message

Every action accepts --config (default ./config.yaml).
`)
}

func isHelpToken(token string) bool {
	return token == "help" || token == "--help" || token == "-h"
}

// dispatch runs the action named by args[0] from actions.
func dispatch(noun string, args []string, actions map[string]func([]string) int) int {
	if len(args) < 1 || isHelpToken(args[0]) {
		names := make([]string, 0, len(actions))
		for name := range actions {
			names = append(names, name)
		}
		sort.Strings(names)
		fmt.Fprintf(os.Stderr, "Usage: gridflow %s <action> [flags]\nActions: %v\n", noun, names)
		if len(args) < 1 {
			return 1
		}
		return 0
	}
	action, ok := actions[args[0]]
	if !ok {
		fmt.Fprintf(os.Stderr, "Unknown %s action: %s\n", noun, args[0])
		return 1
	}
	return action(args[1:])
}

// --- NOUN DISPATCHERS ---

func runWorkloadNoun(args []string) int {
	return dispatch("workload", args, map[string]func([]string) int{
		"compile": runWorkloadCompile,
	})
}

func runLocationNoun(args []string) int {
	return dispatch("location", args, map[string]func([]string) int{
		"register": runLocationRegister,
		"show":     runLocationShow,
	})
}

func runSubscriptionNoun(args []string) int {
	return dispatch("subscription", args, map[string]func([]string) int{
		"resolve": runSubscriptionResolve,
	})
}

func runConfigNoun(args []string) int {
	return dispatch("config", args, map[string]func([]string) int{
		"check":       runConfigCheck,
		"hash-update": runConfigHashUpdate,
	})
}

func runLogDBNoun(args []string) int {
	return dispatch("logdb", args, map[string]func([]string) int{
		"show":    runLogDBShow,
		"cleanup": runLogDBCleanup,
	})
}

// --- SHARED SETUP ---

// loadConfig loads the configuration and sets up logging on stderr, keeping
// stdout for command output.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	log.SetupWriter(os.Stderr, cfg.Service.LogLevel, cfg.Service.LogFormat)
	return cfg, nil
}

func openStore(ctx context.Context, cfg *config.Config) (*storage.DB, error) {
	kind, err := dialect.ParseKind(cfg.Store.Backend)
	if err != nil {
		return nil, err
	}
	return storage.Open(ctx, storage.Options{
		Backend:      kind,
		Path:         cfg.Store.Path,
		DSN:          cfg.Store.DSN,
		MaxOpenConns: cfg.Store.MaxOpenConns,
	})
}

// withStore loads the configuration, opens the store and runs fn.
func withStore(configPath string, fn func(ctx context.Context, cfg *config.Config, db *storage.DB) int) int {
	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	ctx := context.Background()
	db, err := openStore(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open store: %v\n", err)
		return 1
	}
	defer db.Close()
	return fn(ctx, cfg, db)
}

// --- WORKLOAD ---

func runWorkloadCompile(args []string) int {
	fs := flag.NewFlagSet("compile", flag.ContinueOnError)
	configPath := fs.String("config", "config.yaml", "Path to configuration file or directory")
	requestPath := fs.String("request", "", "Path to the request document (YAML or JSON)")
	name := fs.String("name", "", "Workload name")
	format := fs.String("format", "yaml", "Output format (yaml, json)")
	outPath := fs.String("out", "", "Write the workload here instead of stdout")
	register := fs.Bool("register", false, "Record workflows, filesets and subscriptions")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if *requestPath == "" || *name == "" {
		fmt.Fprintln(os.Stderr, "Error: --request and --name are required")
		return 1
	}
	if *format != "yaml" && *format != "json" {
		fmt.Fprintf(os.Stderr, "Error: unknown format %q\n", *format)
		return 1
	}

	data, err := os.ReadFile(*requestPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read request: %v\n", err)
		return 1
	}
	var req compiler.Request
	if err := yaml.Unmarshal(data, &req); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse request: %v\n", err)
		return 1
	}

	return withStore(*configPath, func(ctx context.Context, cfg *config.Config, db *storage.DB) int {
		logger := log.WithComponent("main")
		disc := discovery.New(cfg.Discovery.Command, cfg.Discovery.Args...)
		c := compiler.New(
			configcache.New(db),
			disc,
			logdb.New(db, cfg.LogDB.Identifier, cfg.LogDB.Thread),
			compiler.OptionsFrom(cfg),
		)

		cctx := ctx
		if cfg.Discovery.Timeout > 0 {
			var cancel context.CancelFunc
			cctx, cancel = context.WithTimeout(ctx, cfg.Discovery.Timeout)
			defer cancel()
		}
		res, err := c.Compile(cctx, *name, req)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Compile failed: %v\n", err)
			return 1
		}

		if *register {
			ids, err := wmbs.New(db).Register(ctx, res.Workload)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Register failed: %v\n", err)
				return 1
			}
			logger.Info("workload registered", "workload", *name, "subscriptions", len(ids))
		}

		out, err := encodeWorkload(res.Workload, *format)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode workload: %v\n", err)
			return 1
		}
		if *outPath != "" {
			if err := os.WriteFile(*outPath, out, 0o644); err != nil {
				fmt.Fprintf(os.Stderr, "Failed to write %s: %v\n", *outPath, err)
				return 1
			}
		} else {
			os.Stdout.Write(out)
		}

		fmt.Fprintf(os.Stderr, "Fingerprint: %s\n", res.Fingerprint)
		for _, doc := range res.ConfigDocs {
			fmt.Fprintf(os.Stderr, "Config document: %s rev %s\n", doc.ID, doc.Revision)
		}
		return 0
	})
}

func encodeWorkload(w *wmspec.Workload, format string) ([]byte, error) {
	if format == "json" {
		data, err := w.JSON()
		if err != nil {
			return nil, err
		}
		return append(data, '\n'), nil
	}
	return w.YAML()
}

// --- LOCATION ---

func runLocationRegister(args []string) int {
	fs := flag.NewFlagSet("register", flag.ContinueOnError)
	configPath := fs.String("config", "config.yaml", "Path to configuration file or directory")
	site := fs.String("site", "", "Site name")
	slots := fs.Int("slots", 0, "Job slots")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	return withStore(*configPath, func(ctx context.Context, _ *config.Config, db *storage.DB) int {
		if err := wmbs.New(db).Locations.Register(ctx, *site, *slots); err != nil {
			fmt.Fprintf(os.Stderr, "Register failed: %v\n", err)
			return 1
		}
		fmt.Printf("Registered %s\n", *site)
		return 0
	})
}

func runLocationShow(args []string) int {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	configPath := fs.String("config", "config.yaml", "Path to configuration file or directory")
	site := fs.String("site", "", "Site name")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	return withStore(*configPath, func(ctx context.Context, _ *config.Config, db *storage.DB) int {
		loc, found, err := wmbs.New(db).Locations.Get(ctx, *site)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Lookup failed: %v\n", err)
			return 1
		}
		if !found {
			fmt.Fprintf(os.Stderr, "Location %s not found\n", *site)
			return 1
		}
		fmt.Printf("%s\tid=%d\tslots=%d\n", loc.SiteName, loc.ID, loc.JobSlots)
		return 0
	})
}

// --- SUBSCRIPTION ---

func runSubscriptionResolve(args []string) int {
	fs := flag.NewFlagSet("resolve", flag.ContinueOnError)
	configPath := fs.String("config", "config.yaml", "Path to configuration file or directory")
	fileset := fs.String("fileset", "", "Fileset name")
	workflow := fs.String("workflow", "", "Workflow name")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	return withStore(*configPath, func(ctx context.Context, _ *config.Config, db *storage.DB) int {
		id, found, err := wmbs.New(db).Subscriptions.Resolve(ctx, *fileset, *workflow)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Resolve failed: %v\n", err)
			return 1
		}
		if !found {
			fmt.Fprintf(os.Stderr, "No subscription binds %s to %s\n", *fileset, *workflow)
			return 1
		}
		fmt.Println(id)
		return 0
	})
}

// --- CONFIG ---

func runConfigCheck(args []string) int {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	configPath := fs.String("config", "config.yaml", "Path to configuration file or directory")
	jsonOut := fs.Bool("json", false, "Output in JSON")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config load error: %v\n", err)
		return 1
	}

	if *jsonOut {
		out, err := json.MarshalIndent(map[string]any{
			"valid":       true,
			"fingerprint": cfg.Fingerprint,
			"files":       cfg.SourceFiles,
		}, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "JSON format error: %v\n", err)
			return 1
		}
		fmt.Println(string(out))
		return 0
	}

	fmt.Printf("Configuration valid\nFingerprint: %s\n", cfg.Fingerprint)
	for _, f := range cfg.SourceFiles {
		fmt.Printf("  - %s\n", f)
	}
	return 0
}

func runConfigHashUpdate(args []string) int {
	var configPath string
	var verbose, verboseShort, dryRun bool

	fs := flag.NewFlagSet("hash-update", flag.ContinueOnError)
	fs.StringVar(&configPath, "config", "config.yaml", "Path to configuration file or directory")
	fs.BoolVar(&verbose, "verbose", false, "Verbose output")
	fs.BoolVar(&verboseShort, "v", false, "Verbose output")
	fs.BoolVar(&dryRun, "dry-run", false, "Dry run")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	isVerbose := verbose || verboseShort

	dir, files, err := config.SourceFiles(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to resolve config files: %v\n", err)
		return 1
	}

	if isVerbose || dryRun {
		for _, f := range files {
			hash, err := config.ComputeBlake3Hash(f)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Failed to hash %s: %v\n", f, err)
				return 1
			}
			fmt.Printf("  HASH %s: %s\n", f, hash)
		}
	}
	if dryRun {
		fmt.Printf("Dry run completed for %s (no files written)\n", dir)
		return 0
	}

	if _, err := config.GenerateChecksums(dir, files); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to lock config in %s: %v\n", dir, err)
		return 1
	}
	fmt.Printf("Successfully locked %d file(s) in %s\n", len(files), dir)
	return 0
}

// --- LOGDB ---

func runLogDBShow(args []string) int {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	configPath := fs.String("config", "config.yaml", "Path to configuration file or directory")
	request := fs.String("request", "", "Request name (empty lists requests)")
	mtype := fs.String("type", "", "Message type filter (comment, info, warning, error)")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	return withStore(*configPath, func(ctx context.Context, cfg *config.Config, db *storage.DB) int {
		client := logdb.New(db, cfg.LogDB.Identifier, cfg.LogDB.Thread)
		if *request == "" {
			requests, err := client.Requests(ctx)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Query failed: %v\n", err)
				return 1
			}
			for _, r := range requests {
				fmt.Println(r)
			}
			return 0
		}

		entries, err := client.Get(ctx, *request, logdb.MessageType(*mtype))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Query failed: %v\n", err)
			return 1
		}
		for _, e := range entries {
			fmt.Printf("%s\t%s\t%s/%s\t%s\n", e.Time.UTC().Format(time.RFC3339), e.Type, e.Identifier, e.Thread, e.Message)
		}
		return 0
	})
}

func runLogDBCleanup(args []string) int {
	fs := flag.NewFlagSet("cleanup", flag.ContinueOnError)
	configPath := fs.String("config", "config.yaml", "Path to configuration file or directory")
	age := fs.Duration("age", 0, "Delete entries older than this (default: logdb.retention)")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	return withStore(*configPath, func(ctx context.Context, cfg *config.Config, db *storage.DB) int {
		keep := *age
		if keep == 0 {
			keep = cfg.LogDB.Retention
		}
		n, err := logdb.New(db, cfg.LogDB.Identifier, cfg.LogDB.Thread).Cleanup(ctx, keep)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Cleanup failed: %v\n", err)
			return 1
		}
		fmt.Printf("Deleted %d entries older than %s\n", n, keep)
		return 0
	})
}
