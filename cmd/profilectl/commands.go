package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/MrWong99/frameingest/internal/app"
	"github.com/MrWong99/frameingest/internal/config"
	"github.com/MrWong99/frameingest/internal/enrich"
	"github.com/MrWong99/frameingest/internal/ingest"
	"github.com/MrWong99/frameingest/internal/profile"
	"github.com/MrWong99/frameingest/pkg/profilestore"
)

// maxLineBytes bounds a single JSON lines record, matching the HTTP body cap.
const maxLineBytes = 1 << 20

// newProviders builds the enrichment backends. Tests replace it.
var newProviders = func(cfg *config.Config) (*app.Providers, error) {
	reg := config.NewRegistry()
	app.RegisterBuiltinProviders(reg)
	return app.BuildProviders(cfg, reg)
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func openStore(c *cli.Context, sc config.StoreConfig) (profilestore.Store, error) {
	s, err := app.OpenStore(c.Context, sc)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return s, nil
}

func migrateCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if cfg.Store.Driver != config.StorePostgres {
		fmt.Fprintf(c.App.Writer, "store driver %q has no schema to migrate\n", cfg.Store.Driver)
		return nil
	}

	force := true
	cfg.Store.AutoMigrate = &force
	s, err := openStore(c, cfg.Store)
	if err != nil {
		return err
	}
	defer s.Close()

	fmt.Fprintf(c.App.Writer, "migrated table %q (%d dimensions)\n", cfg.Store.Table, cfg.Store.EmbeddingDimensions)
	return nil
}

func ingestCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	in, err := openInput(c.String("file"))
	if err != nil {
		return err
	}
	reqs, lines, bad, err := readRequests(in)
	in.Close()
	if err != nil {
		return err
	}
	for _, b := range bad {
		fmt.Fprintf(c.App.Writer, "line %d: %v\n", b.line, b.err)
	}
	if len(reqs) == 0 {
		return cli.Exit(fmt.Sprintf("no valid requests (%d invalid lines)", len(bad)), 1)
	}

	providers, err := newProviders(cfg)
	if err != nil {
		return fmt.Errorf("build providers: %w", err)
	}
	store, err := openStore(c, cfg.Store)
	if err != nil {
		return err
	}
	defer store.Close()

	client, err := enrich.New(providers.LLM, providers.Embeddings,
		app.EnrichConfig(cfg.Enrichment, cfg.Store.EmbeddingDimensions),
		enrich.WithProviderNames(providers.LLMName, providers.EmbeddingsName),
	)
	if err != nil {
		return err
	}
	pipeline, err := ingest.NewPipeline(client, store)
	if err != nil {
		return err
	}

	slog.Info("ingesting", "requests", len(reqs), "workers", c.Int("workers"))
	outcomes, err := ingest.Batch(c.Context, pipeline, reqs, c.Int("workers"))
	if err != nil {
		return err
	}

	for _, o := range outcomes {
		if o.Err != nil {
			fmt.Fprintf(c.App.Writer, "line %d: %v\n", lines[o.Index], o.Err)
		}
	}

	summary := ingest.Summary(outcomes)
	if len(bad) > 0 {
		summary[string(ingest.KindValidation)] += len(bad)
	}
	printSummary(c.App.Writer, summary)

	if failed := len(bad) + len(outcomes) - summary["ok"]; failed > 0 {
		return cli.Exit(fmt.Sprintf("%d of %d requests failed", failed, len(bad)+len(outcomes)), 1)
	}
	return nil
}

func getCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	s, err := openStore(c, cfg.Store)
	if err != nil {
		return err
	}
	defer s.Close()

	p, err := s.Get(c.Context, c.Int64("fid"))
	if err != nil {
		return err
	}
	p.Embedding = nil

	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(p)
}

func searchCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	s, err := openStore(c, cfg.Store)
	if err != nil {
		return err
	}
	defer s.Close()

	fid := c.Int64("fid")
	p, err := s.Get(c.Context, fid)
	if err != nil {
		return err
	}
	matches, err := s.Search(c.Context, p.Embedding, c.Int("k"), fid)
	if err != nil {
		return err
	}
	for _, m := range matches {
		fmt.Fprintf(c.App.Writer, "%d\t%s\t%.4f\t%s\n",
			m.Profile.FID, m.Profile.Username, m.Distance, strings.Join(m.Profile.Tags, ","))
	}
	return nil
}

// lineError is a JSON lines record that failed to decode.
type lineError struct {
	line int
	err  error
}

func openInput(path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	return f, nil
}

// readRequests decodes one ingest request per non-blank line. lines[i] is
// the 1-based line number of reqs[i]. Undecodable lines are returned in bad;
// err is only set when reading fails.
func readRequests(r io.Reader) (reqs []profile.Request, lines []int, bad []lineError, err error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	n := 0
	for sc.Scan() {
		n++
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		req, derr := profile.DecodeRequest(bytes.NewReader(line))
		if derr != nil {
			bad = append(bad, lineError{line: n, err: derr})
			continue
		}
		reqs = append(reqs, req)
		lines = append(lines, n)
	}
	if err := sc.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("read input line %d: %w", n+1, err)
	}
	return reqs, lines, bad, nil
}

func printSummary(w io.Writer, summary map[string]int) {
	keys := make([]string, 0, len(summary))
	for k := range summary {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "%-22s %d\n", k, summary[k])
	}
}
