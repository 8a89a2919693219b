package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"go.uber.org/zap"

	"listingqty/internal"
	"listingqty/internal/cleaner"
	"listingqty/internal/config"
	"listingqty/internal/connectors"
	"listingqty/internal/feed"
	"listingqty/internal/listener"
	"listingqty/internal/logging"
	"listingqty/internal/pipeline"
	"listingqty/internal/qty"
	"listingqty/internal/storage"
	"listingqty/internal/transcode"
)

func main() {
	cfg, err := config.Load()
	must(err)

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	must(err)
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cmd := os.Args[1]
	args := os.Args[2:]
	switch cmd {
	case "guess":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		pairs := fs.Bool("pairs-singular", cfg.QtyPairsSingular, "count a pair as one unit")
		asJSON := fs.Bool("json", false, "print the guess with its candidates as json")
		_ = fs.Parse(args)
		cfg.QtyPairsSingular = *pairs
		g := newGuesser(cfg, logger)

		for _, text := range inputTexts(fs.Args()) {
			if *asJSON {
				blob, err := json.Marshal(pipeline.NewAnnotator(g, cfg.QtyTextFields).Guess(text))
				must(err)
				fmt.Println(string(blob))
				continue
			}
			if n, ok := g.Guess(text); ok {
				fmt.Println(n)
			} else {
				fmt.Println("none")
			}
		}
	case "candidates":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		pairs := fs.Bool("pairs-singular", cfg.QtyPairsSingular, "count a pair as one unit")
		_ = fs.Parse(args)
		cfg.QtyPairsSingular = *pairs
		g := newGuesser(cfg, logger)

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "KIND\tVALUE\tOFFSET\tPHRASE")
		for _, text := range inputTexts(fs.Args()) {
			for _, c := range g.Candidates(text) {
				fmt.Fprintf(w, "%s\t%d\t%d\t%q\n", c.Kind, c.Value, c.Offset, c.Phrase)
			}
		}
		must(w.Flush())
	case "clean":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		in := fs.String("in", "", "input csv/xlsx path")
		out := fs.String("out", "", "output csv/xlsx path")
		comma := fs.String("comma", "", "field delimiter for csv (default by extension)")
		noQty := fs.Bool("no-quantity", false, "skip the quantity column")
		_ = fs.Parse(args)
		if *in == "" || *out == "" {
			must(fmt.Errorf("--in and --out are required"))
		}
		c := cleaner.New()
		if !*noQty {
			c.WithQuantity(newGuesser(cfg, logger), cfg.QtyTextFields)
		}
		count, err := transcode.Transcode(*in, *out, c, transcodeOptions(*comma))
		must(err)
		fmt.Printf("clean done rows=%d output=%s\n", count, *out)
	case "run":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		input := fs.String("input", "", "input file path or raw text")
		inType := fs.String("type", "", "csv|tsv|xlsx|pdf|email|email_text|email_table (default by extension)")
		output := fs.String("output", "", "output csv/xlsx path")
		store := fs.Bool("store", false, "also store listings and guesses in the database")
		_ = fs.Parse(args)
		if *input == "" || *output == "" {
			must(fmt.Errorf("--input and --output are required"))
		}

		g := newGuesser(cfg, logger)
		if *store {
			db := openDB(cfg)
			defer db.Close()
			items, err := pipeline.ExtractItemsFromInput(*inType, *input)
			must(err)
			res, err := pipeline.NewProcessingService(db, cfg, g, logger).ProcessItems("file", items)
			must(err)
			fmt.Printf("stored listings=%d guessed=%d\n", res.Processed, res.Guessed)
		}
		res, err := pipeline.NewAnnotator(g, cfg.QtyTextFields).AnnotateFile(*inType, *input, *output, transcode.Options{})
		must(err)
		fmt.Printf("run done rows=%d guessed=%d output=%s\n", res.Records, res.Guessed, *output)
	case "feed:initial-sync", "feed:incremental-sync":
		db := openDB(cfg)
		defer db.Close()
		proc := pipeline.NewProcessingService(db, cfg, newGuesser(cfg, logger), logger)
		svc := feed.NewSyncService(db, proc, cfg, logger)
		var res feed.SyncResult
		if cmd == "feed:initial-sync" {
			res, err = svc.InitialSync(ctx)
		} else {
			res, err = svc.IncrementalSync(ctx)
		}
		must(err)
		fmt.Printf("%s complete listings=%d guessed=%d\n", cmd, res.Listings, res.Guessed)
	case "mail:fetch":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		provider := fs.String("provider", cfg.MailListenerProvider, "gmail|imap")
		label := fs.String("label", cfg.MailListenerLabel, "mailbox/label")
		max := fs.Int("max", 50, "max messages")
		_ = fs.Parse(args)
		db := openDB(cfg)
		defer db.Close()
		conn, err := listener.MakeConnector(ctx, cfg, *provider)
		must(err)
		fetch := connectors.NewFetchService(db, cfg.RawMailDir, conn, logger)
		result, err := fetch.FetchAndStore(ctx, connectors.FetchQuery{Label: *label, Max: *max})
		must(err)
		fmt.Printf("mail fetch done provider=%s fetched=%d new=%d\n", conn.Provider(), result.Fetched, result.New)
	case "mail:process":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		provider := fs.String("provider", cfg.MailListenerProvider, "gmail|imap")
		messageID := fs.String("messageId", "", "specific message-id")
		batch := fs.Int("batch", 20, "batch size")
		_ = fs.Parse(args)
		db := openDB(cfg)
		defer db.Close()
		processor := pipeline.NewProcessingService(db, cfg, newGuesser(cfg, logger), logger)
		if strings.TrimSpace(*messageID) != "" {
			res, err := processor.ProcessByProviderMessageID(*provider, *messageID)
			must(err)
			fmt.Printf("processed email id=%d listings=%d guessed=%d skipped=%t\n", res.EmailID, res.Processed, res.Guessed, res.Skipped)
			return
		}
		processedEmails, processedListings, err := processor.ProcessPending(*batch, *provider)
		must(err)
		fmt.Printf("processed pending emails=%d listings=%d\n", processedEmails, processedListings)
	case "mail:listen":
		db := openDB(cfg)
		defer db.Close()
		proc := pipeline.NewProcessingService(db, cfg, newGuesser(cfg, logger), logger)
		must(listener.NewService(db, cfg, proc, logger).Run(ctx))
	case "export":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		emailID := fs.Int("emailId", 0, "internal email id")
		source := fs.String("source", "", "csv|xlsx|pdf|email_text|email_html_table|feed")
		out := fs.String("out", "", "output csv/xlsx path")
		_ = fs.Parse(args)
		if strings.TrimSpace(*out) == "" {
			must(fmt.Errorf("--out is required"))
		}
		db := openDB(cfg)
		defer db.Close()
		rows, err := db.GetExportRows(storage.ExportFilter{EmailID: *emailID, Source: internal.ItemSource(*source)})
		must(err)
		if len(rows) == 0 {
			must(fmt.Errorf("no export rows for emailId=%d source=%q", *emailID, *source))
		}
		must(pipeline.ExportRows(rows, *out))
		fmt.Printf("exported %d rows to %s\n", len(rows), *out)
	case "stats":
		db := openDB(cfg)
		defer db.Close()
		stats, err := db.Stats()
		must(err)
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SOURCE\tLISTINGS\tGUESSED")
		for _, s := range stats {
			fmt.Fprintf(w, "%s\t%d\t%d\n", s.Source, s.Listings, s.WithGuess)
		}
		must(w.Flush())
	default:
		usage()
		os.Exit(1)
	}
}

func newGuesser(cfg config.Config, logger *zap.Logger) *qty.Guesser {
	g := qty.New(
		qty.WithMaxInput(cfg.QtyMaxInput),
		qty.WithMatchTimeout(cfg.QtyMatchTimeout),
		qty.WithLogger(logger),
	)
	g.SetPairsSingular(cfg.QtyPairsSingular)
	return g
}

func openDB(cfg config.Config) *storage.DB {
	db, err := storage.Open(cfg.DBPath)
	must(err)
	return db
}

// inputTexts returns the joined arguments, or one text per stdin line when
// there are none.
func inputTexts(args []string) []string {
	if len(args) > 0 {
		return []string{strings.Join(args, " ")}
	}
	return readLines(os.Stdin)
}

func readLines(r io.Reader) []string {
	var out []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		out = append(out, scanner.Text())
	}
	must(scanner.Err())
	return out
}

func transcodeOptions(comma string) transcode.Options {
	switch comma {
	case "":
		return transcode.Options{}
	case `\t`, "tab":
		return transcode.Options{Comma: '\t'}
	default:
		return transcode.Options{Comma: []rune(comma)[0]}
	}
}

func usage() {
	fmt.Println("usage: listingqty <command>")
	fmt.Println("commands:")
	fmt.Println("  guess [--pairs-singular] [--json] [text...]   (reads stdin lines without text)")
	fmt.Println("  candidates [--pairs-singular] [text...]")
	fmt.Println("  clean --in=listings.csv --out=clean.xlsx [--comma=;] [--no-quantity]")
	fmt.Println("  run --input=... [--type=csv|tsv|xlsx|pdf|email|email_text|email_table] --output=...xlsx [--store]")
	fmt.Println("  feed:initial-sync")
	fmt.Println("  feed:incremental-sync")
	fmt.Println("  mail:fetch --provider=gmail|imap --label=INBOX --max=50")
	fmt.Println("  mail:process --provider=gmail|imap [--messageId=...] [--batch=20]")
	fmt.Println("  mail:listen")
	fmt.Println("  export [--emailId=1] [--source=feed] --out=./out/result.xlsx")
	fmt.Println("  stats")
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
