// Package main is the Margot CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/margot-dms/margot/internal/archive"
	"github.com/margot-dms/margot/internal/assembly"
	"github.com/margot-dms/margot/internal/classify"
	"github.com/margot-dms/margot/internal/config"
	"github.com/margot-dms/margot/internal/export"
	"github.com/margot-dms/margot/internal/extract"
	"github.com/margot-dms/margot/internal/intake"
	"github.com/margot-dms/margot/internal/journal"
	"github.com/margot-dms/margot/internal/ledger"
	"github.com/margot-dms/margot/internal/models"
	"github.com/margot-dms/margot/internal/server"
	"github.com/margot-dms/margot/pkg/utils"
	"go.uber.org/zap"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "serve":
		runServe()
	case "open":
		runOpen()
	case "complete":
		runComplete()
	case "merge":
		runMerge()
	case "flush":
		runFlush()
	case "export":
		runExport()
	case "version", "--version", "-v":
		fmt.Printf("margot version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`Margot - scanned document intake and archiving

Usage:
  margot serve     [-config path] [-debug]      run the intake pipeline and API server
  margot open      [-server url]                list open (partially assembled) documents
  margot complete  [-server url] <id>           force-complete and archive an open document
  margot merge     [-server url] <target-id> <sender> <source-id>
                                                merge an archived document into an open one
  margot flush     [-server url]                force-complete every open document
  margot export    [-server url] [-out path]    download the archive index spreadsheet
  margot version                                print version
`)
}

// facsimileFromConfig maps the config strings onto the archive's transmittal
// sheet, keeping the stock value for any field left empty.
func facsimileFromConfig(fc config.FacsimileConfig) archive.Facsimile {
	f := archive.DefaultFacsimile()
	if fc.RecipientName != "" {
		f.RecipientName = fc.RecipientName
	}
	if fc.RecipientAddress != "" {
		f.RecipientAddress = fc.RecipientAddress
	}
	if fc.RecipientCity != "" {
		f.RecipientCity = fc.RecipientCity
	}
	if fc.SenderName != "" {
		f.SenderName = fc.SenderName
	}
	if fc.SenderTitle != "" {
		f.SenderTitle = fc.SenderTitle
	}
	if fc.SenderFax != "" {
		f.SenderFax = fc.SenderFax
	}
	if fc.SenderPhone != "" {
		f.SenderPhone = fc.SenderPhone
	}
	if fc.SubjectPrefix != "" {
		f.SubjectPrefix = fc.SubjectPrefix
	}
	if fc.ClosingLine != "" {
		f.ClosingLine = fc.ClosingLine
	}
	if fc.Flair != "" {
		f.Flair = fc.Flair
	}
	return f
}

func runServe() {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	resolved := config.Resolve(*configPath)
	cfg, err := config.Load(resolved)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolved),
		zap.Bool("debug", debugMode),
	)

	jrnl, err := journal.Open(cfg.Archive.JournalPath)
	if err != nil {
		logger.Fatal("Failed to open journal", zap.Error(err))
	}
	defer jrnl.Close()

	arc := archive.New(cfg.Archive.Dir,
		archive.WithLogger(logger),
		archive.WithFacsimile(facsimileFromConfig(cfg.Facsimile)),
	)

	oracle := classify.NewClient(classify.Config{
		APIKey:  cfg.Oracle.APIKey,
		BaseURL: cfg.Oracle.BaseURL,
		Model:   cfg.Oracle.Model,
		Timeout: time.Duration(cfg.Oracle.TimeoutS) * time.Second,
	}, cfg.Archive.Dir, classify.WithLogger(logger))

	engine := assembly.New(ledger.New(), oracle, arc, jrnl,
		assembly.WithLogger(logger))

	extractor := extract.New(extract.Config{
		Tesseract: cfg.OCR.Tesseract,
		Pdftoppm:  cfg.OCR.Pdftoppm,
		Language:  cfg.OCR.Language,
		DPI:       cfg.OCR.DPI,
		WorkDir:   cfg.OCR.WorkDir,
	}, extract.WithLogger(logger))

	loop := intake.NewLoop(cfg.Intake.ScanDir, cfg.Intake.Extensions,
		extractor, engine, intake.WithLogger(logger))
	loopCtx, loopCancel := context.WithCancel(context.Background())
	defer loopCancel()
	if err := loop.Start(loopCtx); err != nil {
		logger.Fatal("Failed to start intake loop", zap.Error(err))
	}

	exporter := export.NewService(arc, logger)
	srv := server.NewServer(engine, arc, exporter, &cfg.Server, logger)
	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	loopCancel()
	loop.Stop()
	if archived, flushErr := engine.FlushAll(); flushErr != nil {
		logger.Warn("flush on shutdown incomplete",
			zap.Strings("archived", archived), zap.Error(flushErr))
	} else if len(archived) > 0 {
		logger.Info("flushed open documents", zap.Strings("archived", archived))
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

// apiError is the error envelope the server writes on failures.
type apiError struct {
	Error string `json:"error"`
}

func apiCall(method, rawURL string, body interface{}) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, rawURL, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	client := &http.Client{Timeout: 60 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("is the server running? %w", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		var e apiError
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			return nil, fmt.Errorf("server: %s", e.Error)
		}
		return nil, fmt.Errorf("server returned %s", resp.Status)
	}
	return data, nil
}

func runOpen() {
	fs := flag.NewFlagSet("open", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	_ = fs.Parse(os.Args[2:])

	data, err := apiCall(http.MethodGet, *serverURL+"/api/v1/open", nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed: %v\n", err)
		os.Exit(1)
	}
	var resp struct {
		Open []models.OpenStatus `json:"open"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		fmt.Fprintf(os.Stderr, "Bad response: %v\n", err)
		os.Exit(1)
	}
	if len(resp.Open) == 0 {
		fmt.Println("No open documents.")
		return
	}
	for _, st := range resp.Open {
		complete := "incomplete"
		if st.InformationComplete {
			complete = "complete"
		}
		fmt.Printf("%s  %-10s %-24s pages=%d %s\n",
			st.ID, st.Type, st.Sender, st.PageCount, complete)
		if st.Subject != "" {
			fmt.Printf("    %s\n", st.Subject)
		}
	}
}

func runComplete() {
	fs := flag.NewFlagSet("complete", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	_ = fs.Parse(os.Args[2:])
	if fs.NArg() != 1 {
		fmt.Println("Usage: margot complete [-server url] <id>")
		os.Exit(1)
	}
	id := fs.Arg(0)
	if _, err := apiCall(http.MethodPost, *serverURL+"/api/v1/open/"+id+"/complete", nil); err != nil {
		fmt.Fprintf(os.Stderr, "Failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Archived %s\n", id)
}

func runMerge() {
	fs := flag.NewFlagSet("merge", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	_ = fs.Parse(os.Args[2:])
	if fs.NArg() != 3 {
		fmt.Println("Usage: margot merge [-server url] <target-id> <sender> <source-id>")
		os.Exit(1)
	}
	target, sourceSender, sourceID := fs.Arg(0), fs.Arg(1), fs.Arg(2)
	body := map[string]string{
		"source_sender": sourceSender,
		"source_id":     sourceID,
	}
	if _, err := apiCall(http.MethodPost, *serverURL+"/api/v1/open/"+target+"/merge", body); err != nil {
		fmt.Fprintf(os.Stderr, "Failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Merged %s/%s into %s\n", sourceSender, sourceID, target)
}

func runFlush() {
	fs := flag.NewFlagSet("flush", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	_ = fs.Parse(os.Args[2:])

	data, err := apiCall(http.MethodPost, *serverURL+"/api/v1/flush", nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed: %v\n", err)
		os.Exit(1)
	}
	var resp struct {
		Archived []string `json:"archived"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		fmt.Fprintf(os.Stderr, "Bad response: %v\n", err)
		os.Exit(1)
	}
	if len(resp.Archived) == 0 {
		fmt.Println("Nothing to flush.")
		return
	}
	for _, id := range resp.Archived {
		fmt.Printf("Archived %s\n", id)
	}
}

func runExport() {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	out := fs.String("out", "archive_index.xlsx", "output file path")
	_ = fs.Parse(os.Args[2:])

	data, err := apiCall(http.MethodGet, *serverURL+"/api/v1/export/index.xlsx", nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed: %v\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile(*out, data, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write %s: %v\n", *out, err)
		os.Exit(1)
	}
	fmt.Printf("Wrote %s (%d bytes)\n", *out, len(data))
}
