package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/chcolte/site-image-mirror/config"
	"github.com/chcolte/site-image-mirror/downloader"
	"github.com/chcolte/site-image-mirror/extractor"
	"github.com/chcolte/site-image-mirror/logger"
	"github.com/chcolte/site-image-mirror/manifest"
)

const (
	modeExtract  = "extract"
	modeDownload = "download"
	modeAll      = "all"
)

func main() {
	mode, cfg := readFlags()
	logger.SetVerbose(cfg.Verbose)

	if err := cfg.Validate(); err != nil {
		logger.Fatalf("Invalid configuration: %v", err)
	}
	if mode != modeExtract && mode != modeDownload && mode != modeAll {
		logger.Fatalf("Unknown mode %q (use extract, download or all)", mode)
	}

	startMessage(mode, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if mode == modeExtract || mode == modeAll {
		runExtract(cfg)
	}
	if mode == modeDownload || mode == modeAll {
		runDownload(ctx, mode, cfg)
	}
}

func runExtract(cfg *config.Config) {
	n, err := extractor.Run(cfg)
	if err != nil {
		logger.Fatalf("Extraction failed: %v", err)
	}
	logger.Infof("Wrote %d image URLs to %s", n, cfg.URLList)
}

func runDownload(ctx context.Context, mode string, cfg *config.Config) {
	urls, err := downloader.ReadURLList(cfg.URLList)
	if err != nil {
		logger.Fatalf("Failed to read URL list: %v", err)
	}

	mf := manifest.NewWriter(cfg.Manifest)
	if err := mf.SaveRunInfo(mode, cfg.URLList, cfg.OutputDir, cfg.RemotePrefix); err != nil {
		logger.Errorf("Failed to write manifest: %v", err)
	}

	d := downloader.New(downloader.Options{
		RemotePrefix: cfg.RemotePrefix,
		OutputDir:    cfg.OutputDir,
		Client:       downloader.NewHTTPClient(cfg.Timeout),
		Manifest:     mf,
	})
	sum := d.Run(ctx, urls)
	logger.Infof("Done: %d downloaded, %d failed, %d skipped (of %d listed)",
		sum.Downloaded, sum.Failed, sum.Skipped, len(urls))
}

func startMessage(mode string, cfg *config.Config) {
	logger.SetFlags(0)
	logger.Info("---------------------------------------------------")
	logger.Info("Site Image Mirror v", manifest.ToolVersion)
	logger.Info("- Mode:             ", mode)
	logger.Info("- HTML input:       ", cfg.InputHTML)
	logger.Info("- URL list:         ", cfg.URLList)
	logger.Info("- Output directory: ", cfg.OutputDir)
	logger.Info("- Remote prefix:    ", cfg.RemotePrefix)
	logger.Info("- Parser:           ", cfg.Parser)
	if cfg.Manifest != "" {
		logger.Info("- Manifest:         ", cfg.Manifest)
	}
	logger.Info("---------------------------------------------------")
	logger.SetFlags(log.LstdFlags)
}

// readFlags loads the config file named by -c, then applies any flag that
// was given explicitly on the command line.
func readFlags() (string, *config.Config) {
	var (
		c       = flag.String("c", "config.yml", "config file (optional)")
		m       = flag.String("m", modeAll, "mode (extract, download, all)")
		i       = flag.String("i", "", "HTML input file")
		o       = flag.String("o", "", "URL list file")
		d       = flag.String("d", "", "output directory")
		p       = flag.String("p", "", "remote URL prefix mapped onto the output directory")
		parser  = flag.String("parser", "", "extraction parser (regex, dom)")
		cs      = flag.String("charset", "", "HTML input charset (utf-8, auto, ...)")
		mf      = flag.String("manifest", "", "append a JSONL record per URL to this file")
		timeout = flag.Duration("timeout", 0, "per-request timeout (0 = none)")
		v       = flag.Bool("V", false, "verbose output")
	)
	flag.Parse()

	cfg, err := config.Load(*c)
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "i":
			cfg.InputHTML = *i
		case "o":
			cfg.URLList = *o
		case "d":
			cfg.OutputDir = *d
		case "p":
			cfg.RemotePrefix = *p
		case "parser":
			cfg.Parser = *parser
		case "charset":
			cfg.InputCharset = *cs
		case "manifest":
			cfg.Manifest = *mf
		case "timeout":
			cfg.Timeout = *timeout
		case "V":
			cfg.Verbose = *v
		}
	})
	return *m, cfg
}
