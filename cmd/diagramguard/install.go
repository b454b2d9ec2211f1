package main

import (
	"archive/tar"
	"compress/gzip"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

const mermaidASCIIVersion = "1.1.0"

const mermaidASCIIReleaseURL = "https://github.com/AlexanderGrooff/mermaid-ascii/releases/download/%s/%s"

// asciiInstall describes one mermaid-ascii download.
type asciiInstall struct {
	BinDir    string
	Version   string
	Checksums releaseChecksums
	Client    httpGetter
	Out       io.Writer
}

func runInstall(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("install", flag.ContinueOnError)
	fs.SetOutput(stderr)
	dbPath := fs.String("db-path", "", "database path (default: ~/.diagramguard/diagramguard.db)")
	logLevel := fs.String("log-level", "info", "log level: debug, info, warn, error")
	engine := fs.String("engine", engineASCII, "render engine: ascii, mmdc, graphviz")
	mode := fs.String("extract-mode", "sections", "extraction mode: sections, simple")
	schedule := fs.String("rescan-schedule", "", "cron expression for stored document rescans")
	asciiVersion := fs.String("mermaid-ascii-version", mermaidASCIIVersion, "mermaid-ascii release to download")
	checksumFile := fs.String("checksums", "", "checksums file for a non-default mermaid-ascii release")
	skipTools := fs.Bool("skip-tools", false, "do not download mermaid-ascii")
	if err := fs.Parse(args); err != nil {
		return err
	}

	dir := guardDir()
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("cannot create %s: %w", dir, err)
	}

	cfg := defaultConfig(dir)
	cfg.LogLevel = *logLevel
	cfg.Engine = *engine
	cfg.ExtractMode = *mode
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}
	if *schedule != "" {
		cfg.RescanSchedule = *schedule
	}
	if _, err := newEngine(cfg, nil); err != nil {
		return err
	}

	path := settingsPath(dir)
	if err := writeSettings(path, cfg); err != nil {
		return fmt.Errorf("cannot write %s: %w", path, err)
	}
	fmt.Fprintf(stdout, "Config written to %s\n", path)

	if *skipTools || cfg.Engine != engineASCII {
		return nil
	}

	checksums, err := checksumsFor(*asciiVersion, *checksumFile)
	if err != nil {
		return err
	}

	// Non-fatal: the ascii engine falls back to the built-in text renderer.
	err = installMermaidASCII(asciiInstall{
		BinDir:    filepath.Join(dir, "bin"),
		Version:   *asciiVersion,
		Checksums: checksums,
		Client:    &http.Client{Timeout: 60 * time.Second},
		Out:       stdout,
	})
	if err != nil {
		fmt.Fprintf(stderr, "Warning: %v, ASCII diagrams will use the built-in renderer\n", err)
	}
	return nil
}

// installMermaidASCII downloads, verifies, and unpacks the mermaid-ascii
// binary into in.BinDir. An asset without a known checksum is refused.
func installMermaidASCII(in asciiInstall) error {
	destPath := filepath.Join(in.BinDir, "mermaid-ascii")

	if _, err := os.Stat(destPath); err == nil {
		fmt.Fprintf(in.Out, "mermaid-ascii already installed at %s\n", destPath)
		return nil
	}

	assetName, expected, err := in.Checksums.asset(runtime.GOOS, runtime.GOARCH)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(in.BinDir, 0o755); err != nil {
		return fmt.Errorf("cannot create %s: %w", in.BinDir, err)
	}

	fmt.Fprintf(in.Out, "Downloading mermaid-ascii %s...\n", in.Version)
	tmpPath, err := fetchVerified(in.Client, fmt.Sprintf(mermaidASCIIReleaseURL, in.Version, assetName), in.BinDir, expected)
	if err != nil {
		return err
	}
	defer os.Remove(tmpPath)

	f, err := os.Open(tmpPath)
	if err != nil {
		return fmt.Errorf("cannot open archive: %w", err)
	}
	defer f.Close()

	if err := extractTarGz(f, in.BinDir, "mermaid-ascii"); err != nil {
		_ = os.Remove(destPath)
		return fmt.Errorf("extraction failed: %w", err)
	}
	if err := os.Chmod(destPath, 0o755); err != nil {
		return fmt.Errorf("chmod failed: %w", err)
	}

	fmt.Fprintf(in.Out, "mermaid-ascii installed to %s\n", destPath)
	return nil
}

// extractTarGz extracts a specific file from a tar.gz archive into destDir.
func extractTarGz(r io.Reader, destDir, targetName string) error {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("gzip: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return fmt.Errorf("file %q not found in archive", targetName)
		}
		if err != nil {
			return fmt.Errorf("tar: %w", err)
		}

		// Match by base name; the archive may carry a directory prefix.
		if filepath.Base(hdr.Name) != targetName || hdr.Typeflag != tar.TypeReg {
			continue
		}
		if strings.Contains(hdr.Name, "..") {
			return fmt.Errorf("refusing archive entry %q", hdr.Name)
		}

		destPath := filepath.Join(destDir, targetName)
		f, err := os.OpenFile(destPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o755)
		if err != nil {
			return fmt.Errorf("create %s: %w", destPath, err)
		}
		if _, err := io.Copy(f, tr); err != nil { //nolint:gosec // bounded by tar header size
			f.Close()
			return fmt.Errorf("write %s: %w", destPath, err)
		}
		return f.Close()
	}
}
