package main

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
)

// releaseChecksums maps mermaid-ascii release asset names to SHA-256 hex
// digests.
type releaseChecksums map[string]string

// mermaidASCIIChecksums pins the assets of mermaidASCIIVersion.
var mermaidASCIIChecksums = releaseChecksums{
	"mermaid-ascii_Darwin_arm64.tar.gz":  "068d2ff869d4921655cab471500fffd8c3ed28155b100518ed3cf3835d53d3d0",
	"mermaid-ascii_Darwin_x86_64.tar.gz": "0cd4c9c01a03284fe866f39a1ce1aaee1e6a2fbd91deedc4ec254cb87622eec8",
	"mermaid-ascii_Linux_arm64.tar.gz":   "3b7d0a95141bfbca838e445ea802ffb7fba8873b3c4af498482c84f83526f2db",
	"mermaid-ascii_Linux_x86_64.tar.gz":  "838ea93d561b3bc83aa15531c6ed7d2d261a8edc521d5484f7e91fe831cc4c65",
}

// checksumsFor picks the digests a mermaid-ascii release is verified
// against: the ones read from file when given, the pinned set for the
// default version, and none otherwise.
func checksumsFor(version, file string) (releaseChecksums, error) {
	if file != "" {
		f, err := os.Open(file)
		if err != nil {
			return nil, fmt.Errorf("open checksums: %w", err)
		}
		defer f.Close()
		return readChecksums(f)
	}
	if version == mermaidASCIIVersion {
		return mermaidASCIIChecksums, nil
	}
	return nil, nil
}

// readChecksums parses sha256sum output, one "<hex>  <asset>" per line with an
// optional '*' binary marker. Comments and malformed lines are skipped.
func readChecksums(r io.Reader) (releaseChecksums, error) {
	sums := make(releaseChecksums)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "#") {
			continue
		}
		digest, asset, ok := strings.Cut(line, " ")
		asset = strings.TrimPrefix(strings.TrimSpace(asset), "*")
		if !ok || asset == "" || len(digest) != sha256.Size*2 {
			continue
		}
		sums[asset] = strings.ToLower(digest)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading checksums: %w", err)
	}
	return sums, nil
}

// asset resolves the release asset for a platform and the digest it must
// match. Platforms without a published asset, and assets without a known
// digest, are errors.
func (c releaseChecksums) asset(goos, goarch string) (name, digest string, err error) {
	name, err = mermaidASCIIAssetName(goos, goarch)
	if err != nil {
		return "", "", err
	}
	digest, ok := c[name]
	if !ok {
		return "", "", fmt.Errorf("no known checksum for %s", name)
	}
	return name, digest, nil
}

// mermaidASCIIAssetName returns the GitHub release asset name for a platform.
func mermaidASCIIAssetName(goos, goarch string) (string, error) {
	osNames := map[string]string{"darwin": "Darwin", "linux": "Linux"}
	archNames := map[string]string{"amd64": "x86_64", "arm64": "arm64", "386": "i386"}

	osName, ok := osNames[goos]
	if !ok {
		return "", fmt.Errorf("mermaid-ascii: unsupported OS %q", goos)
	}
	archName, ok := archNames[goarch]
	if !ok {
		return "", fmt.Errorf("mermaid-ascii: unsupported architecture %q", goarch)
	}
	return fmt.Sprintf("mermaid-ascii_%s_%s.tar.gz", osName, archName), nil
}

// httpGetter is satisfied by *http.Client.
type httpGetter interface {
	Get(url string) (*http.Response, error)
}

// fetchVerified downloads url into a temporary file in dir, hashing while it
// writes, and keeps the file only when its digest equals want. The caller
// removes the returned path.
func fetchVerified(client httpGetter, url, dir, want string) (string, error) {
	resp, err := client.Get(url)
	if err != nil {
		return "", fmt.Errorf("download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download failed: %s returned %d", url, resp.StatusCode)
	}

	f, err := os.CreateTemp(dir, "mermaid-ascii-*.tar.gz")
	if err != nil {
		return "", err
	}
	path := f.Name()

	h := sha256.New()
	_, copyErr := io.Copy(io.MultiWriter(f, h), resp.Body)
	closeErr := f.Close()
	switch {
	case copyErr != nil:
		os.Remove(path)
		return "", fmt.Errorf("download failed: %w", copyErr)
	case closeErr != nil:
		os.Remove(path)
		return "", closeErr
	}

	if got := hex.EncodeToString(h.Sum(nil)); got != want {
		os.Remove(path)
		return "", fmt.Errorf("checksum mismatch for %s (expected %s, got %s)", url, want, got)
	}
	return path, nil
}
