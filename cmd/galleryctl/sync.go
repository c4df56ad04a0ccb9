// cmd/galleryctl/sync.go

package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/spf13/cobra"
)

var httpClient = &http.Client{Timeout: 15 * time.Second}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Mirror registered reference photos into the local dataset",
	Long: "Fetches every registered user's reference photos and lays them\n" +
		"out as <dataset>/<display name>/image_N.jpg, the structure the\n" +
		"recognizer scans at startup.",
	RunE: runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	users, err := events.ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}

	var total, fetched int
	for _, u := range users {
		if len(u.PhotoURLs) == 0 {
			continue
		}
		dir := filepath.Join(cfg.Face.DatasetDir, u.DisplayName())
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}

		for i, url := range u.PhotoURLs {
			total++
			dest := filepath.Join(dir, fmt.Sprintf("image_%d.jpg", i+1))
			if err := fetchPhoto(ctx, url, dest); err != nil {
				fmt.Fprintf(os.Stderr, "skipping %s/image_%d.jpg: %v\n", u.DisplayName(), i+1, err)
				continue
			}
			fetched++
		}
	}

	if total == 0 {
		fmt.Println("no registered users with photos")
		return nil
	}
	fmt.Printf("synced %d/%d photos into %s\n", fetched, total, cfg.Face.DatasetDir)
	return nil
}

// fetchPhoto resolves one reference photo. Photos living in our own
// object store are read directly; anything else is downloaded over
// HTTP.
func fetchPhoto(ctx context.Context, rawURL, dest string) error {
	if photos != nil {
		if key, ok := photos.KeyFromURL(rawURL); ok {
			data, err := photos.GetPhoto(ctx, key)
			if err != nil {
				return err
			}
			return os.WriteFile(dest, data, 0644)
		}
	}
	return downloadPhoto(ctx, rawURL, dest)
}

func downloadPhoto(ctx context.Context, rawURL, dest string) error {
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("unexpected status %s", resp.Status)
		}
		// A URL that does not serve an image never will; do not retry.
		if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "image/") {
			return backoff.Permanent(fmt.Errorf("not an image (content-type %q)", ct))
		}

		f, err := os.Create(dest)
		if err != nil {
			return backoff.Permanent(err)
		}
		defer f.Close()

		_, err = io.Copy(f, resp.Body)
		return err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, 2), ctx))
}
