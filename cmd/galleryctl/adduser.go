// cmd/galleryctl/adduser.go

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sentrylabs/facewatch/internal/store"
)

var (
	addFirst string
	addLast  string
	addEmail string
)

var adduserCmd = &cobra.Command{
	Use:   "adduser [photo]...",
	Short: "Register a user and their reference photos",
	Long: "Creates or updates a gallery user. Photos are uploaded to the\n" +
		"object store and referenced by URL; without an object store they\n" +
		"are copied straight into the local dataset.",
	RunE: runAddUser,
}

func init() {
	adduserCmd.Flags().StringVar(&addFirst, "first", "", "first name")
	adduserCmd.Flags().StringVar(&addLast, "last", "", "last name")
	adduserCmd.Flags().StringVar(&addEmail, "email", "", "email address (default first.last@example.com)")
	adduserCmd.MarkFlagRequired("first")
	adduserCmd.MarkFlagRequired("last")
	rootCmd.AddCommand(adduserCmd)
}

func runAddUser(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	email := addEmail
	if email == "" {
		email = fmt.Sprintf("%s.%s@example.com", strings.ToLower(addFirst), strings.ToLower(addLast))
	}

	// Save first so the upsert settles the user id the photo keys are
	// namespaced under.
	user := &store.User{FirstName: addFirst, LastName: addLast, Email: email}
	if err := events.SaveUser(ctx, user); err != nil {
		return fmt.Errorf("save user: %w", err)
	}

	if photos == nil && len(args) > 0 {
		// Local-only mode: place photos straight into the dataset so
		// the recognizer picks them up on its next start.
		dir := filepath.Join(cfg.Face.DatasetDir, user.DisplayName())
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
		for i, path := range args {
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read photo %s: %w", path, err)
			}
			dest := filepath.Join(dir, fmt.Sprintf("image_%d.jpg", i+1))
			if err := os.WriteFile(dest, data, 0644); err != nil {
				return err
			}
		}
		fmt.Printf("registered %s <%s>, %d photos copied into %s\n",
			user.DisplayName(), user.Email, len(args), dir)
		return nil
	}

	for i, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read photo %s: %w", path, err)
		}
		key := fmt.Sprintf("users/%s/image_%d.jpg", user.ID, i+1)
		url, err := photos.PutPhoto(ctx, key, data)
		if err != nil {
			return fmt.Errorf("upload photo %s: %w", path, err)
		}
		user.PhotoURLs = append(user.PhotoURLs, url)
	}

	if len(user.PhotoURLs) > 0 {
		if err := events.SaveUser(ctx, user); err != nil {
			return fmt.Errorf("save photo references: %w", err)
		}
	}

	fmt.Printf("registered %s <%s> with %d photos (id %s)\n",
		user.DisplayName(), user.Email, len(user.PhotoURLs), user.ID)
	return nil
}
