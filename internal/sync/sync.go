// Package sync reconciles notes sources into the note-card question bank.
package sync

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/conorfennell/studypal/internal/gitsource"
	"github.com/conorfennell/studypal/internal/notes"
	"github.com/conorfennell/studypal/internal/storage"
)

// Run iterates over all configured sources and reconciles each one into the
// note-card bank. Per-source failures are logged and skipped so one broken
// source cannot block the rest.
func Run(ctx context.Context, db *storage.DB, reposDir string) error {
	slog.Info("starting notes sync")
	sources, err := db.AllSources()
	if err != nil {
		return fmt.Errorf("failed to get sources: %w", err)
	}
	if len(sources) == 0 {
		slog.Info("no notes sources configured")
		return nil
	}

	if err := os.MkdirAll(reposDir, os.ModePerm); err != nil {
		return fmt.Errorf("failed to create repos directory: %w", err)
	}

	for _, source := range sources {
		slog.Info("syncing source", "id", source.ID, "type", source.Type, "path", source.Path)

		scanPath := source.Path
		if source.Type == "git" {
			localPath, err := gitURLToLocalPath(reposDir, source.Path)
			if err != nil {
				slog.Error("cannot determine local path for git source", "url", source.Path, "error", err)
				continue
			}
			if err := gitsource.Sync(ctx, source.Path, localPath); err != nil {
				slog.Error("git sync failed", "url", source.Path, "error", err)
				continue
			}
			scanPath = localPath
		}

		if err := reconcile(db, source.ID, scanPath); err != nil {
			slog.Error("reconciliation failed", "path", scanPath, "error", err)
		}
	}
	slog.Info("notes sync complete")
	return nil
}

// reconcile walks scanPath for markdown files, inserts new cards, and
// removes cards that disappeared from the source.
func reconcile(db *storage.DB, sourceID int64, scanPath string) error {
	foundHashes := make(map[string]bool)
	var parsed, inserted int
	var parseErrors []error

	walkErr := filepath.WalkDir(scanPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(strings.ToLower(d.Name()), ".md") {
			return nil
		}

		cards, parseErr := notes.ParseFile(path)
		if parseErr != nil {
			parseErrors = append(parseErrors, fmt.Errorf("parsing %s: %w", path, parseErr))
			return nil
		}
		for _, card := range cards {
			card.Hash = notes.Hash(card)
			if card.Topic == "" {
				card.Topic = topicFromFilename(path)
			}
			parsed++
			foundHashes[card.Hash] = true

			existing, findErr := db.FindNoteCardByHash(card.Hash)
			if findErr != nil {
				parseErrors = append(parseErrors, fmt.Errorf("db check for %s: %w", card.Hash, findErr))
				continue
			}
			if existing == nil {
				if insertErr := db.InsertNoteCard(card, sourceID); insertErr != nil {
					parseErrors = append(parseErrors, fmt.Errorf("db insert for %s: %w", card.Hash, insertErr))
					continue
				}
				inserted++
			}
		}
		return nil
	})
	if walkErr != nil {
		return fmt.Errorf("failed to walk %s: %w", scanPath, walkErr)
	}

	stored, err := db.NoteCardsBySourceID(sourceID)
	if err != nil {
		return fmt.Errorf("failed to get cards for source %d: %w", sourceID, err)
	}

	var orphaned int
	for _, card := range stored {
		if !foundHashes[card.Hash] {
			orphaned++
			if err := db.DeleteNoteCardByHash(card.Hash); err != nil {
				slog.Warn("failed to delete orphaned card", "hash", card.Hash, "error", err)
			}
		}
	}

	if err := db.UpdateSourceLastScanned(sourceID); err != nil {
		slog.Warn("failed to update last scanned", "source_id", sourceID, "error", err)
	}

	slog.Info("reconciliation complete",
		"path", scanPath,
		"parsed_cards", parsed,
		"new_cards", inserted,
		"orphaned_deleted", orphaned,
		"errors", len(parseErrors),
	)
	return nil
}

// topicFromFilename derives a fallback topic for cards in files without a
// heading, e.g. "eoq-basics.md" -> "eoq basics".
func topicFromFilename(path string) string {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return strings.ReplaceAll(strings.ReplaceAll(base, "-", " "), "_", " ")
}

// DetectSourceType classifies a source path as local or git.
func DetectSourceType(path string) string {
	if strings.HasSuffix(path, ".git") || strings.HasPrefix(path, "git@") ||
		strings.HasPrefix(path, "https://") || strings.HasPrefix(path, "http://") {
		return "git"
	}
	return "local"
}

func gitURLToLocalPath(baseDir, repoURL string) (string, error) {
	parsedURL, err := url.Parse(repoURL)
	if err != nil || (parsedURL.Scheme != "https" && parsedURL.Scheme != "http") {
		if strings.Contains(repoURL, "@") {
			parts := strings.Split(repoURL, ":")
			if len(parts) == 2 {
				hostAndUser := strings.Split(parts[0], "@")
				if len(hostAndUser) == 2 {
					host := hostAndUser[1]
					repoPath := strings.TrimSuffix(parts[1], ".git")
					return filepath.Join(baseDir, host, repoPath), nil
				}
			}
		}
		return "", fmt.Errorf("could not parse git URL: %s", repoURL)
	}

	sanitizedPath := strings.TrimSuffix(parsedURL.Path, ".git")
	return filepath.Join(baseDir, parsedURL.Host, sanitizedPath), nil
}
