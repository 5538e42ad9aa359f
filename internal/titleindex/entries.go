// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package titleindex

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/epheterson/zimi/internal/domain"
	"github.com/epheterson/zimi/pkg/stringutils"
)

// ArchiveMeta is the row persisted per indexed archive.
type ArchiveMeta struct {
	ID           string
	Path         string
	Title        string
	Language     string
	Category     domain.Category
	Publisher    string
	Flavour      string
	Description  string
	ArticleCount int64
	MediaCount   int64
	SizeBytes    int64
	IndexedAt    time.Time
	SourceRank   int
	FTSSkipped   bool
}

// ftsEntryLimit is the entry count above which FTS is omitted at build time
// (spec.md §4.2: "FTS skipped at creation when entry count > 2,000,000 and
// can be built on demand"). A var, not a const, so tests can shrink it
// rather than constructing a multi-million-row fixture.
var ftsEntryLimit = 2_000_000

// substringScanBudget bounds the non-FTS LIKE '%...%' fallback scan used by
// TitleSearch per archive (spec.md §4.2: "capped by a cost budget (default
// 50 ms per archive; over budget yields partial results with a
// truncated=true flag)"). A var so tests can shrink it.
var substringScanBudget = 50 * time.Millisecond

// Entry is one title-index row: a single searchable ZIM entry.
type Entry struct {
	ArchiveID  string
	Path       string
	Title      string
	TitleLower string
	MimeType   string
	Namespace  string
	Body       string // only populated when building the FTS table
}

// UpsertArchive records (or updates) an archive's metadata row.
func (s *Store) UpsertArchive(ctx context.Context, m ArchiveMeta) error {
	_, err := s.execContext(ctx, `
		INSERT INTO archives (id, path, title, language, category, publisher, flavour, description, article_count, media_count, size_bytes, indexed_at, source_rank, fts_skipped)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			path = excluded.path,
			title = excluded.title,
			language = excluded.language,
			category = excluded.category,
			publisher = excluded.publisher,
			flavour = excluded.flavour,
			description = excluded.description,
			article_count = excluded.article_count,
			media_count = excluded.media_count,
			size_bytes = excluded.size_bytes,
			indexed_at = excluded.indexed_at,
			source_rank = excluded.source_rank,
			fts_skipped = excluded.fts_skipped
	`, m.ID, m.Path, m.Title, m.Language, string(m.Category), m.Publisher, m.Flavour, m.Description,
		m.ArticleCount, m.MediaCount, m.SizeBytes, m.IndexedAt, m.SourceRank, m.FTSSkipped)
	return err
}

// RemoveArchive deletes an archive and all of its indexed entries (its
// entries_fts rows are deleted separately since FTS5 content is not
// covered by the entries table's ON DELETE CASCADE).
func (s *Store) RemoveArchive(ctx context.Context, archiveID string) error {
	return s.WriteTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM entries WHERE archive_id = ?", archiveID); err != nil {
			return fmt.Errorf("delete entries: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM entries_fts WHERE archive_id = ?", archiveID); err != nil {
			return fmt.Errorf("delete fts entries: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM archives WHERE id = ?", archiveID); err != nil {
			return fmt.Errorf("delete archive: %w", err)
		}
		return nil
	})
}

// ReplaceEntries atomically replaces an archive's entries (title index and
// full-text index) with the given set. Used by the archive registry each
// time a .zim file is (re)opened or found changed.
func (s *Store) ReplaceEntries(ctx context.Context, archiveID string, entries []Entry) error {
	return s.WriteTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM entries WHERE archive_id = ?", archiveID); err != nil {
			return fmt.Errorf("clear entries: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM entries_fts WHERE archive_id = ?", archiveID); err != nil {
			return fmt.Errorf("clear fts entries: %w", err)
		}

		entryStmt, err := tx.PrepareContext(ctx, `
			INSERT INTO entries (archive_id, path, title, title_lower, mimetype, namespace)
			VALUES (?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("prepare entry insert: %w", err)
		}
		defer entryStmt.Close()

		ftsStmt, err := tx.PrepareContext(ctx, `
			INSERT INTO entries_fts (title, body, path, archive_id) VALUES (?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("prepare fts insert: %w", err)
		}
		defer ftsStmt.Close()

		var articleCount int
		for _, e := range entries {
			if e.Namespace == "A" {
				articleCount++
			}
		}
		skipFTS := articleCount > ftsEntryLimit
		if skipFTS {
			log.Warn().Str("archive", archiveID).Int("entries", articleCount).
				Msg("skipping FTS build: entry count exceeds limit, build on demand via /manage/build-fts")
		}

		for _, e := range entries {
			titleLower := e.TitleLower
			if titleLower == "" {
				titleLower = stringutils.FoldTitle(e.Title)
			}

			if _, err := entryStmt.ExecContext(ctx, archiveID, e.Path, e.Title, titleLower, e.MimeType, e.Namespace); err != nil {
				return fmt.Errorf("insert entry %s: %w", e.Path, err)
			}

			if e.Namespace == "A" && !skipFTS {
				if _, err := ftsStmt.ExecContext(ctx, e.Title, e.Body, e.Path, archiveID); err != nil {
					return fmt.Errorf("insert fts entry %s: %w", e.Path, err)
				}
			}
		}

		if _, err := tx.ExecContext(ctx, "UPDATE archives SET fts_skipped = ? WHERE id = ?", skipFTS, archiveID); err != nil {
			return fmt.Errorf("record fts_skipped: %w", err)
		}

		return nil
	})
}

// BuildFTS populates entries_fts for archiveID from its already-indexed
// entries table, in place, without re-enumerating or replacing the
// archive's entries (spec.md §4.2: "Dynamic FTS build ... adds the FTS
// table in place without rebuilding entries"). Used when an archive was
// indexed with fts_skipped set, or after a corrupted entries_fts needs a
// targeted repair.
func (s *Store) BuildFTS(ctx context.Context, archiveID string) error {
	return s.WriteTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM entries_fts WHERE archive_id = ?", archiveID); err != nil {
			return fmt.Errorf("clear fts entries: %w", err)
		}

		rows, err := tx.QueryContext(ctx, `
			SELECT path, title FROM entries WHERE archive_id = ? AND namespace = 'A'
		`, archiveID)
		if err != nil {
			return fmt.Errorf("read entries for fts build: %w", err)
		}
		defer rows.Close()

		ftsStmt, err := tx.PrepareContext(ctx, `
			INSERT INTO entries_fts (title, body, path, archive_id) VALUES (?, '', ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("prepare fts insert: %w", err)
		}
		defer ftsStmt.Close()

		var path, title string
		for rows.Next() {
			if err := rows.Scan(&path, &title); err != nil {
				return fmt.Errorf("scan entry for fts build: %w", err)
			}
			if _, err := ftsStmt.ExecContext(ctx, title, path, archiveID); err != nil {
				return fmt.Errorf("insert fts entry %s: %w", path, err)
			}
		}
		if err := rows.Err(); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, "UPDATE archives SET fts_skipped = 0 WHERE id = ?", archiveID); err != nil {
			return fmt.Errorf("clear fts_skipped: %w", err)
		}
		return nil
	})
}

// PrefixMatch returns up to limit entries from a single archive whose
// title_lower starts with the folded query, ordered by title length then
// lexicographically (spec.md §4.2 suggestion ranking: shorter titles rank
// above longer ones for an identical prefix).
func (s *Store) PrefixMatch(ctx context.Context, archiveID, query string, limit int) ([]Entry, error) {
	folded := stringutils.FoldTitle(query)
	rows, err := s.queryContext(ctx, `
		SELECT archive_id, path, title, title_lower, mimetype, namespace
		FROM entries
		WHERE archive_id = ? AND title_lower LIKE ? || '%' ESCAPE '\'
		ORDER BY length(title) ASC, title_lower ASC
		LIMIT ?
	`, archiveID, escapeLike(folded), limit)
	if err != nil {
		return nil, fmt.Errorf("prefix match: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// TitleSearch performs a bounded scan for entries of a single archive whose
// title_lower contains the folded query as a substring; Phase 1 of
// cross-archive search calls it once per archive (spec.md §4.1). The scan is capped
// at substringScanBudget per archive (spec.md §4.2); if the budget is
// exceeded before the query and scan finish, whatever rows were already
// read are returned with truncated=true rather than an error.
func (s *Store) TitleSearch(ctx context.Context, archiveID, query string, limit int) ([]Entry, bool, error) {
	folded := stringutils.FoldTitle(query)

	budgetCtx, cancel := context.WithTimeout(ctx, substringScanBudget)
	defer cancel()

	rows, err := s.queryContext(budgetCtx, `
		SELECT archive_id, path, title, title_lower, mimetype, namespace
		FROM entries
		WHERE archive_id = ? AND title_lower LIKE '%' || ? || '%' ESCAPE '\'
		ORDER BY length(title) ASC
		LIMIT ?
	`, archiveID, escapeLike(folded), limit)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, true, nil
		}
		return nil, false, fmt.Errorf("title search: %w", err)
	}
	defer rows.Close()

	entries, err := scanEntries(rows)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return entries, true, nil
		}
		return nil, false, fmt.Errorf("title search: %w", err)
	}
	return entries, false, nil
}

// FullTextSearch runs an FTS5 MATCH query against title+body, scoped to
// archiveIDs if non-empty. The search engine's Phase 2 does not call it; it
// queries each archive's native full-text index instead.
func (s *Store) FullTextSearch(ctx context.Context, archiveIDs []string, query string, limit int) ([]Entry, error) {
	args := []any{query}
	filter := ""
	if len(archiveIDs) > 0 {
		placeholders := make([]byte, 0, len(archiveIDs)*2)
		for i, id := range archiveIDs {
			if i > 0 {
				placeholders = append(placeholders, ',')
			}
			placeholders = append(placeholders, '?')
			args = append(args, id)
		}
		filter = fmt.Sprintf(" AND archive_id IN (%s)", string(placeholders))
	}
	args = append(args, limit)

	rows, err := s.queryContext(ctx, fmt.Sprintf(`
		SELECT archive_id, path, title, '' AS title_lower, '' AS mimetype, 'A' AS namespace
		FROM entries_fts
		WHERE entries_fts MATCH ?%s
		ORDER BY rank
		LIMIT ?
	`, filter), args...)
	if err != nil {
		return nil, fmt.Errorf("full text search: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// Exists reports whether archiveID has an indexed entry at path, returning
// its title when found. Used by the cross-source link resolver (spec.md
// §4.5), which needs a cheap existence check rather than a ranked search.
func (s *Store) Exists(ctx context.Context, archiveID, path string) (title string, ok bool, err error) {
	row := s.queryRowContext(ctx, `
		SELECT title FROM entries WHERE archive_id = ? AND path = ?
	`, archiveID, path)
	if err := row.Scan(&title); err != nil {
		if err == sql.ErrNoRows {
			return "", false, nil
		}
		return "", false, fmt.Errorf("check entry existence: %w", err)
	}
	return title, true, nil
}

// Archives lists every indexed archive's metadata, for the /list endpoint.
func (s *Store) Archives(ctx context.Context) ([]ArchiveMeta, error) {
	rows, err := s.queryContext(ctx, `
		SELECT id, path, title, language, category, publisher, flavour, description, article_count, media_count, size_bytes, indexed_at, source_rank, fts_skipped
		FROM archives
		ORDER BY title ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list archives: %w", err)
	}
	defer rows.Close()

	var metas []ArchiveMeta
	for rows.Next() {
		var m ArchiveMeta
		var category string
		var indexedAt sql.NullTime
		if err := rows.Scan(&m.ID, &m.Path, &m.Title, &m.Language, &category, &m.Publisher, &m.Flavour, &m.Description,
			&m.ArticleCount, &m.MediaCount, &m.SizeBytes, &indexedAt, &m.SourceRank, &m.FTSSkipped); err != nil {
			return nil, fmt.Errorf("scan archive: %w", err)
		}
		m.Category = domain.Category(category)
		if indexedAt.Valid {
			m.IndexedAt = indexedAt.Time
		}
		metas = append(metas, m)
	}
	return metas, rows.Err()
}

// scanEntries reads rows into Entry values. ArchiveID and Namespace are
// interned since a single query can return thousands of rows that all
// repeat the same handful of archive ids and namespace letters.
func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ArchiveID, &e.Path, &e.Title, &e.TitleLower, &e.MimeType, &e.Namespace); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		e.ArchiveID = stringutils.Intern(e.ArchiveID)
		e.Namespace = stringutils.Intern(e.Namespace)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// escapeLike escapes LIKE metacharacters (% _ \) in a user-supplied fragment.
func escapeLike(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '%', '_', '\\':
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}
