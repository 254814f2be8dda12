package migrate

import (
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strings"
)

var (
	sqlFileRe = regexp.MustCompile(`^(\d{14})_[a-z0-9_]+\.sql$`)

	timestampPlaceholder = "${" + TimestampTypeEnv + ":-TIMESTAMPTZ}"
	bareTimestampRe      = regexp.MustCompile(`(?i)\bTIMESTAMP(TZ)?\b|\bDATETIME\b`)
)

// ValidateDir checks the migrations stored in dir.
func ValidateDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("dir is required")
	}
	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("read dir %q: %w", dir, err)
	}
	return ValidateFS(os.DirFS(dir))
}

// ValidateFS checks filenames, version uniqueness, the Up/Down annotations and
// that timestamp columns are declared through the dialect placeholder so the
// same file applies on postgres and sqlite.
func ValidateFS(fsys fs.FS) error {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}

	seen := map[string]string{}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}

		m := sqlFileRe.FindStringSubmatch(name)
		if m == nil {
			return fmt.Errorf("invalid migration filename %q (expected YYYYMMDDHHMMSS_name.sql)", name)
		}
		if prev, ok := seen[m[1]]; ok {
			return fmt.Errorf("duplicate migration version %s in %q and %q", m[1], prev, name)
		}
		seen[m[1]] = name

		b, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("read file %q: %w", name, err)
		}
		if err := validateSQL(name, string(b)); err != nil {
			return err
		}
	}
	return nil
}

func validateSQL(name, txt string) error {
	if !strings.Contains(txt, "-- +goose Up") {
		return fmt.Errorf("migration %q missing \"-- +goose Up\"", name)
	}
	if !strings.Contains(txt, "-- +goose Down") {
		return fmt.Errorf("migration %q missing \"-- +goose Down\"", name)
	}

	stripped := strings.ReplaceAll(txt, timestampPlaceholder, "")
	if bareTimestampRe.MatchString(stripped) {
		return fmt.Errorf("migration %q declares a timestamp column without %s", name, timestampPlaceholder)
	}
	if stripped != txt && !strings.Contains(txt, "-- +goose ENVSUB ON") {
		return fmt.Errorf("migration %q uses %s without \"-- +goose ENVSUB ON\"", name, timestampPlaceholder)
	}
	return nil
}
