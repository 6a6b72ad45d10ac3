package services

import (
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"unicode"
)

const (
	maxFileNameRunes  = 100
	storageKeyPrefix  = "provas_gabaritos_pdf"
	bookletFilePrefix = "prova_"
	answerFilePrefix  = "gabarito_"
)

// SanitizeFileName keeps letters, digits, underscores, whitespace and hyphens,
// turns every run of whitespace or hyphens into one underscore, trims
// underscores at both ends and truncates to 100 characters.
func SanitizeFileName(name string) string {
	var kept strings.Builder
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r) || r == '_' || r == '-' || unicode.IsSpace(r) {
			kept.WriteRune(r)
		}
	}

	var out strings.Builder
	inSep := false
	for _, r := range kept.String() {
		if r == '-' || unicode.IsSpace(r) {
			if !inSep {
				out.WriteRune('_')
				inSep = true
			}
			continue
		}
		inSep = false
		out.WriteRune(r)
	}

	runes := []rune(strings.Trim(out.String(), "_"))
	if len(runes) > maxFileNameRunes {
		runes = runes[:maxFileNameRunes]
	}
	return string(runes)
}

// attachmentFileName sanitizes the base name of rawURL, keeping its extension
func attachmentFileName(prefix, rawURL string) string {
	base := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		base = u.Path
	}
	base = path.Base(base)

	ext := strings.ToLower(filepath.Ext(base))
	if ext == "" || len(ext) > 5 {
		ext = ".pdf"
	}
	stem := SanitizeFileName(strings.TrimSuffix(base, filepath.Ext(base)))
	if stem == "" {
		stem = "documento"
	}
	return prefix + stem + ext
}

// documentSlug names the per-document directory, from the identifier path or
// the display name.
func documentSlug(identifier, displayName string) string {
	if u, err := url.Parse(identifier); err == nil {
		if slug := SanitizeFileName(path.Base(strings.TrimRight(u.Path, "/"))); slug != "" && slug != "." {
			return slug
		}
	}
	if slug := SanitizeFileName(displayName); slug != "" {
		return slug
	}
	return "sem_nome"
}

// storageKey is provas_gabaritos_pdf/<category>/<slug>/<file>
func storageKey(category, slug, fileName string) string {
	return fmt.Sprintf("%s/%s/%s/%s", storageKeyPrefix, category, slug, fileName)
}
