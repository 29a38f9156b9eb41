package s2

import (
	"regexp"
	"strings"
)

// Identifier types recognized by ParsePaperID.
const (
	TypeS2      = "S2"
	TypeUnknown = "UNKNOWN"
)

// PaperIdentifier is a classified paper identifier.
type PaperIdentifier struct {
	Type  string // DOI, ARXIV, PMID, PMCID, CorpusId, URL, MAG, ACL, S2 or UNKNOWN
	Value string // identifier without its prefix
}

// Common identifier prefixes supported by Semantic Scholar.
var identifierPrefixes = []string{
	"DOI:",
	"ARXIV:",
	"PMID:",
	"PMCID:",
	"CorpusId:",
	"URL:",
	"MAG:",
	"ACL:",
}

// s2IDPattern matches a 40-character hex string (raw S2 paper ID).
var s2IDPattern = regexp.MustCompile(`^[0-9a-fA-F]{40}$`)

// ParsePaperID classifies a paper identifier string.
// Supports formats:
//   - DOI:10.1038/nature12373
//   - ARXIV:2106.15928
//   - PMID:19872477
//   - PMCID:2323736
//   - CorpusId:215416146
//   - URL:https://arxiv.org/abs/2106.15928
//   - Raw 40-character S2 paper ID
//
// Anything else is classified UNKNOWN but is still a valid identifier to
// send; the service decides whether it exists.
func ParsePaperID(id string) PaperIdentifier {
	id = strings.TrimSpace(id)

	// Prefixes match case-insensitively ("arxiv:" and "ARXIV:" alike)
	for _, prefix := range identifierPrefixes {
		if len(id) >= len(prefix) && strings.EqualFold(id[:len(prefix)], prefix) {
			return PaperIdentifier{
				Type:  strings.TrimSuffix(prefix, ":"),
				Value: strings.TrimSpace(id[len(prefix):]),
			}
		}
	}

	if s2IDPattern.MatchString(id) {
		return PaperIdentifier{
			Type:  TypeS2,
			Value: strings.ToLower(id),
		}
	}

	return PaperIdentifier{
		Type:  TypeUnknown,
		Value: id,
	}
}

// String renders the identifier in the form the batch endpoint expects, with
// the canonical prefix spelling.
func (p PaperIdentifier) String() string {
	switch p.Type {
	case TypeS2, TypeUnknown:
		return p.Value
	case "DOI":
		return "DOI:" + NormalizeDOI(p.Value)
	}
	return p.Type + ":" + p.Value
}

// IsExternalID returns true if the identifier uses an external scheme
// (DOI, ArXiv, PMID, ...). S2 answers such lookups with its own paperId, so
// the tree's root ID will differ from the requested one.
func (p PaperIdentifier) IsExternalID() bool {
	return p.Type != TypeS2 && p.Type != TypeUnknown
}

// NormalizeID trims and canonicalizes an identifier's prefix.
func NormalizeID(id string) string {
	return ParsePaperID(id).String()
}

// NormalizeDOI normalizes a DOI to a consistent format for comparison.
// It removes common URL prefixes (https://doi.org/, DOI:) and converts to lowercase.
func NormalizeDOI(doi string) string {
	doi = strings.TrimSpace(doi)
	doi = strings.TrimPrefix(doi, "https://doi.org/")
	doi = strings.TrimPrefix(doi, "http://doi.org/")
	doi = strings.TrimPrefix(doi, "doi.org/")
	doi = strings.TrimPrefix(doi, "DOI:")
	return strings.ToLower(doi)
}
