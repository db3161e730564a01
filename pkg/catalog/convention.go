// CLAUDE:SUMMARY Naming conventions for geographic lookup columns (code/name suffixes, local-authority prefixes), injectable per catalog.
package catalog

import "strings"

// Convention describes how geographic columns are named. The defaults follow
// the ONS/GSS scheme (e.g. LAD22CD, LAD22NM); other schemes supply their own.
type Convention struct {
	// CodeSuffix marks joinable code columns (default "CD").
	CodeSuffix string `yaml:"code_suffix"`
	// NameSuffix marks human-readable name columns (default "NM").
	NameSuffix string `yaml:"name_suffix"`
	// LocalAuthorityPrefixes identify local-authority columns (default LAD, UTLA, LTLA).
	LocalAuthorityPrefixes []string `yaml:"local_authority_prefixes"`
	// IgnoredColumns are dropped whenever a table is read (default OBJECTID).
	IgnoredColumns []string `yaml:"ignored_columns"`
	// CodeColumn overrides the suffix test when set.
	CodeColumn func(column string) bool `yaml:"-"`
}

// DefaultConvention returns the UK GSS naming convention.
func DefaultConvention() Convention {
	return Convention{
		CodeSuffix:             "CD",
		NameSuffix:             "NM",
		LocalAuthorityPrefixes: []string{"LAD", "UTLA", "LTLA"},
		IgnoredColumns:         []string{"OBJECTID"},
	}
}

// WithDefaults fills unset fields from DefaultConvention.
func (c Convention) WithDefaults() Convention {
	d := DefaultConvention()
	if c.CodeSuffix == "" {
		c.CodeSuffix = d.CodeSuffix
	}
	if c.NameSuffix == "" {
		c.NameSuffix = d.NameSuffix
	}
	if len(c.LocalAuthorityPrefixes) == 0 {
		c.LocalAuthorityPrefixes = d.LocalAuthorityPrefixes
	}
	if c.IgnoredColumns == nil {
		c.IgnoredColumns = d.IgnoredColumns
	}
	return c
}

// IsCodeColumn reports whether column is a joinable geographic code.
func (c Convention) IsCodeColumn(column string) bool {
	if c.CodeColumn != nil {
		return c.CodeColumn(column)
	}
	return hasSuffixFold(column, c.CodeSuffix)
}

// IsLocalAuthorityName reports whether column holds local-authority names.
func (c Convention) IsLocalAuthorityName(column string) bool {
	return c.hasLocalAuthorityPrefix(column) && hasSuffixFold(column, c.NameSuffix)
}

func (c Convention) hasLocalAuthorityPrefix(column string) bool {
	up := strings.ToUpper(column)
	for _, p := range c.LocalAuthorityPrefixes {
		if p != "" && strings.HasPrefix(up, strings.ToUpper(p)) {
			return true
		}
	}
	return false
}

func hasSuffixFold(s, suffix string) bool {
	if suffix == "" || len(s) < len(suffix) {
		return false
	}
	return strings.EqualFold(s[len(s)-len(suffix):], suffix)
}
