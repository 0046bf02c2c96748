package common

import (
	"html"
	"regexp"
	"strings"
)

var (
	tagPattern      = regexp.MustCompile(`<[^>]+>`)
	breakPattern    = regexp.MustCompile(`(?i)<br\s*/?>|</p>`)
	creditPattern   = regexp.MustCompile(`(?i)[\[(](written by|source:)[^\])]*[\])]\s*$`)
	blankRunPattern = regexp.MustCompile(`\n{3,}`)
)

// CleanHTMLText flattens a title to one line of plain text. Entities are
// decoded first so escaped markup is stripped too.
func CleanHTMLText(raw string) string {
	value := html.UnescapeString(strings.TrimSpace(raw))
	value = tagPattern.ReplaceAllString(value, " ")
	return strings.Join(strings.Fields(value), " ")
}

// CleanSynopsis turns an upstream description into plain paragraphs: line
// breaks survive, markup goes, and a trailing source credit such as
// "[Written by MAL Rewrite]" is dropped.
func CleanSynopsis(raw string) string {
	value := html.UnescapeString(strings.TrimSpace(raw))
	value = breakPattern.ReplaceAllString(value, "\n")
	value = tagPattern.ReplaceAllString(value, " ")

	lines := strings.Split(strings.ReplaceAll(value, "\r\n", "\n"), "\n")
	for i, line := range lines {
		lines[i] = strings.Join(strings.Fields(line), " ")
	}
	value = strings.TrimSpace(strings.Join(lines, "\n"))
	value = strings.TrimSpace(creditPattern.ReplaceAllString(value, ""))
	return blankRunPattern.ReplaceAllString(value, "\n\n")
}
