package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"folio/internal/content"
	"folio/internal/toc"
)

var tocCmd = &cobra.Command{
	Use:   "toc <file>",
	Short: "Print the heading index of an article or HTML page as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runTOC,
}

func runTOC(cmd *cobra.Command, args []string) error {
	headings, err := indexFile(args[0])
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(headings)
}

func indexFile(path string) ([]toc.Heading, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm":
		doc, err := toc.ParseHTML(bytes.NewReader(src))
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		return toc.Index(doc), nil
	default:
		if !content.IsArticleFile(path) {
			return nil, fmt.Errorf("%s: unsupported file type", path)
		}
		article, err := content.Parse(path, src, content.NewRenderer())
		if err != nil {
			return nil, err
		}
		return article.Headings, nil
	}
}
