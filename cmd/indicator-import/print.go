package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/sinag-platform/vantage-backend/internal/indicatortree"
	"github.com/sinag-platform/vantage-backend/internal/services"
)

func printTree(w io.Writer, format string, roots []*indicatortree.TreeViewNode) error {
	if format == "json" {
		return writeJSON(w, roots)
	}
	var walk func(nodes []*indicatortree.TreeViewNode, depth int) error
	walk = func(nodes []*indicatortree.TreeViewNode, depth int) error {
		for _, n := range nodes {
			if _, err := fmt.Fprintf(w, "%s%s  %s\n", strings.Repeat("  ", depth), n.Code, n.Name); err != nil {
				return err
			}
			if err := walk(n.Children, depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	return walk(roots, 0)
}

func printDraft(w io.Writer, format string, view *services.DraftView) error {
	if format == "json" {
		return writeJSON(w, view)
	}
	fmt.Fprintf(w, "draft %s (%d nodes, version %d)\n", view.DraftID, view.NodeCount, view.Version)
	return printTree(w, format, view.Tree)
}
