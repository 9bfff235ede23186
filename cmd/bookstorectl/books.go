package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/imrishuroy/go-bookstore/internal/catalog"
)

func booksCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "books",
		Short: "Manage the catalog",
	}
	cmd.AddCommand(booksImportCmd(a))
	cmd.AddCommand(booksListCmd(a))
	return cmd
}

func booksImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import [file]",
		Short: "Import books from a YAML list",
		Long: `Import books from a YAML file holding a list of books.

Existing slugs are reported and skipped.

Example:
  bookstorectl books import catalog.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.load(cmd.Context()); err != nil {
				return err
			}
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			store := catalog.NewStore(a.clients.DynamoDB, a.cfg.Tables.Books)
			res, err := importBooks(cmd.Context(), store, f, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d, skipped %d\n", res.Created, res.Skipped)
			return nil
		},
	}
}

type importResult struct {
	Created int
	Skipped int
}

func importBooks(ctx context.Context, store *catalog.Store, r io.Reader, out io.Writer) (importResult, error) {
	var books []catalog.Book
	if err := yaml.NewDecoder(r).Decode(&books); err != nil && !errors.Is(err, io.EOF) {
		return importResult{}, fmt.Errorf("parse books: %w", err)
	}

	var res importResult
	for i := range books {
		b := &books[i]
		err := store.Create(ctx, b)
		switch {
		case errors.Is(err, catalog.ErrSlugExists):
			fmt.Fprintf(out, "skip %s: already exists\n", b.Slug)
			res.Skipped++
		case errors.Is(err, catalog.ErrInvalidBook):
			fmt.Fprintf(out, "skip #%d: %v\n", i+1, err)
			res.Skipped++
		case err != nil:
			return res, fmt.Errorf("create %s: %w", b.Slug, err)
		default:
			res.Created++
		}
	}
	return res, nil
}

func booksListCmd(a *app) *cobra.Command {
	var q catalog.Query
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List books",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.load(cmd.Context()); err != nil {
				return err
			}
			store := catalog.NewStore(a.clients.DynamoDB, a.cfg.Tables.Books)
			page, err := store.List(cmd.Context(), q)
			if err != nil {
				return err
			}
			return printPage(cmd.OutOrStdout(), page, asJSON)
		},
	}
	cmd.Flags().StringVarP(&q.Text, "q", "q", "", "free-text filter (title, author, isbn, exact slug)")
	cmd.Flags().StringVarP(&q.Category, "category", "c", "", "exact category")
	cmd.Flags().IntVar(&q.Page, "page", 1, "page number")
	cmd.Flags().IntVarP(&q.Limit, "limit", "n", catalog.DefaultLimit, "page size")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")
	return cmd
}

func printPage(w io.Writer, page *catalog.Page, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(page)
	}
	for _, b := range page.Items {
		fmt.Fprintf(w, "%-40s %10.2f %s  %s\n", b.Slug, b.Price, b.Currency, b.Title)
	}
	fmt.Fprintf(w, "page %d, %d of %d\n", page.Page, len(page.Items), page.Total)
	return nil
}
