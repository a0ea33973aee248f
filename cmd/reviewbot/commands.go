package main

import (
	"fmt"
	"io"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"reviewrag/internal/config"
	"reviewrag/internal/domain"
	"reviewrag/internal/logger"
	"reviewrag/internal/server"
	"reviewrag/internal/service"
	"reviewrag/internal/tui"
)

const defaultSampleQuery = "Can you tell me the low budget headphone?"

func ingestCmd(a *app) *cobra.Command {
	var (
		reset       bool
		sampleQuery string
	)
	cmd := &cobra.Command{
		Use:   "ingest [path]",
		Short: "Load a review table (CSV or XLSX) into the vector store",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.cfg.Ingest.SourcePath
			if len(args) == 1 {
				path = args[0]
			}
			c, err := a.build(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer c.Close()

			report, err := c.service.IngestFile(cmd.Context(), path, service.IngestOptions{Reset: reset})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Inserted %d documents from %d rows in %s\n",
				len(report.Inserted), report.Rows, report.Elapsed.Round(time.Millisecond))
			if sampleQuery == "" {
				return nil
			}
			results, err := c.service.Search(cmd.Context(), sampleQuery, c.gateway.DefaultTopK())
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "\nSample query: %s\n", sampleQuery)
			printResults(out, results)
			return nil
		},
	}
	cmd.Flags().BoolVar(&reset, "reset", false, "Delete every stored review before inserting")
	cmd.Flags().StringVar(&sampleQuery, "sample-query", defaultSampleQuery, "Similarity search to run after ingestion (empty disables)")
	return cmd
}

func searchCmd(a *app) *cobra.Command {
	var topK int
	cmd := &cobra.Command{
		Use:   "search QUERY",
		Short: "Print the reviews most similar to QUERY",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.build(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer c.Close()
			if !cmd.Flags().Changed("top-k") {
				topK = c.gateway.DefaultTopK()
			}
			results, err := c.service.Search(cmd.Context(), args[0], topK)
			if err != nil {
				return err
			}
			printResults(cmd.OutOrStdout(), results)
			return nil
		},
	}
	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "Number of reviews to return (default retriever.top_k)")
	return cmd
}

func serveCmd(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the chat page and answer endpoint over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.build(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer c.Close()
			if addr == "" {
				addr = a.cfg.Server.Addr
			}
			srv := server.New(server.Config{
				Addr:           addr,
				RequestTimeout: time.Duration(a.cfg.Server.RequestTimeoutSecs) * time.Second,
				DefaultTopK:    c.gateway.DefaultTopK(),
			}, c.service, a.log, c.registry)
			return srv.Run(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default server.addr)")
	return cmd
}

func chatCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Ask questions in an interactive terminal UI",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Log lines would corrupt the alternate screen.
			logger.SetDefault(logger.NewLogger(logger.TestConfig()))
			c, err := a.build(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer c.Close()
			subtitle := fmt.Sprintf("%s collection %q, top %d", a.cfg.VectorStore.Type, a.cfg.VectorStore.CollectionName, c.gateway.DefaultTopK())
			timeout := time.Duration(a.cfg.Server.RequestTimeoutSecs) * time.Second
			m := tui.New(cmd.Context(), c.service, subtitle, timeout)
			_, err = tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(cmd.Context())).Run()
			return err
		},
	}
}

func configCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the resolved configuration and check credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Config file:     %s\n", a.cfgSource)
			fmt.Fprintf(out, "Vector store:    %s\n", a.cfg.VectorStore.Type)
			fmt.Fprintf(out, "Collection name: %s\n", a.cfg.VectorStore.CollectionName)
			fmt.Fprintf(out, "Embedding model: %s (%s)\n", a.cfg.EmbeddingModel.ModelName, a.cfg.EmbeddingModel.Provider)
			fmt.Fprintf(out, "LLM model:       %s (%s)\n", a.cfg.LLM.ModelName, a.cfg.LLM.Provider)
			fmt.Fprintf(out, "Top K:           %d\n", a.cfg.Retriever.TopK)
			if err := config.Validate(a.cfg, a.creds); err != nil {
				fmt.Fprintf(out, "Status:          %v\n", err)
				return nil
			}
			fmt.Fprintln(out, "Status:          ok")
			return nil
		},
	}
}

func printResults(w io.Writer, results []domain.SearchResult) {
	if len(results) == 0 {
		fmt.Fprintln(w, "No matching reviews.")
		return
	}
	for i, r := range results {
		m := r.Document.Metadata
		fmt.Fprintf(w, "%d. [%.3f] %s (rating %.1f) %s\n   %s\n", i+1, r.Score, m.Title, m.Rating, m.Summary, r.Document.Content)
	}
}
