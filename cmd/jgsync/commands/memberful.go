package commands

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/Tinuki562/junior.guru/internal/components/cliutil"
	"github.com/Tinuki562/junior.guru/internal/memberful"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	nodesCollection string
	nodesStrict     bool
	nodesVariables  []string
	csvParams       []string
)

func init() {
	nodesCmd.Flags().StringVar(&nodesCollection, "collection", "", "The paginated collection, parsed from the query when not given.")
	nodesCmd.Flags().BoolVar(&nodesStrict, "strict", false, "Fail on duplicate nodes instead of dropping them.")
	nodesCmd.Flags().StringArrayVar(&nodesVariables, "var", nil, "A query variable as name=value, can be repeated.")
	csvCmd.Flags().StringArrayVar(&csvParams, "param", nil, "An export parameter as name=value, can be repeated.")

	memberfulCmd.AddCommand(nodesCmd)
	memberfulCmd.AddCommand(csvCmd)
	rootCmd.AddCommand(memberfulCmd)
}

func parsePairs(pairs []string) (map[string]string, error) {
	out := map[string]string{}
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("expected name=value, got %q", pair)
		}
		out[name] = value
	}
	return out, nil
}

var memberfulCmd = &cobra.Command{
	Use:   "memberful",
	Short: "Commands reading data straight from Memberful.",
}

var nodesCmd = &cobra.Command{
	Use:   "nodes <query.graphql>",
	Short: "Prints every node of a paginated GraphQL query as a line of JSON.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read query: %w", err)
		}
		pairs, err := parsePairs(nodesVariables)
		if err != nil {
			return fmt.Errorf("invalid variables: %w", err)
		}
		variables := map[string]any{}
		for name, value := range pairs {
			variables[name] = value
		}

		api, err := newAPI()
		if err != nil {
			return fmt.Errorf("create memberful api client: %w", err)
		}
		nodes, err := api.Nodes(string(query), variables, memberful.NodesOptions{
			Collection:       nodesCollection,
			StrictDuplicates: nodesStrict,
		})
		if err != nil {
			return fmt.Errorf("prepare query: %w", err)
		}

		encoder := json.NewEncoder(os.Stdout)
		for nodes.Next(cmd.Context()) {
			err = encoder.Encode(nodes.Node())
			if err != nil {
				return fmt.Errorf("write node: %w", err)
			}
		}
		if err := nodes.Err(); err != nil {
			return fmt.Errorf("fetch nodes: %w", err)
		}
		current.tel.ReportDebug("fetched nodes", nodes.Yielded(), nodes.Duplicates())
		return nil
	},
}

var csvCmd = &cobra.Command{
	Use:   "csv <export type>",
	Short: "Downloads a CSV export from the Memberful admin and prints it as a table.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pairs, err := parsePairs(csvParams)
		if err != nil {
			return fmt.Errorf("invalid params: %w", err)
		}
		params := url.Values{"type": {args[0]}}
		for name, value := range pairs {
			params.Set(name, value)
		}

		client, err := newCSV()
		if err != nil {
			return fmt.Errorf("create memberful csv client: %w", err)
		}
		rows, err := client.Download(cmd.Context(), params)
		if err != nil {
			return fmt.Errorf("download export: %w", err)
		}

		t := cliutil.NewTable()
		header := table.Row{}
		for _, name := range rows.Header() {
			header = append(header, name)
		}
		t.AppendHeader(header)
		for rows.Next() {
			record := rows.Row()
			row := make(table.Row, len(rows.Header()))
			for i, name := range rows.Header() {
				row[i] = record[name]
			}
			t.AppendRow(row)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("parse export: %w", err)
		}
		t.Render()
		return nil
	},
}
