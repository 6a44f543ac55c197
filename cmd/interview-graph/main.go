package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/loqalabs/loqa-interview/internal/graph"
)

var version = "0.1.0-dev"

var rootCmd = &cobra.Command{
	Use:   "interview-graph",
	Short: "Inspect and validate interview graph definitions",
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check a graph file for dangling transitions and an unreachable end",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("file")
		g, err := graph.LoadOrDefault(path)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "graph %q valid: %d nodes, start %s, end %s\n", g.Name(), len(g.Nodes()), g.Start(), g.Terminal())
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the nodes of a graph",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("file")
		mermaid, _ := cmd.Flags().GetBool("mermaid")
		g, err := graph.LoadOrDefault(path)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if mermaid {
			fmt.Fprint(out, graph.Mermaid(g))
			return nil
		}
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tSKILL\tDIFFICULTY\tTRANSITIONS")
		for _, n := range g.Nodes() {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%v\n", n.ID, n.Skill, n.Difficulty, n.Transitions)
		}
		return tw.Flush()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version)
	},
}

func init() {
	rootCmd.PersistentFlags().String("file", "", "Path to a YAML graph definition (built-in graph when empty)")
	showCmd.Flags().Bool("mermaid", false, "Render as a mermaid flowchart")
	rootCmd.AddCommand(validateCmd, showCmd, versionCmd)
	rootCmd.SilenceUsage = true
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
