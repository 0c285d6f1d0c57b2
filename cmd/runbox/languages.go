package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/isdmx/runbox/config"
	"github.com/isdmx/runbox/language"
)

var languagesCmd = &cobra.Command{
	Use:     "languages",
	Aliases: []string{"langs"},
	Short:   "List supported language ids and their commands",
	Args:    cobra.NoArgs,
	RunE:    runLanguages,
}

func init() {
	rootCmd.AddCommand(languagesCmd)
}

func runLanguages(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configFlag)
	if err != nil {
		return err
	}

	registry, err := language.New(cfg.Sandbox.LanguagesFile)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCOMMAND")
	for _, id := range registry.IDs() {
		spec, err := registry.Lookup(id)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%s\n", id, strings.Join(spec.Command, " "))
	}
	return w.Flush()
}
