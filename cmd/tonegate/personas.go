package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the config and persona files",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(configPath, nil)
		if err != nil {
			return err
		}
		reg, err := buildPersonas(cfg.Personas)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "config ok: strategy=%s provider=%s personas=%d default=%s\n",
			cfg.Gate.Strategy, cfg.Inference.Provider, len(reg.IDs()), reg.DefaultID())
		return nil
	},
}

var personasCmd = &cobra.Command{
	Use:   "personas",
	Short: "List the configured personas and the plan each requires",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(configPath, nil)
		if err != nil {
			return err
		}
		reg, err := buildPersonas(cfg.Personas)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tMINIMUM PLAN\tDEFAULT")
		for _, id := range reg.IDs() {
			p, _ := reg.Lookup(id)
			def := ""
			if id == reg.DefaultID() {
				def = "yes"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", id, p.MinimumPlan, def)
		}
		return w.Flush()
	},
}
