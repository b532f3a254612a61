// Everly - Personal Diary and Travel Journal Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/everly

package main

import (
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

func newModulesCommand(opts *rootOptions) *cobra.Command {
	var schema bool

	cmd := &cobra.Command{
		Use:   "modules",
		Short: "List modules in initialization order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			mgr, err := newOfflineManager(cfg)
			if err != nil {
				return err
			}

			if schema {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(mgr.ConfigSchemas())
			}

			order, err := mgr.ResolveOrder()
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tVERSION\tDEPENDS ON\tCONFIG KEYS\tDESCRIPTION")
			schemas := mgr.ConfigSchemas()
			for _, name := range order {
				mod, _ := mgr.Get(name)
				deps := strings.Join(mod.Dependencies(), ",")
				if deps == "" {
					deps = "-"
				}
				keys := make([]string, 0, len(schemas[name]))
				for k := range schemas[name] {
					keys = append(keys, k)
				}
				sort.Strings(keys)
				keyList := strings.Join(keys, ",")
				if keyList == "" {
					keyList = "-"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", name, mod.Version(), deps, keyList, mod.Description())
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&schema, "schema", false, "print module config schemas as JSON")
	return cmd
}
