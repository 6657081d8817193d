package main

import (
	"fmt"

	"github.com/spf13/cobra"

	gracy "github.com/guilatrova/gracy"
	"github.com/guilatrova/gracy/internal/logging"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Parse a declaration and report the namespaces and endpoints it registers",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath()
		if path == "" {
			return fmt.Errorf("gracyctl: --config is required")
		}

		decl, err := gracy.LoadDeclarationFile(path)
		if err != nil {
			return err
		}

		client, err := decl.Build(logging.NoopLogger{})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "base url: %s\n", decl.BaseURL)
		for nsName, nsDecl := range decl.Namespaces {
			label := nsName
			if label == "" {
				label = "(root)"
			}
			fmt.Fprintf(out, "namespace %s\n", label)
			for epName, epDecl := range nsDecl.Endpoints {
				fmt.Fprintf(out, "  %-20s %s\n", epName, epDecl.Template)
			}
		}
		_ = client // built to surface wiring errors even though this command doesn't dispatch requests
		return nil
	},
}
