package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/SevenTV/AiUsage/gql"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var authCheckCmd = &cobra.Command{
	Use:   "authcheck",
	Short: "Report fields that expose types authorized in their parent without checks",
	RunE: func(cmd *cobra.Command, args []string) error {
		return authCheck(cmd.OutOrStdout())
	},
}

// authCheck prints the audit of the built schema and fails when it has findings.
func authCheck(out io.Writer) error {
	_, reg, err := gql.NewSchema(gql.NewResolver(nil, zap.NewNop()), nil)
	if err != nil {
		return err
	}

	report := reg.CheckAuthorization()

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err = enc.Encode(report); err != nil {
		return err
	}

	if len(report) != 0 {
		return fmt.Errorf("%d types are exposed without authorization", len(report))
	}

	return nil
}
