package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"agri-pipeline/internal/models"
	"agri-pipeline/internal/schema"
	"agri-pipeline/pkg/registry"
)

var schemasCmd = &cobra.Command{
	Use:   "schemas [kind]",
	Short: "Print the task registry, or the input and output schema of one request kind",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var doc interface{} = registry.Build(time.Now().UTC())

		if len(args) == 1 {
			kind := models.RequestKind(args[0])
			input, ok := schema.RequestForKind(kind)
			if !ok {
				return fmt.Errorf("unknown request kind %q", args[0])
			}
			output, _ := schema.ForKind(kind)
			doc = map[string]interface{}{
				"kind":   kind,
				"input":  schema.ToJSONSchema(input),
				"output": schema.ToJSONSchema(output),
			}
		}

		out, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	},
}
