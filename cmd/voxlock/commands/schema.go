package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haivivi/voxlock/pkg/relay"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the JSON Schema of relay client messages",
	Long: `Print the JSON Schema of the messages a browser sends to the relay
("frame" and "reset"). The running server serves the same document at
GET /schema.

The schema is always printed as JSON; --output does not apply.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		schema, err := relay.Schema()
		if err != nil {
			return err
		}
		data, err := json.MarshalIndent(schema, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return err
	},
}

func init() {
	rootCmd.AddCommand(schemaCmd)
}
