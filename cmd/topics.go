package cmd

import (
	"fmt"

	"github.com/LuisReinoso/law-of-one-illustrated/examples"

	"github.com/spf13/cobra"
)

// topicsCmd は動作確認に使える題材ブリーフの一覧を表示します。
var topicsCmd = &cobra.Command{
	Use:   "topics",
	Short: "動作確認に使える題材ブリーフの一覧を表示します。",
	Example: `  law-of-one-illustrated topics
  law-of-one-illustrated create "$(law-of-one-illustrated topics | head -1)"`,
	RunE: topicsCommand,
}

func topicsCommand(cmd *cobra.Command, args []string) error {
	for _, topic := range examples.Topics {
		fmt.Fprintln(cmd.OutOrStdout(), topic)
	}
	return nil
}
