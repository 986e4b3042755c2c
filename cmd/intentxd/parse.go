package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"IntentX/internal/intent"
)

var parseSeed uint64

var parseCmd = &cobra.Command{
	Use:   "parse <text>",
	Short: "离线解析一句意图并打印执行步骤",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := intent.SubmitRequest{NaturalLanguage: strings.Join(args, " ")}
		if err := req.Validate(); err != nil {
			return err
		}
		steps := intent.NewExtractor(intent.NewRandomness(parseSeed)).Extract(req.NaturalLanguage)
		out, err := json.MarshalIndent(map[string]any{
			"parsedSteps":      steps,
			"totalGasEstimate": intent.TotalGas(steps),
		}, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return err
	},
}

func init() {
	parseCmd.Flags().Uint64Var(&parseSeed, "seed", 0, "随机种子，0 表示按时间取种")
}
