package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newConfigCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "有効な設定をYAMLで表示する",
		RunE: func(cmd *cobra.Command, _ []string) error {
			defer a.close()

			out, err := yaml.Marshal(a.cfg)
			if err != nil {
				return fmt.Errorf("設定の出力に失敗: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}
