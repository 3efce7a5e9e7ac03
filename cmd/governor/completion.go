package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion script",
	Long: `Generate shell completion script for governor.

To load completions:

Bash:
  $ source <(governor completion bash)
  # To load permanently:
  $ governor completion bash > /etc/bash_completion.d/governor

Zsh:
  $ governor completion zsh > "${fpath[1]}/_governor"
  $ compinit

Fish:
  $ governor completion fish | source
  # To load permanently:
  $ governor completion fish > ~/.config/fish/completions/governor.fish

PowerShell:
  PS> governor completion powershell | Out-String | Invoke-Expression
  # To load permanently, add to your PowerShell profile
`,
	ValidArgs: []string{"bash", "zsh", "fish", "powershell"},
	Args:      cobra.ExactArgs(1),
	RunE:      generateCompletion,
}

func init() {
	rootCmd.AddCommand(completionCmd)
}

func generateCompletion(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	switch args[0] {
	case "bash":
		return rootCmd.GenBashCompletion(out)
	case "zsh":
		return rootCmd.GenZshCompletion(out)
	case "fish":
		return rootCmd.GenFishCompletion(out, true)
	case "powershell":
		return rootCmd.GenPowerShellCompletion(out)
	default:
		return fmt.Errorf("unsupported shell: %s", args[0])
	}
}
