package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

type CommandPlugin interface {
	Meta() *cobra.Command
	Execute(ctx context.Context, cmd *cobra.Command, args []string) error
}

type CLI struct {
	ctx     context.Context
	rootCmd *cobra.Command
	plugins []CommandPlugin
}

func NewCLI(ctx context.Context, use, short string) *CLI {
	return &CLI{
		ctx: ctx,
		rootCmd: &cobra.Command{
			Use:           use,
			Short:         short,
			SilenceUsage:  true,
			SilenceErrors: true,
		},
		plugins: make([]CommandPlugin, 0, 10),
	}
}

// Root отдает корневую команду для глобальных флагов и хуков
func (c *CLI) Root() *cobra.Command {
	return c.rootCmd
}

func (c *CLI) RegisterPlugin(p CommandPlugin) {
	c.plugins = append(c.plugins, p)
	cmd := p.Meta()
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		for _, plugin := range c.plugins {
			if plugin.Meta() == cmd {
				return plugin.Execute(c.ctx, cmd, args)
			}
		}
		return fmt.Errorf("unknown command")
	}
	c.rootCmd.AddCommand(cmd)
}

func (c *CLI) initCompletion() {
	c.rootCmd.ValidArgsFunction = func(cmd *cobra.Command, args []string, toComplete string,
	) ([]string, cobra.ShellCompDirective) {
		names := make([]string, 0, len(c.plugins))
		for _, plugin := range c.plugins {
			names = append(names, plugin.Meta().Name())
		}
		return names, cobra.ShellCompDirectiveNoFileComp

	}
	completionCmd := &cobra.Command{
		Use:       "completion [bash|zsh|fish|powershell]",
		Short:     "Generate completion script",
		Long:      "Generate completion script for bash, zsh, fish, powershell",
		ValidArgs: []string{"bash", "zsh", "fish", "powershell"},
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			shell := "bash"
			if len(args) == 1 {
				shell = args[0]
			}
			switch shell {
			case "bash":
				return c.rootCmd.GenBashCompletion(cmd.OutOrStdout())
			case "zsh":
				return c.rootCmd.GenZshCompletion(cmd.OutOrStdout())
			case "fish":
				return c.rootCmd.GenFishCompletion(cmd.OutOrStdout(), true)
			case "powershell":
				return c.rootCmd.GenPowerShellCompletion(cmd.OutOrStdout())
			default:
				return fmt.Errorf("unsupported shell: %s", shell)
			}
		},
	}
	// source <(beacon completion zsh)
	c.rootCmd.AddCommand(completionCmd)
	c.rootCmd.CompletionOptions.DisableDefaultCmd = true
}

func (c *CLI) Run() error {
	c.initCompletion()
	return c.rootCmd.ExecuteContext(c.ctx)
}
