// Package cli holds helpers shared by the stockragd commands.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const helpJSONFlag = "help-json"

// FlagSchema describes one flag for machine consumers.
type FlagSchema struct {
	Name        string `json:"name"`
	Shorthand   string `json:"shorthand,omitempty"`
	Type        string `json:"type"`
	Default     string `json:"default,omitempty"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required"`
}

// CommandSchema describes a command tree.
type CommandSchema struct {
	Name        string          `json:"name"`
	Use         string          `json:"use,omitempty"`
	Description string          `json:"description,omitempty"`
	Long        string          `json:"long,omitempty"`
	Flags       []FlagSchema    `json:"flags,omitempty"`
	Subcommands []CommandSchema `json:"subcommands,omitempty"`
}

func GenerateSchema(cmd *cobra.Command) CommandSchema {
	schema := CommandSchema{
		Name:        cmd.Name(),
		Use:         cmd.Use,
		Description: cmd.Short,
		Long:        cmd.Long,
	}

	cmd.LocalFlags().VisitAll(func(f *pflag.Flag) {
		if f.Name == helpJSONFlag || f.Name == "help" {
			return
		}
		schema.Flags = append(schema.Flags, flagSchema(f))
	})

	for _, sub := range cmd.Commands() {
		if sub.Name() == "help" || sub.Name() == "completion" || sub.Hidden {
			continue
		}
		schema.Subcommands = append(schema.Subcommands, GenerateSchema(sub))
	}

	return schema
}

func flagSchema(f *pflag.Flag) FlagSchema {
	_, required := f.Annotations[cobra.BashCompOneRequiredFlag]
	return FlagSchema{
		Name:        f.Name,
		Shorthand:   f.Shorthand,
		Type:        f.Value.Type(),
		Default:     f.DefValue,
		Description: f.Usage,
		Required:    required,
	}
}

// WriteSchema encodes the schema of cmd as indented JSON.
func WriteSchema(w io.Writer, cmd *cobra.Command) error {
	out, err := json.MarshalIndent(GenerateSchema(cmd), "", "  ")
	if err != nil {
		return fmt.Errorf("generate schema: %w", err)
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}

func AddHelpJSONFlag(cmd *cobra.Command) {
	cmd.PersistentFlags().Bool(helpJSONFlag, false, "Output command schema as JSON")
}

// CheckHelpJSON prints the schema of the command addressed by os.Args and
// exits when --help-json is present. It runs before Execute so required
// args and flags are not validated.
func CheckHelpJSON(rootCmd *cobra.Command) {
	target, ok := HelpJSONTarget(rootCmd, os.Args[1:])
	if !ok {
		return
	}
	if err := WriteSchema(os.Stdout, target); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	os.Exit(0)
}

// HelpJSONTarget resolves the command named by the words before --help-json.
func HelpJSONTarget(rootCmd *cobra.Command, args []string) (*cobra.Command, bool) {
	for i, arg := range args {
		if arg == "--"+helpJSONFlag {
			return findTargetCommand(rootCmd, args[:i]), true
		}
	}
	return nil, false
}

func findTargetCommand(cmd *cobra.Command, args []string) *cobra.Command {
	if len(args) == 0 {
		return cmd
	}
	for _, sub := range cmd.Commands() {
		if sub.Name() == args[0] || sub.HasAlias(args[0]) {
			return findTargetCommand(sub, args[1:])
		}
	}
	return cmd
}
