package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/loykin/gestures"
	"github.com/loykin/gestures/pkg/client"
)

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildRoot creates the root command and every subcommand.
func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	root := createRootCommand(globalFlags)

	// newCommand is resolved per invocation so persistent flags are parsed.
	newCommand := func(cmd *cobra.Command) (command, error) {
		base, err := apiURL(globalFlags)
		if err != nil {
			return command{}, err
		}
		api := client.New(client.Config{BaseURL: base, Timeout: globalFlags.APITimeout})
		return command{api: api, out: cmd.OutOrStdout()}, nil
	}

	root.AddCommand(
		createServeCommand(globalFlags),
		simpleCommand(newCommand, "status", "Show engine state", cobra.NoArgs,
			func(c command, cmd *cobra.Command, _ []string) error { return c.Status(cmd.Context()) }),
		simpleCommand(newCommand, "list", "List recorded gestures", cobra.NoArgs,
			func(c command, cmd *cobra.Command, _ []string) error { return c.List(cmd.Context()) }),
		simpleCommand(newCommand, "show <id>", "Print one gesture with its events", cobra.ExactArgs(1),
			func(c command, cmd *cobra.Command, args []string) error { return c.Show(cmd.Context(), args[0]) }),
		createRecordCommand(newCommand),
		simpleCommand(newCommand, "play <id>", "Replay a gesture", cobra.ExactArgs(1),
			func(c command, cmd *cobra.Command, args []string) error { return c.Play(cmd.Context(), args[0]) }),
		simpleCommand(newCommand, "stop", "Stop the running playback", cobra.NoArgs,
			func(c command, cmd *cobra.Command, _ []string) error { return c.Stop(cmd.Context()) }),
		simpleCommand(newCommand, "select <id>", "Select a gesture", cobra.ExactArgs(1),
			func(c command, cmd *cobra.Command, args []string) error { return c.Select(cmd.Context(), args[0]) }),
		simpleCommand(newCommand, "rename <id> <name>", "Rename a gesture", cobra.MinimumNArgs(2),
			func(c command, cmd *cobra.Command, args []string) error {
				return c.Rename(cmd.Context(), args[0], strings.Join(args[1:], " "))
			}),
		simpleCommand(newCommand, "duplicate <id>", "Copy a gesture", cobra.ExactArgs(1),
			func(c command, cmd *cobra.Command, args []string) error { return c.Duplicate(cmd.Context(), args[0]) }),
		simpleCommand(newCommand, "delete <id>", "Delete a gesture", cobra.ExactArgs(1),
			func(c command, cmd *cobra.Command, args []string) error { return c.Delete(cmd.Context(), args[0]) }),
		simpleCommand(newCommand, "clear", "Delete every gesture", cobra.NoArgs,
			func(c command, cmd *cobra.Command, _ []string) error { return c.Clear(cmd.Context()) }),
		createExportCommand(newCommand),
		simpleCommand(newCommand, "import <file>", "Replace the library with an exported document", cobra.ExactArgs(1),
			func(c command, cmd *cobra.Command, args []string) error { return c.Import(cmd.Context(), args[0]) }),
		simpleCommand(newCommand, "cue <id>", "Fire a cue trigger for a gesture", cobra.ExactArgs(1),
			func(c command, cmd *cobra.Command, args []string) error { return c.Cue(cmd.Context(), args[0]) }),
		createEmitCommand(newCommand),
		createParamCommand(newCommand),
	)
	return root
}

// createRootCommand creates the root command with persistent flags
func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "gestures",
		Short: "Record and replay live control gestures",
		Long: `Gestures captures control-input streams (pad moves, controller values,
audio flourishes) as named takes and replays them with live timing.

Examples:
  gestures serve --config=gestures.toml   # Start the daemon
  gestures record start
  gestures emit pad:update --set param=hue --set normalized=0.4
  gestures record stop
  gestures play <id>
  gestures list --api-url=http://stage:8090/api`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (optional)")
	root.PersistentFlags().StringVar(&flags.APIUrl, "api-url", "", "daemon URL (default derived from [server] in --config)")
	root.PersistentFlags().DurationVar(&flags.APITimeout, "api-timeout", 10*time.Second, "request timeout")
	return root
}

type runFunc func(c command, cmd *cobra.Command, args []string) error

func simpleCommand(newCommand func(*cobra.Command) (command, error), use, short string, args cobra.PositionalArgs, run runFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
		RunE: func(cmd *cobra.Command, a []string) error {
			c, err := newCommand(cmd)
			if err != nil {
				return err
			}
			return run(c, cmd, a)
		},
	}
}

func createRecordCommand(newCommand func(*cobra.Command) (command, error)) *cobra.Command {
	stopFlags := &RecordStopFlags{}
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Start or stop capturing a take",
	}
	start := simpleCommand(newCommand, "start", "Begin capturing", cobra.NoArgs,
		func(c command, cmd *cobra.Command, _ []string) error { return c.RecordStart(cmd.Context()) })
	stop := simpleCommand(newCommand, "stop", "Finish the take and save it", cobra.NoArgs,
		func(c command, cmd *cobra.Command, _ []string) error { return c.RecordStop(cmd.Context(), *stopFlags) })
	stop.Flags().BoolVar(&stopFlags.Discard, "discard", false, "drop the take instead of saving it")
	stop.Flags().StringVar(&stopFlags.Reason, "reason", "", "reason reported with the stop notification")
	cmd.AddCommand(start, stop)
	return cmd
}

func createExportCommand(newCommand func(*cobra.Command) (command, error)) *cobra.Command {
	f := &ExportFlags{}
	cmd := simpleCommand(newCommand, "export", "Write the library as JSON", cobra.NoArgs,
		func(c command, cmd *cobra.Command, _ []string) error { return c.Export(cmd.Context(), *f) })
	cmd.Flags().StringVarP(&f.Output, "output", "o", "-", "output file, - for stdout")
	return cmd
}

func createEmitCommand(newCommand func(*cobra.Command) (command, error)) *cobra.Command {
	f := &EmitFlags{}
	cmd := simpleCommand(newCommand, "emit <type>", "Publish a raw control event on the daemon bus", cobra.ExactArgs(1),
		func(c command, cmd *cobra.Command, args []string) error {
			f.Type = args[0]
			return c.Emit(cmd.Context(), *f)
		})
	cmd.Long = `Publish a raw control event. While recording, events on a capture
source topic become part of the take.

Examples:
  gestures emit pad:update --payload '{"param":"hue","normalized":0.25}'
  gestures emit controller:value --set param=density --set value=7`
	cmd.Flags().StringVar(&f.Payload, "payload", "", "JSON object payload")
	cmd.Flags().StringArrayVar(&f.Values, "set", nil, "payload key=value (repeatable)")
	return cmd
}

func createParamCommand(newCommand func(*cobra.Command) (command, error)) *cobra.Command {
	cmd := simpleCommand(newCommand, "params [name value]", "List parameters or set one", cobra.RangeArgs(0, 2),
		func(c command, cmd *cobra.Command, args []string) error {
			switch len(args) {
			case 0:
				return c.Parameters(cmd.Context())
			case 2:
				v, err := strconv.ParseFloat(args[1], 64)
				if err != nil {
					return fmt.Errorf("invalid value %q: %w", args[1], err)
				}
				return c.SetParameter(cmd.Context(), args[0], v)
			default:
				return fmt.Errorf("expected no arguments or <name> <value>")
			}
		})
	return cmd
}

// apiURL resolves the daemon address from --api-url, then the config file's
// [server] section, then the client default.
func apiURL(f *GlobalFlags) (string, error) {
	if f.APIUrl != "" {
		return strings.TrimRight(f.APIUrl, "/"), nil
	}
	if f.ConfigPath == "" {
		return client.DefaultConfig().BaseURL, nil
	}
	cfg, err := gestures.LoadConfig(f.ConfigPath)
	if err != nil {
		return "", fmt.Errorf("error loading config: %w", err)
	}
	host := cfg.Server.Listen
	if strings.HasPrefix(host, ":") {
		host = "127.0.0.1" + host
	}
	return "http://" + host + cfg.Server.BasePath, nil
}
