package cli

// Package cli provides the medguide command line: server start plus one-shot
// guidance, chat, language detection and provider status.
import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Denis-Chistyakov/Medguide/internal/app"
	"github.com/Denis-Chistyakov/Medguide/internal/config"
	"github.com/Denis-Chistyakov/Medguide/internal/content"
	"github.com/Denis-Chistyakov/Medguide/internal/language"
	"github.com/Denis-Chistyakov/Medguide/internal/monitor"
	"github.com/Denis-Chistyakov/Medguide/internal/version"
	"github.com/Denis-Chistyakov/Medguide/pkg/types"
)

// ServerFunc runs the long-lived server until shutdown
type ServerFunc func(ctx context.Context, cfg *types.Config) error

// options holds flag values shared by subcommands
type options struct {
	cfgFile      string
	outputFormat string
	debug        bool
}

// NewRootCmd builds the command tree; runServer backs the server command
func NewRootCmd(runServer ServerFunc) *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "medguide",
		Short: "Medguide - multilingual medical device guidance",
		Long: `Medguide serves step-by-step instructions for home medical devices.

Requests go to a self-hosted SageMaker model first, then OpenAI, and fall back
to built-in content when neither answers in time.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	root.PersistentFlags().StringVar(&opts.cfgFile, "config", "", "config file path (default: search ./configs, ., /etc/medguide)")
	root.PersistentFlags().StringVarP(&opts.outputFormat, "output", "o", "json", "output format (json, yaml)")
	root.PersistentFlags().BoolVar(&opts.debug, "debug", false, "enable debug logging")

	root.AddCommand(
		newServerCmd(opts, runServer),
		newGuideCmd(opts),
		newChatCmd(opts),
		newDetectCmd(opts),
		newDevicesCmd(opts),
		newStatusCmd(opts),
		newVersionCmd(opts),
	)
	return root
}

// loadConfig reads configuration and applies logging settings
func (o *options) loadConfig() (*types.Config, error) {
	cfg, err := config.Load(o.cfgFile)
	if err != nil {
		return nil, err
	}
	if o.debug {
		cfg.Observability.Logging.Level = "debug"
	}
	app.SetupLogging(cfg.Observability.Logging)
	return cfg, nil
}

// withApp builds the components for a one-shot command and closes them after fn
func (o *options) withApp(ctx context.Context, fn func(a *app.App) error) error {
	cfg, err := o.loadConfig()
	if err != nil {
		return err
	}
	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func newServerCmd(opts *options, runServer ServerFunc) *cobra.Command {
	var (
		port int
		host string
	)
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Start the Medguide HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if runServer == nil {
				return fmt.Errorf("server mode is not available")
			}
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			if cmd.Flags().Changed("host") {
				cfg.Server.Host = host
			}
			return runServer(cmd.Context(), cfg)
		},
	}
	cmd.Flags().IntVar(&port, "port", 8080, "server port")
	cmd.Flags().StringVar(&host, "host", "0.0.0.0", "server host")
	return cmd
}

func newGuideCmd(opts *options) *cobra.Command {
	var req types.GuidanceRequest
	var lang, style string

	cmd := &cobra.Command{
		Use:   "guide [device] [step]",
		Short: "Get guidance for one step of a device",
		Example: `  medguide guide blood_pressure_monitor 3 --language th --style gentle
  medguide guide thermometer 1 --brand Omron -o yaml`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			step, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("step must be a number: %s", args[1])
			}
			req.DeviceType = types.DeviceType(args[0])
			req.StepNumber = step
			req.Language = types.Language(lang)
			req.Style = types.Style(style)

			return opts.withApp(cmd.Context(), func(a *app.App) error {
				res, err := a.Orchestrator.Guidance(cmd.Context(), req)
				if err != nil {
					return err
				}
				return printOutput(cmd.OutOrStdout(), opts.outputFormat, res)
			})
		},
	}
	cmd.Flags().StringVarP(&lang, "language", "l", "en", "response language")
	cmd.Flags().StringVarP(&style, "style", "s", "", "instruction style (direct, gentle, detailed)")
	cmd.Flags().StringVar(&req.DeviceBrand, "brand", "", "device brand")
	cmd.Flags().StringVar(&req.DeviceModel, "model", "", "device model")
	return cmd
}

func newChatCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "chat [message]",
		Short: "Ask a free-form question",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := types.ChatRequest{Messages: []types.ChatMessage{
				{Role: types.RoleUser, Content: strings.Join(args, " ")},
			}}
			return opts.withApp(cmd.Context(), func(a *app.App) error {
				res, err := a.Orchestrator.Chat(cmd.Context(), req)
				if err != nil {
					return err
				}
				return printOutput(cmd.OutOrStdout(), opts.outputFormat, res)
			})
		},
	}
}

func newDetectCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "detect [text]",
		Short: "Detect the language of a text",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			return printOutput(cmd.OutOrStdout(), opts.outputFormat, map[string]interface{}{
				"text":     text,
				"language": language.Detect(text),
			})
		},
	}
}

func newDevicesCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List supported devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			var devices []*content.Device
			for _, dt := range content.DeviceTypes() {
				if d, ok := content.Lookup(dt); ok {
					devices = append(devices, d)
				}
			}
			return printOutput(cmd.OutOrStdout(), opts.outputFormat, devices)
		},
	}
}

func newStatusCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Probe every provider and print its health",
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd.Context(), func(a *app.App) error {
				mon := a.Monitor
				if mon == nil {
					mon = monitor.New(a.Clients, a.Orchestrator.Policy(), a.Config.Monitor, a.Collector)
				}
				mon.CheckAll(cmd.Context())
				return printOutput(cmd.OutOrStdout(), opts.outputFormat, map[string]interface{}{
					"providers":   mon.List(),
					"recommended": mon.Recommend(),
				})
			})
		},
	}
}

func newVersionCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printOutput(cmd.OutOrStdout(), opts.outputFormat, version.Info())
		},
	}
}

// printOutput writes data as indented JSON or as YAML with the same field names
func printOutput(w io.Writer, format string, data interface{}) error {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}

	switch strings.ToLower(format) {
	case "", "json":
		_, err = fmt.Fprintln(w, string(bytes))
		return err
	case "yaml", "yml":
		var generic interface{}
		if err := json.Unmarshal(bytes, &generic); err != nil {
			return err
		}
		out, err := yaml.Marshal(generic)
		if err != nil {
			return err
		}
		_, err = w.Write(out)
		return err
	default:
		return fmt.Errorf("unknown output format: %s", format)
	}
}
