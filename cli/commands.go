package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/becomeliminal/nim-memory/core"
	"github.com/becomeliminal/nim-memory/engine"
)

func storeCommand() *cli.Command {
	var (
		opts       options
		sender     string
		persona    string
		deviceType string
		sessionID  string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "sender",
			Aliases:     []string{"s"},
			Usage:       "Message sender (user, agent, system)",
			Value:       "user",
			Destination: &sender,
		},
		&cli.StringFlag{
			Name:        "persona",
			Usage:       "Persona metadata (default from config)",
			Destination: &persona,
		},
		&cli.StringFlag{
			Name:        "device-type",
			Usage:       "Device type metadata (default from config)",
			Destination: &deviceType,
		},
		&cli.StringFlag{
			Name:        "session",
			Usage:       "Session ID (default: a new one per invocation)",
			Destination: &sessionID,
		},
	}
	flags = append(flags, memoryFlags(&opts)...)

	return &cli.Command{
		Name:      "store",
		Usage:     "Store a message",
		ArgsUsage: "<text>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.Args().Len() == 0 {
				return goerr.New("message text is required")
			}
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			rt, err := setup(ctx, cfg)
			if err != nil {
				return err
			}
			defer rt.Close()

			s, err := core.ParseSender(sender)
			if err != nil {
				return err
			}
			msg := core.NewMessage(s, strings.Join(c.Args().Slice(), " "), time.Now().UTC())
			meta := core.ConversationMetadata{
				SessionID:  sessionID,
				Persona:    cfg.Defaults.Persona,
				DeviceType: cfg.Defaults.DeviceType,
			}
			set(&meta.Persona, persona)
			set(&meta.DeviceType, deviceType)

			if err := msg.Validate(); err != nil {
				return err
			}
			if err := rt.history.Append(ctx, msg); err != nil {
				return err
			}
			if err := rt.orchestrator.TryStoreMessage(ctx, msg, meta); err != nil {
				return err
			}
			fmt.Fprintln(c.Root().Writer, msg.ID)
			return nil
		},
	}
}

func searchCommand() *cli.Command {
	var (
		opts  options
		limit int64
	)

	flags := []cli.Flag{limitFlag(&limit)}
	flags = append(flags, memoryFlags(&opts)...)

	return &cli.Command{
		Name:      "search",
		Usage:     "Search past conversations by similarity",
		ArgsUsage: "<query>",
		Flags:     flags,
		Action: withRuntime(&opts, func(ctx context.Context, c *cli.Command, rt *runtime) error {
			results, err := rt.orchestrator.SearchConversations(ctx, strings.Join(c.Args().Slice(), " "), int(limit))
			if err != nil {
				return err
			}
			return writeJSON(c.Root().Writer, results)
		}),
	}
}

func contextCommand() *cli.Command {
	var (
		opts  options
		limit int64
	)

	flags := []cli.Flag{limitFlag(&limit)}
	flags = append(flags, memoryFlags(&opts)...)

	return &cli.Command{
		Name:      "context",
		Usage:     "Print the context block injected into prompts",
		ArgsUsage: "<query>",
		Flags:     flags,
		Action: withRuntime(&opts, func(ctx context.Context, c *cli.Command, rt *runtime) error {
			text, err := rt.orchestrator.GetConversationContext(ctx, strings.Join(c.Args().Slice(), " "), int(limit))
			if err != nil {
				return err
			}
			if text != "" {
				fmt.Fprintln(c.Root().Writer, text)
			}
			return nil
		}),
	}
}

func recentCommand() *cli.Command {
	var (
		opts  options
		limit int64
	)

	flags := []cli.Flag{limitFlag(&limit)}
	flags = append(flags, memoryFlags(&opts)...)

	return &cli.Command{
		Name:  "recent",
		Usage: "List the most recent messages, newest first",
		Flags: flags,
		Action: withRuntime(&opts, func(ctx context.Context, c *cli.Command, rt *runtime) error {
			records, err := rt.orchestrator.GetRecentConversations(ctx, int(limit))
			if err != nil {
				return err
			}
			return writeJSON(c.Root().Writer, records)
		}),
	}
}

func chatCommand() *cli.Command {
	var (
		opts   options
		apiKey string
		model  string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "anthropic-api-key",
			Usage:       "Anthropic API key",
			Sources:     cli.EnvVars("ANTHROPIC_API_KEY"),
			Destination: &apiKey,
		},
		&cli.StringFlag{
			Name:        "model",
			Usage:       "Claude model",
			Value:       engine.DefaultModel,
			Sources:     cli.EnvVars("NIM_MEMORY_MODEL"),
			Destination: &model,
		},
	}
	flags = append(flags, memoryFlags(&opts)...)

	return &cli.Command{
		Name:      "chat",
		Usage:     "Send one message to Claude with memory recall",
		ArgsUsage: "<message>",
		Flags:     flags,
		Action: withRuntime(&opts, func(ctx context.Context, c *cli.Command, rt *runtime) error {
			if apiKey == "" {
				return goerr.New("anthropic-api-key is required")
			}
			client := anthropic.NewClient(option.WithAPIKey(apiKey))
			e := engine.New(&client.Messages, rt.orchestrator,
				engine.WithModel(model),
				engine.WithHistory(rt.history),
				engine.WithLogger(rt.logger),
			)

			out, err := e.Run(ctx, &engine.Input{
				UserMessage: strings.Join(c.Args().Slice(), " "),
				Metadata: core.ConversationMetadata{
					Persona:    rt.cfg.Defaults.Persona,
					DeviceType: rt.cfg.Defaults.DeviceType,
				},
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(c.Root().Writer, out.Text)
			return nil
		}),
	}
}

func limitFlag(dst *int64) cli.Flag {
	return &cli.IntFlag{
		Name:        "limit",
		Aliases:     []string{"n"},
		Usage:       "Maximum number of results (0 uses the configured default)",
		Destination: dst,
	}
}

// withRuntime loads config and assembles the memory layer around action.
func withRuntime(opts *options, action func(context.Context, *cli.Command, *runtime) error) cli.ActionFunc {
	return func(ctx context.Context, c *cli.Command) error {
		cfg, err := opts.load()
		if err != nil {
			return err
		}
		rt, err := setup(ctx, cfg)
		if err != nil {
			return err
		}
		defer rt.Close()
		return action(ctx, c, rt)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return goerr.Wrap(err, "failed to write output")
	}
	return nil
}
