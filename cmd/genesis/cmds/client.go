package cmds

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/pkg/errors"
	"github.com/spf13/cast"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/genesis/pkg/client"
	"github.com/go-go-golems/genesis/pkg/orchestrator"
	"github.com/go-go-golems/genesis/pkg/server"
)

func newClient() (*client.Client, error) {
	if current == nil {
		return nil, errors.New("configuration not loaded")
	}
	return client.New(current.Client.URL)
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func NewStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the current engine status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			s, err := c.Status(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), s)
		},
	}
}

func NewWatchCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream live status updates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			count, _ := cmd.Flags().GetInt("count")
			seen := 0
			err = c.Watch(cmd.Context(), func(u client.StatusUpdate) error {
				fmt.Fprintf(cmd.OutOrStdout(), "%s provider=%s mode=%s entropy=%d version=%d\n",
					u.Timestamp.Format("15:04:05"), u.Data.Provider, u.Data.Mode, u.Data.EntropyLevel, u.Data.Version)
				seen++
				if count > 0 && seen >= count {
					return errStopWatching
				}
				return nil
			})
			if errors.Is(err, errStopWatching) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().Int("count", 0, "Exit after this many updates (0 streams forever)")
	return cmd
}

var errStopWatching = errors.New("stop watching")

func NewSwitchProviderCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "switch-provider <provider>",
		Short: "Make a provider the active one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			key, _ := cmd.Flags().GetString("api-key")
			res, err := c.SwitchProvider(cmd.Context(), args[0], key)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Message)
			return nil
		},
	}
	cmd.Flags().String("api-key", "", "Credential to install for the provider")
	return cmd
}

func NewSwitchModeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "switch-mode <mode>",
		Short: "Change the mystical mode",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			res, err := c.SwitchMode(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Message)
			return nil
		},
	}
}

func NewSetParameterCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "set-parameter <name> <value>",
		Short: "Update an engine parameter such as entropy_level",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			res, err := c.SetParameter(cmd.Context(), args[0], parseValue(args[1]))
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res.Status)
		},
	}
}

// parseValue keeps numbers and booleans typed so the server sees JSON
// numbers and booleans rather than strings.
func parseValue(s string) interface{} {
	if f, err := cast.ToFloat64E(s); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return s
}

func NewGenerateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate <target-url> <behavior-type>",
		Short: "Request a generated behavior pattern",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			intensity, _ := cmd.Flags().GetInt("intensity")
			req := server.GenerateRequest{
				TargetURL:    args[0],
				BehaviorType: args[1],
				Intensity:    &intensity,
			}
			if p, _ := cmd.Flags().GetString("provider"); p != "" {
				req.Provider = &p
			}
			if m, _ := cmd.Flags().GetString("mode"); m != "" {
				req.MysticalMode = &m
			}

			res, err := c.Generate(cmd.Context(), req)
			if err != nil {
				return err
			}
			if raw, _ := cmd.Flags().GetBool("content-only"); raw {
				fmt.Fprintln(cmd.OutOrStdout(), res.Content)
				return nil
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().Int("intensity", orchestrator.DefaultIntensity, "Intensity from 1 to 10")
	cmd.Flags().String("provider", "", "Provider override, committed for later requests too")
	cmd.Flags().String("mode", "", "Mode override, committed for later requests too")
	cmd.Flags().Bool("content-only", false, "Print only the generated content")
	return cmd
}
