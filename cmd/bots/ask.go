package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func NewAskCmd(options *globalOptions) *cobra.Command {
	var (
		auto int
		save string
	)
	cmd := &cobra.Command{
		Use:   "ask <prompt>",
		Short: "Send one prompt and print the reply.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := options.runtime(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			prompt := strings.Join(args, " ")
			var reply string
			if auto > 0 {
				reply, err = rt.Agent.RespondAuto(cmd.Context(), prompt, "", auto)
			} else {
				reply, err = rt.Agent.Respond(cmd.Context(), prompt, "")
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), reply)

			if cmd.Flags().Changed("save") {
				name, err := rt.Save(save)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Saved to %s\n", name)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&auto, "auto", 0, "answer tool requests automatically for up to N cycles")
	cmd.Flags().StringVar(&save, "save", "", "save the agent afterwards (empty name uses a timestamp)")
	return cmd
}
