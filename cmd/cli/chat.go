package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"mochimo-mam/core"
)

var ChatCmd = &cobra.Command{
	Use:   "chat",
	Short: "One-slot last-message store",
}

var chatSendCmd = &cobra.Command{
	Use:   "send <message>",
	Short: "Overwrite the caller's stored message",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		caller, err := callerFlag(cmd)
		if err != nil {
			return err
		}
		maxGas, err := maxGasFlag(cmd)
		if err != nil {
			return err
		}

		gasUsed, gasCost, err := rt.Call(false, caller, maxGas, ChatInstanceID, core.SelectorChatSend, []byte(args[0]))
		return reportCall(cmd, gasUsed, gasCost, err)
	},
}

var chatReadCmd = &cobra.Command{
	Use:   "read <address>",
	Short: "Show an account's last stored message",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, err := rootDecodeAddr(args[0])
		if err != nil {
			return err
		}
		_, subRecord, _, err := core.GetAccountSubRecord(rt.NoOpContext(), addr, ChatInstanceID, false)
		if err != nil {
			return err
		}
		if len(subRecord) < core.InstanceIDLength {
			fmt.Fprintln(cmd.OutOrStdout(), "")
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(subRecord[core.InstanceIDLength:]))
		return nil
	},
}

func init() {
	ChatCmd.PersistentFlags().String("caller", "", "caller address (hex)")
	ChatCmd.PersistentFlags().Uint64("max-gas", 50000, "max gas for a committed call")
	ChatCmd.AddCommand(chatSendCmd, chatReadCmd)
}
