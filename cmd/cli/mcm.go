package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"mochimo-mam/core"
)

var MCMCmd = &cobra.Command{
	Use:   "mcm",
	Short: "Native coin operations",
}

var mcmCreateTagCmd = &cobra.Command{
	Use:   "create-tag <new-address> <funding>",
	Short: "Fund a brand new account",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		newAddr, err := rootDecodeAddr(args[0])
		if err != nil {
			return err
		}
		funding, err := parseUint64(args[1])
		if err != nil {
			return err
		}
		caller, err := callerFlag(cmd)
		if err != nil {
			return err
		}
		maxGas, err := maxGasFlag(cmd)
		if err != nil {
			return err
		}

		params := make([]byte, core.AddressLength+8)
		copy(params[:core.AddressLength], newAddr.Bytes())
		for i := 0; i < 8; i++ {
			params[core.AddressLength+7-i] = byte(funding >> (8 * i))
		}
		gasUsed, gasCost, err := rt.Call(false, caller, maxGas, core.MCMInstanceID, core.SelectorMCMCreateTag, params)
		return reportCall(cmd, gasUsed, gasCost, err)
	},
}

var mcmBalanceCmd = &cobra.Command{
	Use:   "balance <address>",
	Short: "Show an account's MCM balance",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, err := rootDecodeAddr(args[0])
		if err != nil {
			return err
		}
		bal, err := core.GetMCMBalance(rt.NoOpContext(), addr, false)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d\n", bal)
		return nil
	},
}

var mcmTransferCmd = &cobra.Command{
	Use:   "transfer <destination> <amount>",
	Short: "Transfer MCM from the caller to one destination",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		dest, err := rootDecodeAddr(args[0])
		if err != nil {
			return err
		}
		amount, err := parseUint64(args[1])
		if err != nil {
			return err
		}
		caller, err := callerFlag(cmd)
		if err != nil {
			return err
		}
		maxGas, err := maxGasFlag(cmd)
		if err != nil {
			return err
		}

		amtBuf := make([]byte, 8)
		for i := 0; i < 8; i++ {
			amtBuf[7-i] = byte(amount >> (8 * i))
		}
		entry := append(amtBuf, dest.Bytes()...)
		entry = append(entry, 0, 0, 0, 0, 0, 0, 0, 0) // memo_len = 0, no memo
		params, err := core.ArrayToBytes([][]byte{entry})
		if err != nil {
			return err
		}
		gasUsed, gasCost, err := rt.Call(false, caller, maxGas, core.MCMInstanceID, core.SelectorMCMTransfer, params)
		return reportCall(cmd, gasUsed, gasCost, err)
	},
}

func init() {
	MCMCmd.PersistentFlags().String("caller", "", "caller address (hex)")
	MCMCmd.PersistentFlags().Uint64("max-gas", 100000, "max gas for a committed call")
	MCMCmd.AddCommand(mcmCreateTagCmd, mcmBalanceCmd, mcmTransferCmd)
}
