package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"mochimo-mam/core"
)

var AssetsCmd = &cobra.Command{
	Use:   "assets",
	Short: "Fungible asset registry operations",
}

var assetsCreateCmd = &cobra.Command{
	Use:   "create <symbol> <decimals>",
	Short: "Register a new fungible token with the caller as admin",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		symbol, err := parseSymbol(args[0])
		if err != nil {
			return err
		}
		decimals, err := parseUint64(args[1])
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

		params := append([]byte{}, symbol[:]...)
		params = append(params, 0) // type_fungible
		params = append(params, caller.Bytes()...)
		modes, _ := core.ArrayToBytes(nil)
		params = append(params, modes...)
		data := append(core.PackUint64(0), core.PackUint64(decimals)...)
		dataLen := make([]byte, 8)
		for i := 0; i < 8; i++ {
			dataLen[7-i] = byte(uint64(len(data)) >> (8 * i))
		}
		params = append(params, dataLen...)
		params = append(params, data...)

		gasUsed, gasCost, err := rt.Call(false, caller, maxGas, AssetsInstanceID, core.SelectorAssetsCreate, params)
		return reportCall(cmd, gasUsed, gasCost, err)
	},
}

var assetsMintCmd = &cobra.Command{
	Use:   "mint <symbol> <amount> <recipient>",
	Short: "Mint new supply to a recipient (caller must be the token admin)",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		symbol, err := parseSymbol(args[0])
		if err != nil {
			return err
		}
		amount, err := parseUint64(args[1])
		if err != nil {
			return err
		}
		recipient, err := rootDecodeAddr(args[2])
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

		entry := append(core.PackUint64(amount), recipient.Bytes()...)
		arr, err := core.ArrayToBytes([][]byte{entry})
		if err != nil {
			return err
		}
		params := append(append([]byte{}, symbol[:]...), arr...)

		gasUsed, gasCost, err := rt.Call(false, caller, maxGas, AssetsInstanceID, core.SelectorAssetsMint, params)
		return reportCall(cmd, gasUsed, gasCost, err)
	},
}

var assetsTransferCmd = &cobra.Command{
	Use:   "transfer <symbol> <amount> <recipient>",
	Short: "Transfer a token balance to a recipient",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		symbol, err := parseSymbol(args[0])
		if err != nil {
			return err
		}
		amount, err := parseUint64(args[1])
		if err != nil {
			return err
		}
		recipient, err := rootDecodeAddr(args[2])
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

		entry := append([]byte{}, symbol[:]...)
		entry = append(entry, core.PackUint64(amount)...)
		entry = append(entry, recipient.Bytes()...)
		params, err := core.ArrayToBytes([][]byte{entry})
		if err != nil {
			return err
		}

		gasUsed, gasCost, err := rt.Call(false, caller, maxGas, AssetsInstanceID, core.SelectorAssetsTransfer, params)
		return reportCall(cmd, gasUsed, gasCost, err)
	},
}

var assetsBalanceCmd = &cobra.Command{
	Use:   "balance <symbol> <address>",
	Short: "Show an account's balance of a token",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		symbol, err := parseSymbol(args[0])
		if err != nil {
			return err
		}
		addr, err := rootDecodeAddr(args[1])
		if err != nil {
			return err
		}
		_, subRecord, _, err := core.GetAccountSubRecord(rt.NoOpContext(), addr, AssetsInstanceID, false)
		if err != nil {
			return err
		}
		bal, err := core.AssetEntryBalance(subRecord, symbol)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d\n", bal)
		return nil
	},
}

func init() {
	AssetsCmd.PersistentFlags().String("caller", "", "caller address (hex)")
	AssetsCmd.PersistentFlags().Uint64("max-gas", 200000, "max gas for a committed call")
	AssetsCmd.AddCommand(assetsCreateCmd, assetsMintCmd, assetsTransferCmd, assetsBalanceCmd)
}
